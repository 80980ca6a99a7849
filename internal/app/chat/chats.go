package chat

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/samber/lo"

	"chatterbox/internal/app/delivery"
	"chatterbox/internal/app/model"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/store"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/randx"
)

// CreateChatInput describes a new chat. For direct chats Members holds the other user,
// optionally together with the creator.
type CreateChatInput struct {
	IsGroup     bool     `json:"isGroup"`
	Name        string   `json:"name" validate:"max=100"`
	Description string   `json:"description" validate:"max=500"`
	Members     []string `json:"members" validate:"required,min=1,dive,required"`
	Admins      []string `json:"admins" validate:"dive,required"`
}

// CreateChat creates a group, or finds or creates the direct chat of a pair.
// created is false when an existing direct chat is returned.
func (s *Service) CreateChat(ctx context.Context, actorID string, in CreateChatInput) (view *model.ChatView, created bool, cerr *errs.CustomError) {
	if in.IsGroup {
		view, cerr = s.createGroup(ctx, actorID, in)
		return view, cerr == nil, cerr
	}
	return s.findOrCreateDirect(ctx, actorID, in.Members)
}

// requireUsers fails unless every id names an existing user.
func (s *Service) requireUsers(ctx context.Context, ids []string) *errs.CustomError {
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return errs.Internal(err)
	}
	if len(users) != len(lo.Uniq(ids)) {
		return errs.NewError(errs.ErrUserNotFound)
	}
	return nil
}

func (s *Service) createGroup(ctx context.Context, actorID string, in CreateChatInput) (*model.ChatView, *errs.CustomError) {
	name := strings.TrimSpace(in.Name)
	requested := lo.Uniq(in.Members)
	if name == "" || len(requested) < 2 {
		return nil, errs.NewError(errs.ErrInvalidChatData)
	}

	members := lo.Union(requested, []string{actorID})
	admins := lo.Union(lo.Uniq(in.Admins), []string{actorID})
	if !lo.Every(members, admins) {
		return nil, errs.NewError(errs.ErrAdminsMustBeMembers)
	}

	if cerr := s.requireUsers(ctx, members); cerr != nil {
		return nil, cerr
	}

	now := s.now()
	chat := &model.Chat{
		ID:          randx.ID(),
		IsGroup:     true,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Members:     members,
		Admins:      admins,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, errs.Internal(err)
	}

	view, cerr := s.chatView(ctx, chat, actorID)
	if cerr != nil {
		return nil, cerr
	}

	s.rooms.JoinOnline(chat.ID, chat.Members)
	s.notifier.ToUsers(chat.Members, realtime.EventNewChat, view)

	s.log.Info().Str("chat_id", chat.ID).Str("user_id", actorID).Int("members", len(members)).Msg("Group chat created")
	return view, nil
}

func (s *Service) findOrCreateDirect(ctx context.Context, actorID string, requested []string) (*model.ChatView, bool, *errs.CustomError) {
	members := lo.Uniq(requested)
	if len(members) == 1 {
		members = lo.Union(members, []string{actorID})
	}
	if len(members) != 2 || members[0] == members[1] || !slices.Contains(members, actorID) {
		return nil, false, errs.NewError(errs.ErrDirectChatMembers)
	}

	if cerr := s.requireUsers(ctx, members); cerr != nil {
		return nil, false, cerr
	}

	existing, err := s.store.FindDirectChat(ctx, members[0], members[1])
	switch {
	case err == nil:
		view, cerr := s.chatView(ctx, existing, actorID)
		return view, false, cerr
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, errs.Internal(err)
	}

	now := s.now()
	chat := &model.Chat{
		ID:        randx.ID(),
		Members:   members,
		Admins:    []string{},
		CreatedBy: actorID,
		DirectKey: model.DirectKey(members[0], members[1]),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateChat(ctx, chat); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, false, errs.Internal(err)
		}
		// A concurrent request created the pair first.
		existing, err := s.store.FindDirectChat(ctx, members[0], members[1])
		if err != nil {
			return nil, false, errs.Internal(err)
		}
		view, cerr := s.chatView(ctx, existing, actorID)
		return view, false, cerr
	}

	view, cerr := s.chatView(ctx, chat, actorID)
	if cerr != nil {
		return nil, false, cerr
	}

	s.rooms.JoinOnline(chat.ID, chat.Members)
	s.notifier.ToUsers(chat.Members, realtime.EventNewChat, view)

	s.log.Info().Str("chat_id", chat.ID).Str("user_id", actorID).Msg("Direct chat created")
	return view, true, nil
}

// GetChats lists the actor's chats, most recently active first, with unread counts.
func (s *Service) GetChats(ctx context.Context, actorID string) ([]*model.ChatView, *errs.CustomError) {
	chats, err := s.store.ListChatsForUser(ctx, actorID)
	if err != nil {
		return nil, errs.Internal(err)
	}

	views, err := s.chatViews(ctx, chats, actorID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	return views, nil
}

// GetChat returns the chat with the messages visible to the actor, newest first.
// Opening a chat marks everything in it as read by the actor.
func (s *Service) GetChat(ctx context.Context, actorID, chatID string) (*model.ChatDetail, *errs.CustomError) {
	chat, cerr := s.loadMemberChat(ctx, actorID, chatID)
	if cerr != nil {
		return nil, cerr
	}

	s.markOpened(ctx, actorID, chat.ID)

	msgs, err := s.store.ListMessages(ctx, chat.ID, actorID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	msgViews, err := s.messageViews(ctx, msgs)
	if err != nil {
		return nil, errs.Internal(err)
	}

	view, cerr := s.chatView(ctx, chat, actorID)
	if cerr != nil {
		return nil, cerr
	}

	return &model.ChatDetail{ChatView: view, Messages: msgViews}, nil
}

// markOpened read-marks up to the newest message of the chat. Failures are logged only.
func (s *Service) markOpened(ctx context.Context, actorID, chatID string) {
	newest, err := s.store.LatestVisibleMessage(ctx, chatID, "", "")
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error().Err(err).Str("chat_id", chatID).Msg("Failed to resolve newest message")
		}
		return
	}

	if _, err := s.delivery.MarkRead(ctx, delivery.ReadMark{
		ChatID:            chatID,
		UserID:            actorID,
		LastReadMessageID: newest.ID,
	}, nil); err != nil {
		s.log.Error().Err(err).Str("chat_id", chatID).Str("user_id", actorID).Msg("Implicit read mark failed")
	}
}

// loadGroup fetches a group chat and requires actorID to be a member, and an admin when
// adminOnly is set.
func (s *Service) loadGroup(ctx context.Context, actorID, chatID string, adminOnly bool) (*model.Chat, *errs.CustomError) {
	chat, cerr := s.loadChat(ctx, chatID)
	if cerr != nil {
		return nil, cerr
	}
	if !chat.IsGroup {
		return nil, errs.NewError(errs.ErrNotGroupChat)
	}
	if !chat.IsMember(actorID) {
		return nil, errs.NewError(errs.ErrNotChatMember)
	}
	if adminOnly && !chat.IsAdmin(actorID) {
		return nil, errs.NewError(errs.ErrNotGroupAdmin)
	}
	return chat, nil
}

func (s *Service) groupWrite(ctx context.Context, chat *model.Chat, err error, actorID string) (*model.ChatView, *errs.CustomError) {
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrChatNotFound)
		}
		return nil, errs.Internal(err)
	}
	return s.chatView(ctx, chat, actorID)
}

// Rename changes a group's name. Any member may rename.
func (s *Service) Rename(ctx context.Context, actorID, chatID, name string) (*model.ChatView, *errs.CustomError) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.NewError(errs.ErrInvalidChatData)
	}

	if _, cerr := s.loadGroup(ctx, actorID, chatID, false); cerr != nil {
		return nil, cerr
	}

	chat, err := s.store.RenameChat(ctx, chatID, name)
	return s.groupWrite(ctx, chat, err, actorID)
}

// AddMember adds userID to a group. Admin only.
func (s *Service) AddMember(ctx context.Context, actorID, chatID, userID string) (*model.ChatView, *errs.CustomError) {
	chat, cerr := s.loadGroup(ctx, actorID, chatID, true)
	if cerr != nil {
		return nil, cerr
	}
	if chat.IsMember(userID) {
		return nil, errs.NewError(errs.ErrAlreadyMember)
	}
	if cerr := s.requireUsers(ctx, []string{userID}); cerr != nil {
		return nil, cerr
	}

	chat, err := s.store.AddMember(ctx, chatID, userID)
	view, cerr := s.groupWrite(ctx, chat, err, actorID)
	if cerr != nil {
		return nil, cerr
	}

	s.rooms.JoinOnline(chat.ID, []string{userID})
	s.notifier.ToUsers([]string{userID}, realtime.EventNewChat, view)
	return view, nil
}

// RemoveMember removes userID from a group. Admin only.
func (s *Service) RemoveMember(ctx context.Context, actorID, chatID, userID string) (*model.ChatView, *errs.CustomError) {
	chat, cerr := s.loadGroup(ctx, actorID, chatID, true)
	if cerr != nil {
		return nil, cerr
	}
	if !chat.IsMember(userID) {
		return nil, errs.NewError(errs.ErrUserNotInGroup)
	}

	return s.dropMember(ctx, actorID, chatID, userID)
}

// PromoteAdmin makes a member an admin. Admin only.
func (s *Service) PromoteAdmin(ctx context.Context, actorID, chatID, userID string) (*model.ChatView, *errs.CustomError) {
	chat, cerr := s.loadGroup(ctx, actorID, chatID, true)
	if cerr != nil {
		return nil, cerr
	}
	if !chat.IsMember(userID) {
		return nil, errs.NewError(errs.ErrUserNotInGroup)
	}
	if chat.IsAdmin(userID) {
		return nil, errs.NewError(errs.ErrAlreadyAdmin)
	}

	chat, err := s.store.AddAdmin(ctx, chatID, userID)
	if err == nil && !chat.IsAdmin(userID) {
		// Removed between the check and the write.
		return nil, errs.NewError(errs.ErrUserNotInGroup)
	}
	return s.groupWrite(ctx, chat, err, actorID)
}

// DemoteAdmin revokes admin rights. Admin only.
func (s *Service) DemoteAdmin(ctx context.Context, actorID, chatID, userID string) (*model.ChatView, *errs.CustomError) {
	chat, cerr := s.loadGroup(ctx, actorID, chatID, true)
	if cerr != nil {
		return nil, cerr
	}
	if !chat.IsAdmin(userID) {
		return nil, errs.NewError(errs.ErrUserNotAdmin)
	}

	chat, err := s.store.RemoveAdmin(ctx, chatID, userID)
	return s.groupWrite(ctx, chat, err, actorID)
}

// Leave removes the actor from a group. The group is deleted with its messages when the
// last member leaves, in which case the returned view is nil.
func (s *Service) Leave(ctx context.Context, actorID, chatID string) (*model.ChatView, *errs.CustomError) {
	if _, cerr := s.loadGroup(ctx, actorID, chatID, false); cerr != nil {
		return nil, cerr
	}

	return s.dropMember(ctx, actorID, chatID, actorID)
}

// dropMember removes userID and deletes the group when that emptied it. Only the write that
// leaves members empty can observe it, so exactly one concurrent caller deletes.
func (s *Service) dropMember(ctx context.Context, actorID, chatID, userID string) (*model.ChatView, *errs.CustomError) {
	chat, err := s.store.RemoveMember(ctx, chatID, userID)
	if err != nil {
		return s.groupWrite(ctx, nil, err, actorID)
	}
	s.rooms.LeaveOnline(chatID, []string{userID})

	if len(chat.Members) == 0 {
		return nil, s.deleteGroup(ctx, chatID)
	}
	return s.chatView(ctx, chat, actorID)
}

func (s *Service) deleteGroup(ctx context.Context, chatID string) *errs.CustomError {
	deleted, err := s.store.DeleteChatIfEmpty(ctx, chatID)
	if err != nil {
		return errs.Internal(err)
	}
	if deleted {
		s.log.Info().Str("chat_id", chatID).Msg("Group deleted after last member left")
	}
	return nil
}
