/*
Package chat implements chat and message lifecycles.

Writes are persisted first and announced afterwards. Delivery snapshots and read marks are
delegated to the delivery engine, live fan-out to the broadcaster. Every method returns a
*errs.CustomError suitable for the REST layer.
*/
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"chatterbox/internal/app/delivery"
	"chatterbox/internal/app/model"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/storage"
	"chatterbox/internal/app/store"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/logx"
)

// MaxTextBytes bounds the text of a message.
const MaxTextBytes = 5000

// Delivery is the part of the delivery engine the service drives.
type Delivery interface {
	DeliveredSnapshot(chat *model.Chat, senderID string) []string
	MarkRead(ctx context.Context, mark delivery.ReadMark, exclude realtime.Handle) (int, error)
	UnreadCounts(ctx context.Context, userID string, chatIDs []string) (map[string]int, error)
}

// Notifier fans events out to live sessions.
type Notifier interface {
	ToUsers(userIDs []string, event string, payload any) int
}

// RoomMembership keeps live sessions in step with chat membership.
type RoomMembership interface {
	JoinOnline(chatID string, userIDs []string)
	LeaveOnline(chatID string, userIDs []string)
}

// Service is the chat and message service.
type Service struct {
	store          store.Store
	files          storage.Service
	delivery       Delivery
	notifier       Notifier
	rooms          RoomMembership
	maxUploadBytes int64
	now            func() time.Time
	log            zerolog.Logger
}

// Options configures NewService.
type Options struct {
	MaxUploadBytes int64
}

// NewService wires a service.
func NewService(
	s store.Store,
	files storage.Service,
	d Delivery,
	notifier Notifier,
	rooms RoomMembership,
	opts Options,
) *Service {
	return &Service{
		store:          s,
		files:          files,
		delivery:       d,
		notifier:       notifier,
		rooms:          rooms,
		maxUploadBytes: opts.MaxUploadBytes,
		now:            func() time.Time { return time.Now().UTC() },
		log:            logx.Component("chat"),
	}
}

// loadChat fetches chatID and maps a miss to ErrChatNotFound.
func (s *Service) loadChat(ctx context.Context, chatID string) (*model.Chat, *errs.CustomError) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrChatNotFound)
		}
		return nil, errs.Internal(err)
	}
	return chat, nil
}

// loadMemberChat fetches chatID and requires actorID to be a member.
func (s *Service) loadMemberChat(ctx context.Context, actorID, chatID string) (*model.Chat, *errs.CustomError) {
	chat, cerr := s.loadChat(ctx, chatID)
	if cerr != nil {
		return nil, cerr
	}
	if !chat.IsMember(actorID) {
		return nil, errs.NewError(errs.ErrNotChatMember)
	}
	return chat, nil
}

// loadMessage fetches messageID and maps a miss to ErrMessageNotFound.
func (s *Service) loadMessage(ctx context.Context, messageID string) (*model.Message, *errs.CustomError) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrMessageNotFound)
		}
		return nil, errs.Internal(err)
	}
	return msg, nil
}

// usersByID loads ids into a lookup map.
func (s *Service) usersByID(ctx context.Context, ids []string) (map[string]*model.User, error) {
	if len(ids) == 0 {
		return map[string]*model.User{}, nil
	}
	users, err := s.store.GetUsers(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, err
	}
	return lo.KeyBy(users, func(u *model.User) string { return u.ID }), nil
}

func pick(users map[string]*model.User, ids []string) []*model.User {
	out := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

// chatViews populates members, admins, latest message and unread counts for viewer.
func (s *Service) chatViews(ctx context.Context, chats []*model.Chat, viewer string) ([]*model.ChatView, error) {
	latest := make(map[string]*model.Message, len(chats))
	userIDs := []string{}

	for _, c := range chats {
		userIDs = append(userIDs, c.Members...)
		userIDs = append(userIDs, c.Admins...)

		if c.LatestMessageID == "" {
			continue
		}
		msg, err := s.store.GetMessage(ctx, c.LatestMessageID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		latest[c.ID] = msg
		userIDs = append(userIDs, msg.SenderID)
	}

	users, err := s.usersByID(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	unread := map[string]int{}
	if viewer != "" {
		chatIDs := lo.Map(chats, func(c *model.Chat, _ int) string { return c.ID })
		if unread, err = s.delivery.UnreadCounts(ctx, viewer, chatIDs); err != nil {
			return nil, err
		}
	}

	views := make([]*model.ChatView, 0, len(chats))
	for _, c := range chats {
		view := &model.ChatView{
			ID:          c.ID,
			IsGroup:     c.IsGroup,
			Name:        c.Name,
			Description: c.Description,
			Members:     pick(users, c.Members),
			Admins:      pick(users, c.Admins),
			CreatedBy:   c.CreatedBy,
			UnreadCount: unread[c.ID],
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		}
		if msg, ok := latest[c.ID]; ok {
			view.LatestMessage = &model.MessageView{Message: *msg, Sender: users[msg.SenderID]}
		}
		views = append(views, view)
	}
	return views, nil
}

// chatView is chatViews for a single chat.
func (s *Service) chatView(ctx context.Context, chat *model.Chat, viewer string) (*model.ChatView, *errs.CustomError) {
	views, err := s.chatViews(ctx, []*model.Chat{chat}, viewer)
	if err != nil {
		return nil, errs.Internal(err)
	}
	return views[0], nil
}

// messageViews attaches senders to msgs.
func (s *Service) messageViews(ctx context.Context, msgs []*model.Message) ([]*model.MessageView, error) {
	users, err := s.usersByID(ctx, lo.Map(msgs, func(m *model.Message, _ int) string { return m.SenderID }))
	if err != nil {
		return nil, err
	}

	views := make([]*model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, &model.MessageView{Message: *m, Sender: users[m.SenderID]})
	}
	return views, nil
}
