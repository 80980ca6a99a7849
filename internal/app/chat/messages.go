package chat

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/storage"
	"chatterbox/internal/app/store"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/randx"
)

// Upload is a file received with a message.
type Upload struct {
	Data []byte
	Name string
}

// SendMessageInput is a new message. Text or File must be present.
type SendMessageInput struct {
	ChatID string  `json:"chatId" validate:"required"`
	Text   string  `json:"text"`
	File   *Upload `json:"-"`
}

// DeleteForMeResult reports a message hidden for one user.
type DeleteForMeResult struct {
	MessageID        string             `json:"messageId"`
	UserID           string             `json:"userId"`
	ChatID           string             `json:"chatId"`
	NewLatestMessage *model.MessageView `json:"newLatestMessage"`
	LatestChanged    bool               `json:"-"`
}

// SendMessage persists a message, points the chat at it and delivers it to every member.
// An attachment is uploaded first; a failed upload leaves no message behind.
func (s *Service) SendMessage(ctx context.Context, actorID string, in SendMessageInput) (*model.MessageView, *errs.CustomError) {
	text := strings.TrimSpace(in.Text)
	if len(text) > MaxTextBytes {
		return nil, errs.NewError(errs.ErrMessageContentTooLong, MaxTextBytes)
	}
	if text == "" && (in.File == nil || len(in.File.Data) == 0) {
		return nil, errs.NewError(errs.ErrEmptyMessage)
	}

	chat, cerr := s.loadMemberChat(ctx, actorID, in.ChatID)
	if cerr != nil {
		return nil, cerr
	}

	attachments := []model.Attachment{}
	if in.File != nil && len(in.File.Data) > 0 {
		att, cerr := s.uploadAttachment(ctx, chat.ID, in.File)
		if cerr != nil {
			return nil, cerr
		}
		attachments = append(attachments, *att)
	}

	msg := &model.Message{
		ID:          randx.ID(),
		ChatID:      chat.ID,
		SenderID:    actorID,
		Text:        text,
		Attachments: attachments,
		CreatedAt:   s.now(),
		DeletedFor:  []string{},
		DeliveredTo: s.delivery.DeliveredSnapshot(chat, actorID),
		ReadBy:      []string{},
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		s.discard(ctx, msg.Attachments)
		return nil, errs.Internal(err)
	}
	if err := s.store.SetLatestMessage(ctx, chat.ID, msg.ID); err != nil {
		s.log.Error().Err(err).Str("chat_id", chat.ID).Str("message_id", msg.ID).Msg("Failed to update latest message")
	}

	views, err := s.messageViews(ctx, []*model.Message{msg})
	if err != nil {
		return nil, errs.Internal(err)
	}
	view := views[0]

	s.notifier.ToUsers(chat.Members, realtime.EventReceiveMessage, view)
	return view, nil
}

func (s *Service) uploadAttachment(ctx context.Context, chatID string, file *Upload) (*model.Attachment, *errs.CustomError) {
	info, cerr := storage.Inspect(file.Data, storage.KindAttachment, s.maxUploadBytes)
	if cerr != nil {
		return nil, cerr
	}

	key, err := storage.ObjectKey("attachments/"+chatID, info.Extension)
	if err != nil {
		return nil, errs.Internal(err)
	}

	url, err := s.files.Upload(ctx, key, info.ContentType, bytes.NewReader(file.Data))
	if err != nil {
		s.log.Error().Err(err).Str("chat_id", chatID).Str("key", key).Msg("Attachment upload failed")
		return nil, errs.NewError(errs.ErrFileStorageFailed)
	}

	name := storage.DisplayName(file.Name)
	if name == "" {
		name = key[strings.LastIndex(key, "/")+1:]
	}

	return &model.Attachment{
		URL:         url,
		Name:        name,
		ContentType: info.ContentType,
		Size:        info.Size,
	}, nil
}

// discard removes uploaded objects. Failures are logged only.
func (s *Service) discard(ctx context.Context, attachments []model.Attachment) {
	for _, a := range attachments {
		if err := s.files.Delete(ctx, a.URL); err != nil {
			s.log.Warn().Err(err).Str("url", a.URL).Msg("Failed to delete attachment object")
		}
	}
}

// DeleteForMe hides a message from the actor. When it was the chat's latest message the
// pointer moves to the newest message still visible to the actor.
func (s *Service) DeleteForMe(ctx context.Context, actorID, messageID string) (*DeleteForMeResult, *errs.CustomError) {
	msg, cerr := s.loadMessage(ctx, messageID)
	if cerr != nil {
		return nil, cerr
	}
	chat, cerr := s.loadMemberChat(ctx, actorID, msg.ChatID)
	if cerr != nil {
		return nil, cerr
	}

	if err := s.store.AddDeletedFor(ctx, msg.ID, actorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrMessageNotFound)
		}
		return nil, errs.Internal(err)
	}

	result := &DeleteForMeResult{MessageID: msg.ID, UserID: actorID, ChatID: chat.ID}
	if chat.LatestMessageID != msg.ID {
		return result, nil
	}

	next, err := s.store.LatestVisibleMessage(ctx, chat.ID, actorID, msg.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		next = nil
	case err != nil:
		return nil, errs.Internal(err)
	}

	nextID := ""
	if next != nil {
		nextID = next.ID
	}
	if err := s.store.SetLatestMessage(ctx, chat.ID, nextID); err != nil {
		return nil, errs.Internal(err)
	}
	result.LatestChanged = true

	if next != nil {
		views, err := s.messageViews(ctx, []*model.Message{next})
		if err != nil {
			return nil, errs.Internal(err)
		}
		result.NewLatestMessage = views[0]
	}
	return result, nil
}

// DeleteForEveryone tombstones a message. Only its sender may do so, and repeating the call
// succeeds without further effect.
func (s *Service) DeleteForEveryone(ctx context.Context, actorID, messageID string) (*model.MessageView, *errs.CustomError) {
	msg, cerr := s.loadMessage(ctx, messageID)
	if cerr != nil {
		return nil, cerr
	}
	if msg.SenderID != actorID {
		return nil, errs.NewError(errs.ErrNotMessageSender)
	}

	chat, cerr := s.loadChat(ctx, msg.ChatID)
	if cerr != nil {
		return nil, cerr
	}

	changed := false
	if !msg.IsDeleted {
		var err error
		if changed, err = s.store.Tombstone(ctx, msg.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, errs.NewError(errs.ErrMessageNotFound)
			}
			return nil, errs.Internal(err)
		}
	}

	if changed {
		s.discard(ctx, msg.Attachments)
	}
	msg.Tombstone()

	views, err := s.messageViews(ctx, []*model.Message{msg})
	if err != nil {
		return nil, errs.Internal(err)
	}

	if changed {
		s.notifier.ToUsers(chat.Members, realtime.EventMessageDeletedEveryone, realtime.MessageDeletedPayload{
			MessageID: msg.ID,
			ChatID:    chat.ID,
		})
		s.log.Info().Str("chat_id", chat.ID).Str("message_id", msg.ID).Msg("Message deleted for everyone")
	}
	return views[0], nil
}
