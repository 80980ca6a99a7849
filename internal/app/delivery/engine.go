/*
Package delivery maintains the per-message deliveredTo and readBy sets.

Both sets only grow. Every mutation is a set union performed by the store, so repeated or
concurrent calls converge to the same state and retries are never needed.
*/
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/store"
	"chatterbox/internal/pkg/logx"
	"chatterbox/internal/pkg/telemetry"
)

var (
	// ErrCutoffNotFound means the acknowledged message does not exist in the chat.
	ErrCutoffNotFound = errors.New("delivery: read cutoff message not found in chat")

	// ErrNotMember means the reader does not belong to the chat.
	ErrNotMember = errors.New("delivery: user is not a member of the chat")
)

// Store is the persistence the engine needs.
type Store interface {
	GetChat(ctx context.Context, id string) (*model.Chat, error)
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	MarkDeliveredForUser(ctx context.Context, userID string) ([]string, error)
	MarkReadUpTo(ctx context.Context, chatID, userID string, cutoff time.Time) (int, error)
	UnreadCounts(ctx context.Context, userID string, chatIDs []string) (map[string]int, error)
}

// OnlineChecker answers whether a user has a live handle.
type OnlineChecker interface {
	IsOnline(userID string) bool
}

// ChatNotifier fans an event out to a chat room.
type ChatNotifier interface {
	ToChat(chatID, event string, payload any, exclude realtime.Handle) int
}

// ReadMark acknowledges every message of ChatID up to LastReadMessageID.
type ReadMark struct {
	ChatID            string
	UserID            string
	LastReadMessageID string
}

// Engine applies delivery and read transitions and announces them.
type Engine struct {
	store    Store
	online   OnlineChecker
	notifier ChatNotifier
	log      zerolog.Logger

	deliveredChats metric.Int64Counter
	readMessages   metric.Int64Counter
}

// NewEngine wires an engine.
func NewEngine(s Store, online OnlineChecker, notifier ChatNotifier) *Engine {
	return &Engine{
		store:          s,
		online:         online,
		notifier:       notifier,
		log:            logx.Component("delivery"),
		deliveredChats: telemetry.Counter("chatterbox.delivery.chats_delivered", "Chats with messages newly delivered on connect"),
		readMessages:   telemetry.Counter("chatterbox.delivery.messages_read", "Messages newly marked read"),
	}
}

// MarkDeliveredOnConnect adds userID to deliveredTo on every pending message in the user's
// chats and announces messages-delivered to each touched chat, skipping exclude.
func (e *Engine) MarkDeliveredOnConnect(ctx context.Context, userID string, exclude realtime.Handle) ([]string, error) {
	touched, err := e.store.MarkDeliveredForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("mark delivered for %s: %w", userID, err)
	}

	for _, chatID := range touched {
		e.notifier.ToChat(chatID, realtime.EventMessagesDelivered,
			realtime.DeliveredPayload{ChatID: chatID, UserID: userID}, exclude)
	}

	if len(touched) > 0 {
		e.deliveredChats.Add(ctx, int64(len(touched)))
		e.log.Debug().Str("user_id", userID).Int("chats", len(touched)).Msg("Retroactive delivery applied")
	}
	return touched, nil
}

// DeliveredSnapshot returns the members other than senderID that are online right now.
func (e *Engine) DeliveredSnapshot(chat *model.Chat, senderID string) []string {
	out := []string{}
	for _, id := range chat.OtherMembers(senderID) {
		if e.online.IsOnline(id) {
			out = append(out, id)
		}
	}
	return out
}

// MarkRead adds mark.UserID to readBy on every message of the chat created at or before the
// cutoff message and sent by someone else. When anything changed, messages-read-by-user is
// announced to the chat room, skipping exclude. It returns the number of messages changed.
func (e *Engine) MarkRead(ctx context.Context, mark ReadMark, exclude realtime.Handle) (int, error) {
	chat, err := e.store.GetChat(ctx, mark.ChatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrNotMember
		}
		return 0, fmt.Errorf("load chat %s: %w", mark.ChatID, err)
	}
	if !chat.IsMember(mark.UserID) {
		return 0, ErrNotMember
	}

	cutoff, err := e.store.GetMessage(ctx, mark.LastReadMessageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrCutoffNotFound
		}
		return 0, fmt.Errorf("load cutoff %s: %w", mark.LastReadMessageID, err)
	}
	if cutoff.ChatID != mark.ChatID {
		return 0, ErrCutoffNotFound
	}

	changed, err := e.store.MarkReadUpTo(ctx, mark.ChatID, mark.UserID, cutoff.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("mark read in %s: %w", mark.ChatID, err)
	}

	if changed > 0 {
		e.readMessages.Add(ctx, int64(changed))
		e.notifier.ToChat(mark.ChatID, realtime.EventMessagesReadByUser, realtime.ReadByUserPayload{
			ChatID:            mark.ChatID,
			UserID:            mark.UserID,
			LastReadMessageID: mark.LastReadMessageID,
		}, exclude)
	}
	return changed, nil
}

// UnreadCounts returns per-chat unread counts for userID.
func (e *Engine) UnreadCounts(ctx context.Context, userID string, chatIDs []string) (map[string]int, error) {
	return e.store.UnreadCounts(ctx, userID, chatIDs)
}
