/*
Package gateway drives live sessions: it opens and closes them through the presence tracker
and dispatches inbound events.

A malformed or unauthorized event is logged and dropped, and the sender may get an error event.
The connection always stays up. Panics are recovered per event.
*/
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"chatterbox/internal/app/delivery"
	"chatterbox/internal/app/model"
	"chatterbox/internal/app/presence"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/store"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/logx"
	"chatterbox/internal/pkg/req"
	"chatterbox/internal/pkg/telemetry"
)

// eventTimeout bounds the storage work of one inbound event.
const eventTimeout = 10 * time.Second

// ChatLookup loads chats for membership checks.
type ChatLookup interface {
	GetChat(ctx context.Context, id string) (*model.Chat, error)
}

// ReadMarker applies read acknowledgements.
type ReadMarker interface {
	MarkRead(ctx context.Context, mark delivery.ReadMark, exclude realtime.Handle) (int, error)
}

// Gateway implements realtime.Session.
type Gateway struct {
	tracker     *presence.Tracker
	rooms       *realtime.Rooms
	broadcaster *realtime.Broadcaster
	reads       ReadMarker
	chats       ChatLookup
	log         zerolog.Logger

	events metric.Int64Counter
}

var _ realtime.Session = (*Gateway)(nil)

// New wires a gateway.
func New(
	tracker *presence.Tracker,
	rooms *realtime.Rooms,
	broadcaster *realtime.Broadcaster,
	reads ReadMarker,
	chats ChatLookup,
) *Gateway {
	return &Gateway{
		tracker:     tracker,
		rooms:       rooms,
		broadcaster: broadcaster,
		reads:       reads,
		chats:       chats,
		log:         logx.Component("gateway"),
		events:      telemetry.Counter("chatterbox.gateway.events", "Inbound live-channel events by outcome"),
	}
}

// Open registers a freshly upgraded session.
func (g *Gateway) Open(ctx context.Context, h realtime.Handle) error {
	return g.tracker.Connect(ctx, h)
}

// Disconnect implements realtime.Session.
func (g *Gateway) Disconnect(ctx context.Context, h realtime.Handle) {
	defer g.recoverPanic(h, "disconnect")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	g.tracker.Disconnect(ctx, h)
}

// Receive implements realtime.Session.
func (g *Gateway) Receive(ctx context.Context, h realtime.Handle, frame []byte) {
	var env realtime.Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		g.reject(h, "", "malformed envelope", err)
		return
	}

	defer g.recoverPanic(h, env.Event)

	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	switch env.Event {
	case realtime.EventJoinChat:
		var p realtime.JoinChatPayload
		if !g.decode(h, env, &p) {
			return
		}
		g.joinChat(ctx, h, p)

	case realtime.EventTyping, realtime.EventStopTyping:
		var p realtime.TypingPayload
		if !g.decode(h, env, &p) {
			return
		}
		g.relayTyping(ctx, h, env.Event, p)

	case realtime.EventMessagesRead:
		var p realtime.MessagesReadPayload
		if !g.decode(h, env, &p) {
			return
		}
		g.messagesRead(ctx, h, p)

	default:
		g.reject(h, env.Event, "unknown event", nil)
	}
}

func (g *Gateway) decode(h realtime.Handle, env realtime.Envelope, dst any) bool {
	if len(env.Data) == 0 {
		g.reject(h, env.Event, "missing payload", nil)
		return false
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		g.reject(h, env.Event, "invalid payload", err)
		return false
	}
	if verr := req.Validate(dst); verr != nil {
		g.reject(h, env.Event, "payload failed validation", verr)
		return false
	}
	return true
}

func (g *Gateway) joinChat(ctx context.Context, h realtime.Handle, p realtime.JoinChatPayload) {
	chat, err := g.chats.GetChat(ctx, p.ChatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.refuse(h, realtime.EventJoinChat, errs.NewError(errs.ErrChatNotFound))
			return
		}
		g.fail(h, realtime.EventJoinChat, p.ChatID, err)
		return
	}
	if !chat.IsMember(h.UserID()) {
		g.refuse(h, realtime.EventJoinChat, errs.NewError(errs.ErrNotChatMember))
		return
	}

	g.rooms.Join(h, chat.ID)
	g.broadcaster.ToHandle(h, realtime.EventChatJoined, realtime.ChatJoinedPayload{ChatID: chat.ID, UserID: h.UserID()})
	g.count(ctx, realtime.EventJoinChat, "ok")
}

func (g *Gateway) relayTyping(ctx context.Context, h realtime.Handle, event string, p realtime.TypingPayload) {
	if !g.rooms.IsJoined(h, p.ChatID) {
		g.reject(h, event, "typing relay for a chat the session has not joined", nil)
		return
	}

	g.broadcaster.ToChat(p.ChatID, event, p, h)
	g.count(ctx, event, "ok")
}

func (g *Gateway) messagesRead(ctx context.Context, h realtime.Handle, p realtime.MessagesReadPayload) {
	if p.UserID != "" && p.UserID != h.UserID() {
		g.reject(h, realtime.EventMessagesRead, "read acknowledgement for another user", nil)
		return
	}

	_, err := g.reads.MarkRead(ctx, delivery.ReadMark{
		ChatID:            p.ChatID,
		UserID:            h.UserID(),
		LastReadMessageID: p.LastReadMessageID,
	}, h)

	switch {
	case err == nil:
		g.count(ctx, realtime.EventMessagesRead, "ok")
	case errors.Is(err, delivery.ErrCutoffNotFound):
		g.refuse(h, realtime.EventMessagesRead, errs.NewError(errs.ErrMessageNotFound))
	case errors.Is(err, delivery.ErrNotMember):
		g.refuse(h, realtime.EventMessagesRead, errs.NewError(errs.ErrNotChatMember))
	default:
		g.fail(h, realtime.EventMessagesRead, p.ChatID, err)
	}
}

// reject drops a malformed or disallowed event.
func (g *Gateway) reject(h realtime.Handle, event, reason string, err error) {
	g.log.Warn().Err(err).
		Str("client_id", h.ID()).
		Str("user_id", h.UserID()).
		Str("event", event).
		Msg("Dropping inbound event: " + reason)
	g.count(context.Background(), event, "rejected")
}

// refuse tells the sender why a well-formed event had no effect.
func (g *Gateway) refuse(h realtime.Handle, event string, customErr *errs.CustomError) {
	g.log.Info().
		Str("client_id", h.ID()).
		Str("user_id", h.UserID()).
		Str("event", event).
		Int("code", customErr.Code).
		Msg("Inbound event refused")
	g.broadcaster.ToHandle(h, realtime.EventError, realtime.ErrorPayload{
		Event:   event,
		Code:    customErr.Code,
		Message: customErr.Message,
	})
	g.count(context.Background(), event, "refused")
}

// fail logs a storage failure; the event is abandoned without retry.
func (g *Gateway) fail(h realtime.Handle, event, chatID string, err error) {
	g.log.Error().Err(err).
		Str("client_id", h.ID()).
		Str("user_id", h.UserID()).
		Str("chat_id", chatID).
		Str("event", event).
		Msg("Inbound event failed")
	g.count(context.Background(), event, "failed")
}

func (g *Gateway) recoverPanic(h realtime.Handle, event string) {
	if r := recover(); r != nil {
		g.log.Error().
			Interface("panic", r).
			Str("client_id", h.ID()).
			Str("user_id", h.UserID()).
			Str("event", event).
			Msg("Recovered panic in live-channel handler")
		g.count(context.Background(), event, "panic")
	}
}

func (g *Gateway) count(ctx context.Context, event, outcome string) {
	g.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	))
}
