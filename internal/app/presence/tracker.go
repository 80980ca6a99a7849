/*
Package presence turns connection lifecycle into user presence.

The first handle of a user marks them online; losing the last handle marks them offline and
stamps lastSeen. Connect and disconnect for the same user are serialized so persisted status
always follows the registry.
*/
package presence

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/pkg/logx"
	"chatterbox/internal/pkg/telemetry"
)

const lockStripes = 64

// Store is the persistence presence needs.
type Store interface {
	SetPresence(ctx context.Context, id string, status model.Status, lastSeen *time.Time) error
	ChatIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// Deliverer applies retroactive delivery for a freshly connected user.
type Deliverer interface {
	MarkDeliveredOnConnect(ctx context.Context, userID string, exclude realtime.Handle) ([]string, error)
}

// Tracker coordinates registry, rooms and presence broadcasts.
type Tracker struct {
	registry    *realtime.Registry
	rooms       *realtime.Rooms
	broadcaster *realtime.Broadcaster
	store       Store
	deliverer   Deliverer
	now         func() time.Time
	log         zerolog.Logger

	stripes [lockStripes]sync.Mutex

	connections metric.Int64UpDownCounter
}

// NewTracker wires a tracker.
func NewTracker(
	registry *realtime.Registry,
	rooms *realtime.Rooms,
	broadcaster *realtime.Broadcaster,
	s Store,
	deliverer Deliverer,
) *Tracker {
	return &Tracker{
		registry:    registry,
		rooms:       rooms,
		broadcaster: broadcaster,
		store:       s,
		deliverer:   deliverer,
		now:         time.Now,
		log:         logx.Component("presence"),
		connections: telemetry.UpDownCounter("chatterbox.realtime.connections", "Live WebSocket sessions"),
	}
}

func (t *Tracker) lockUser(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &t.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// Connect registers h, joins it to the user's chat rooms, applies presence and retroactive
// delivery, and finally sends setup to h. Handles without a user id are closed and rejected.
func (t *Tracker) Connect(ctx context.Context, h realtime.Handle) error {
	unlock := t.lockUser(h.UserID())
	defer unlock()

	known := t.registry.Contains(h)
	first, err := t.registry.Register(h)
	if err != nil {
		h.Close()
		return err
	}
	if !known {
		t.connections.Add(ctx, 1)
	}

	log := t.log.With().Str("user_id", h.UserID()).Str("client_id", h.ID()).Logger()

	chatIDs, err := t.store.ChatIDsForUser(ctx, h.UserID())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load chats for new connection")
	}
	for _, chatID := range chatIDs {
		t.rooms.Join(h, chatID)
	}

	if first {
		if err := t.store.SetPresence(ctx, h.UserID(), model.StatusOnline, nil); err != nil {
			log.Error().Err(err).Msg("Failed to persist online status")
		}
	}

	if _, err := t.deliverer.MarkDeliveredOnConnect(ctx, h.UserID(), h); err != nil {
		log.Error().Err(err).Msg("Retroactive delivery failed")
	}

	t.broadcaster.ToAll(realtime.EventOnlineUsers, t.registry.OnlineUserIDs())
	t.broadcaster.ToHandle(h, realtime.EventSetup, nil)

	log.Info().Bool("first_session", first).Int("chats", len(chatIDs)).Msg("Client connected")
	return nil
}

// Disconnect removes h. Only the loss of the user's last handle changes presence.
func (t *Tracker) Disconnect(ctx context.Context, h realtime.Handle) {
	unlock := t.lockUser(h.UserID())
	defer unlock()

	t.rooms.LeaveAll(h)
	wasRegistered := t.registry.Contains(h)
	last := t.registry.Unregister(h)
	if wasRegistered {
		t.connections.Add(ctx, -1)
	}

	log := t.log.With().Str("user_id", h.UserID()).Str("client_id", h.ID()).Logger()
	if !last {
		log.Debug().Msg("Client disconnected, other sessions remain")
		return
	}

	lastSeen := t.now()
	if err := t.store.SetPresence(ctx, h.UserID(), model.StatusOffline, &lastSeen); err != nil {
		log.Error().Err(err).Msg("Failed to persist offline status")
	}

	t.broadcaster.ToAll(realtime.EventOnlineUsers, t.registry.OnlineUserIDs())

	chatIDs, err := t.store.ChatIDsForUser(ctx, h.UserID())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load chats for presence update")
	}
	update := realtime.UserUpdatePayload{
		UserID:  h.UserID(),
		Updates: realtime.PresenceUpdates(string(model.StatusOffline), lastSeen),
	}
	for _, chatID := range chatIDs {
		t.broadcaster.ToChat(chatID, realtime.EventUpdateUser, update, nil)
	}

	log.Info().Time("last_seen", lastSeen).Msg("User went offline")
}

// JoinOnline joins every live handle of userIDs to chatID.
func (t *Tracker) JoinOnline(chatID string, userIDs []string) {
	for _, id := range userIDs {
		for _, h := range t.registry.Handles(id) {
			t.rooms.Join(h, chatID)
		}
	}
}

// LeaveOnline removes every live handle of userIDs from chatID.
func (t *Tracker) LeaveOnline(chatID string, userIDs []string) {
	for _, id := range userIDs {
		for _, h := range t.registry.Handles(id) {
			t.rooms.Leave(h, chatID)
		}
	}
}

// CloseAll closes every live handle.
func (t *Tracker) CloseAll() {
	for _, h := range t.registry.All() {
		h.Close()
	}
}
