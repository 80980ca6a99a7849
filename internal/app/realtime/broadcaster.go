package realtime

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"chatterbox/internal/pkg/logx"
	"chatterbox/internal/pkg/telemetry"
)

// Broadcaster fans events out to rooms, users and handles. Delivery is fire-and-forget and
// at most once per handle; nothing is queued for users without a live handle.
type Broadcaster struct {
	registry *Registry
	rooms    *Rooms
	log      zerolog.Logger

	sent    metric.Int64Counter
	dropped metric.Int64Counter
}

// NewBroadcaster returns a broadcaster over registry and rooms.
func NewBroadcaster(registry *Registry, rooms *Rooms) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		rooms:    rooms,
		log:      logx.Component("broadcaster"),
		sent:     telemetry.Counter("chatterbox.realtime.frames_sent", "Frames queued to live handles"),
		dropped:  telemetry.Counter("chatterbox.realtime.frames_dropped", "Frames rejected by full or closed handles"),
	}
}

// ToChat sends to every handle in the chat room except exclude, which may be nil.
func (b *Broadcaster) ToChat(chatID, event string, payload any, exclude Handle) int {
	targets := b.rooms.Members(chatID)
	if exclude != nil {
		kept := targets[:0]
		for _, h := range targets {
			if h.ID() != exclude.ID() {
				kept = append(kept, h)
			}
		}
		targets = kept
	}
	return b.fanout(event, payload, targets)
}

// ToUser sends to every live handle of userID.
func (b *Broadcaster) ToUser(userID, event string, payload any) int {
	return b.fanout(event, payload, b.registry.Handles(userID))
}

// ToUsers sends to every live handle of each user in userIDs.
func (b *Broadcaster) ToUsers(userIDs []string, event string, payload any) int {
	var targets []Handle
	for _, id := range userIDs {
		targets = append(targets, b.registry.Handles(id)...)
	}
	return b.fanout(event, payload, targets)
}

// ToAll sends to every live handle.
func (b *Broadcaster) ToAll(event string, payload any) int {
	return b.fanout(event, payload, b.registry.All())
}

// ToHandle sends to a single handle.
func (b *Broadcaster) ToHandle(h Handle, event string, payload any) bool {
	return b.fanout(event, payload, []Handle{h}) == 1
}

// fanout encodes once and returns how many handles accepted the frame.
func (b *Broadcaster) fanout(event string, payload any, targets []Handle) int {
	if len(targets) == 0 {
		return 0
	}

	frame, err := Encode(event, payload)
	if err != nil {
		b.log.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return 0
	}

	accepted := 0
	for _, h := range targets {
		if h.Send(frame) {
			accepted++
		}
	}

	attrs := metric.WithAttributes(attribute.String("event", event))
	b.sent.Add(context.Background(), int64(accepted), attrs)
	if rejected := len(targets) - accepted; rejected > 0 {
		b.dropped.Add(context.Background(), int64(rejected), attrs)
		b.log.Debug().Str("event", event).Int("rejected", rejected).Msg("Some handles rejected the frame")
	}
	return accepted
}
