// Package realtimetest provides an in-memory realtime.Handle for tests.
package realtimetest

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"chatterbox/internal/app/realtime"
)

// Handle records every frame it accepts.
type Handle struct {
	id     string
	userID string

	mu     sync.Mutex
	frames []realtime.Envelope
	closed bool
}

var _ realtime.Handle = (*Handle)(nil)

// NewHandle returns an open handle for userID.
func NewHandle(userID string) *Handle {
	return &Handle{id: uuid.NewString(), userID: userID}
}

func (h *Handle) ID() string     { return h.id }
func (h *Handle) UserID() string { return h.userID }

// Send decodes frame and keeps it. Closed handles reject frames.
func (h *Handle) Send(frame []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	var env realtime.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return false
	}
	h.frames = append(h.frames, env)
	return true
}

func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Events returns the received envelopes in order.
func (h *Handle) Events() []realtime.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]realtime.Envelope(nil), h.frames...)
}

// Named returns the received envelopes with the given event name.
func (h *Handle) Named(event string) []realtime.Envelope {
	out := []realtime.Envelope{}
	for _, env := range h.Events() {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// Reset forgets every received envelope.
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = nil
}

// Decode unmarshals the data of env into dst.
func Decode(env realtime.Envelope, dst any) error {
	return json.Unmarshal(env.Data, dst)
}
