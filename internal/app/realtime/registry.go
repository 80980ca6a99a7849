package realtime

import (
	"errors"
	"sort"
	"sync"
)

// ErrMissingUserID rejects handles that carry no identity.
var ErrMissingUserID = errors.New("realtime: handle has no user id")

// Handle is one live session of a user.
type Handle interface {
	// ID is unique per session.
	ID() string
	UserID() string
	// Send queues a frame without blocking and reports whether it was accepted.
	Send(frame []byte) bool
	// Close terminates the session. It is safe to call more than once.
	Close()
}

// Registry maps users to their live handles. It is the only shared mutable view of who is
// connected and is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]map[string]Handle
	byHandle map[string]Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string]map[string]Handle),
		byHandle: make(map[string]Handle),
	}
}

// Register adds h. first reports whether h is the user's only handle afterwards.
// Registering the same handle twice is a no-op that reports first=false.
func (r *Registry) Register(h Handle) (first bool, err error) {
	if h.UserID() == "" {
		return false, ErrMissingUserID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHandle[h.ID()]; ok {
		return false, nil
	}

	handles, ok := r.byUser[h.UserID()]
	if !ok {
		handles = make(map[string]Handle)
		r.byUser[h.UserID()] = handles
	}
	handles[h.ID()] = h
	r.byHandle[h.ID()] = h

	return len(handles) == 1, nil
}

// Unregister removes h. last reports whether the user has no handles left.
// Unknown handles report last=false.
func (r *Registry) Unregister(h Handle) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHandle[h.ID()]; !ok {
		return false
	}
	delete(r.byHandle, h.ID())

	handles := r.byUser[h.UserID()]
	delete(handles, h.ID())
	if len(handles) == 0 {
		delete(r.byUser, h.UserID())
		return true
	}
	return false
}

// Contains reports whether h is registered.
func (r *Registry) Contains(h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byHandle[h.ID()]
	return ok
}

// IsOnline reports whether userID has at least one handle.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser[userID]) > 0
}

// OnlineUserIDs returns the connected user ids in sorted order.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Handles returns the live handles of userID.
func (r *Registry) Handles(userID string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.byUser[userID]))
	for _, h := range r.byUser[userID] {
		out = append(out, h)
	}
	return out
}

// All returns every live handle.
func (r *Registry) All() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.byHandle))
	for _, h := range r.byHandle {
		out = append(out, h)
	}
	return out
}

// Count returns the number of live handles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byHandle)
}
