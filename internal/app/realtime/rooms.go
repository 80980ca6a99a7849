package realtime

import "sync"

// Rooms maps chat ids to the handles receiving that chat's events.
// It performs no authorization; callers decide who may join.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]Handle
	joined  map[string]map[string]struct{}
}

// NewRooms returns an empty router.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]Handle),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds h to room and reports whether it was newly added.
func (r *Rooms) Join(h Handle, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles, ok := r.members[room]
	if !ok {
		handles = make(map[string]Handle)
		r.members[room] = handles
	}
	if _, ok := handles[h.ID()]; ok {
		return false
	}
	handles[h.ID()] = h

	rooms, ok := r.joined[h.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[h.ID()] = rooms
	}
	rooms[room] = struct{}{}
	return true
}

// Leave removes h from room.
func (r *Rooms) Leave(h Handle, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handles, ok := r.members[room]; ok {
		delete(handles, h.ID())
		if len(handles) == 0 {
			delete(r.members, room)
		}
	}
	if rooms, ok := r.joined[h.ID()]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, h.ID())
		}
	}
}

// LeaveAll removes h from every room it joined.
func (r *Rooms) LeaveAll(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.joined[h.ID()] {
		handles := r.members[room]
		delete(handles, h.ID())
		if len(handles) == 0 {
			delete(r.members, room)
		}
	}
	delete(r.joined, h.ID())
}

// Members returns the handles currently in room.
func (r *Rooms) Members(room string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.members[room]))
	for _, h := range r.members[room] {
		out = append(out, h)
	}
	return out
}

// IsJoined reports whether h is in room.
func (r *Rooms) IsJoined(h Handle, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[room][h.ID()]
	return ok
}

// Count returns the number of non-empty rooms.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members)
}
