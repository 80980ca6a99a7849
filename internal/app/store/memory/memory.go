/*
Package memory is an in-process store.Store used in development and tests.

Entities are copied on the way in and out so callers never share mutable state with the store.
*/
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/store"
)

type messageRow struct {
	msg model.Message
	seq uint64
}

// Store keeps every entity in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	users    map[string]*model.User
	chats    map[string]*model.Chat
	messages map[string]*messageRow
	directs  map[string]string
	seq      uint64

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]*model.User),
		chats:    make(map[string]*model.Chat),
		messages: make(map[string]*messageRow),
		directs:  make(map[string]string),
		now:      time.Now,
	}
}

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

func copyUser(u *model.User) *model.User {
	c := *u
	if u.LastSeen != nil {
		ls := *u.LastSeen
		c.LastSeen = &ls
	}
	return &c
}

func copyChat(ch *model.Chat) *model.Chat {
	c := *ch
	c.Members = slices.Clone(ch.Members)
	c.Admins = slices.Clone(ch.Admins)
	return &c
}

func copyMessage(m *model.Message) *model.Message {
	c := *m
	c.Attachments = slices.Clone(m.Attachments)
	c.DeletedFor = slices.Clone(m.DeletedFor)
	c.DeliveredTo = slices.Clone(m.DeliveredTo)
	c.ReadBy = slices.Clone(m.ReadBy)
	c.Normalize()
	return &c
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrDuplicate
		}
	}

	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUsers(_ context.Context, ids []string) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.User, 0, len(ids))
	for _, id := range lo.Uniq(ids) {
		if u, ok := s.users[id]; ok {
			out = append(out, copyUser(u))
		}
	}
	return out, nil
}

func (s *Store) ListUsersExcept(_ context.Context, id string) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		if u.ID != id {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateProfile(_ context.Context, id string, upd store.ProfileUpdate) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.ProfilePic != nil {
		u.ProfilePic = *upd.ProfilePic
	}
	u.UpdatedAt = s.now()
	return copyUser(u), nil
}

func (s *Store) SetPresence(_ context.Context, id string, status model.Status, lastSeen *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Status = status
	if lastSeen != nil {
		ls := *lastSeen
		u.LastSeen = &ls
	}
	return nil
}

// --- chats ---

func (s *Store) CreateChat(_ context.Context, c *model.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[c.ID]; ok {
		return store.ErrDuplicate
	}
	if !c.IsGroup {
		if c.DirectKey == "" && len(c.Members) == 2 {
			c.DirectKey = model.DirectKey(c.Members[0], c.Members[1])
		}
		if _, ok := s.directs[c.DirectKey]; ok {
			return store.ErrDuplicate
		}
		s.directs[c.DirectKey] = c.ID
	}

	s.chats[c.ID] = copyChat(c)
	return nil
}

func (s *Store) GetChat(_ context.Context, id string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyChat(c), nil
}

func (s *Store) FindDirectChat(_ context.Context, a, b string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.directs[model.DirectKey(a, b)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyChat(s.chats[id]), nil
}

func (s *Store) ListChatsForUser(_ context.Context, userID string) ([]*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*model.Chat{}
	for _, c := range s.chats {
		if c.IsMember(userID) {
			out = append(out, copyChat(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) ChatIDsForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chatIDsLocked(userID), nil
}

func (s *Store) chatIDsLocked(userID string) []string {
	ids := []string{}
	for id, c := range s.chats {
		if c.IsMember(userID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// updateChat applies fn to the stored chat under the write lock and returns a copy.
func (s *Store) updateChat(chatID string, fn func(c *model.Chat)) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	fn(c)
	c.UpdatedAt = s.now()
	return copyChat(c), nil
}

func (s *Store) RenameChat(_ context.Context, chatID, name string) (*model.Chat, error) {
	return s.updateChat(chatID, func(c *model.Chat) { c.Name = name })
}

func (s *Store) AddMember(_ context.Context, chatID, userID string) (*model.Chat, error) {
	return s.updateChat(chatID, func(c *model.Chat) { c.Members = lo.Union(c.Members, []string{userID}) })
}

func (s *Store) RemoveMember(_ context.Context, chatID, userID string) (*model.Chat, error) {
	return s.updateChat(chatID, func(c *model.Chat) {
		c.Members = lo.Without(c.Members, userID)
		c.Admins = lo.Without(c.Admins, userID)
	})
}

func (s *Store) AddAdmin(_ context.Context, chatID, userID string) (*model.Chat, error) {
	return s.updateChat(chatID, func(c *model.Chat) {
		if c.IsMember(userID) {
			c.Admins = lo.Union(c.Admins, []string{userID})
		}
	})
}

func (s *Store) RemoveAdmin(_ context.Context, chatID, userID string) (*model.Chat, error) {
	return s.updateChat(chatID, func(c *model.Chat) { c.Admins = lo.Without(c.Admins, userID) })
}

func (s *Store) DeleteChatIfEmpty(_ context.Context, chatID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok || len(c.Members) > 0 {
		return false, nil
	}
	s.deleteChatLocked(c)
	return true, nil
}

func (s *Store) SetLatestMessage(_ context.Context, chatID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return store.ErrNotFound
	}
	c.LatestMessageID = messageID
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) deleteChatLocked(c *model.Chat) {
	if c.DirectKey != "" {
		delete(s.directs, c.DirectKey)
	}
	delete(s.chats, c.ID)

	for mid, row := range s.messages {
		if row.msg.ChatID == c.ID {
			delete(s.messages, mid)
		}
	}
}

// --- messages ---

func (s *Store) CreateMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[m.ID]; ok {
		return store.ErrDuplicate
	}
	s.seq++
	s.messages[m.ID] = &messageRow{msg: *copyMessage(m), seq: s.seq}
	return nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyMessage(&row.msg), nil
}

// chatRowsLocked returns the chat's rows newest first.
func (s *Store) chatRowsLocked(chatID string) []*messageRow {
	rows := []*messageRow{}
	for _, row := range s.messages {
		if row.msg.ChatID == chatID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].msg.CreatedAt.Equal(rows[j].msg.CreatedAt) {
			return rows[i].msg.CreatedAt.After(rows[j].msg.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	return rows
}

func (s *Store) ListMessages(_ context.Context, chatID, viewer string) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*model.Message{}
	for _, row := range s.chatRowsLocked(chatID) {
		if !row.msg.IsDeletedFor(viewer) {
			out = append(out, copyMessage(&row.msg))
		}
	}
	return out, nil
}

func (s *Store) LatestVisibleMessage(_ context.Context, chatID, viewer, excludeID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, row := range s.chatRowsLocked(chatID) {
		if row.msg.ID != excludeID && !row.msg.IsDeletedFor(viewer) {
			return copyMessage(&row.msg), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) AddDeletedFor(_ context.Context, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.messages[messageID]
	if !ok {
		return store.ErrNotFound
	}
	row.msg.DeletedFor = lo.Union(row.msg.DeletedFor, []string{userID})
	return nil
}

func (s *Store) Tombstone(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.messages[messageID]
	if !ok {
		return false, store.ErrNotFound
	}
	if row.msg.IsDeleted {
		return false, nil
	}
	row.msg.Tombstone()
	return true, nil
}

func (s *Store) MarkDeliveredForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatIDs := s.chatIDsLocked(userID)
	member := lo.SliceToMap(chatIDs, func(id string) (string, struct{}) { return id, struct{}{} })

	touched := map[string]struct{}{}
	for _, row := range s.messages {
		if _, ok := member[row.msg.ChatID]; !ok {
			continue
		}
		if row.msg.SenderID == userID || row.msg.IsDeliveredTo(userID) {
			continue
		}
		row.msg.DeliveredTo = append(row.msg.DeliveredTo, userID)
		touched[row.msg.ChatID] = struct{}{}
	}

	out := lo.Keys(touched)
	sort.Strings(out)
	return out, nil
}

func (s *Store) MarkReadUpTo(_ context.Context, chatID, userID string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, row := range s.messages {
		if row.msg.ChatID != chatID || row.msg.SenderID == userID {
			continue
		}
		if row.msg.CreatedAt.After(cutoff) || row.msg.IsReadBy(userID) {
			continue
		}
		row.msg.ReadBy = append(row.msg.ReadBy, userID)
		changed++
	}
	return changed, nil
}

func (s *Store) UnreadCounts(_ context.Context, userID string, chatIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(chatIDs))
	for _, id := range chatIDs {
		counts[id] = 0
	}
	for _, row := range s.messages {
		if _, ok := counts[row.msg.ChatID]; !ok {
			continue
		}
		if row.msg.SenderID != userID && !row.msg.IsReadBy(userID) {
			counts[row.msg.ChatID]++
		}
	}
	return counts, nil
}
