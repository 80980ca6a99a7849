/*
Package storetest holds the behaviour every store.Store backend must share.

Each test creates its own users with random ids, so the suite can run against a database that
already holds data.
*/
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/store"
	"chatterbox/internal/pkg/randx"
)

// Run executes the suite against the store returned by open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	tests := map[string]func(t *testing.T, s store.Store){
		"users":             testUsers,
		"direct uniqueness": testDirectUniqueness,
		"chat updates":      testChatUpdates,
		"membership":        testMembership,
		"concurrent leaves": testConcurrentLeaves,
		"delete emptied":    testDeleteEmptiedDirect,
		"message listing":   testMessageListing,
		"tombstone":         testTombstone,
		"delivery":          testDelivery,
		"read marks":        testReadMarks,
		"parallel reads":    testConcurrentReadMarks,
	}

	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func base() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newUser(t *testing.T, s store.Store, name string) *model.User {
	t.Helper()
	now := base()
	u := &model.User{
		ID:        randx.ID(),
		Username:  name,
		Email:     name + "-" + randx.ID() + "@example.com",
		Status:    model.StatusOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func newChat(t *testing.T, s store.Store, group bool, members ...string) *model.Chat {
	t.Helper()
	now := base()
	c := &model.Chat{
		ID:        randx.ID(),
		IsGroup:   group,
		Members:   members,
		Admins:    []string{},
		CreatedBy: members[0],
		CreatedAt: now,
		UpdatedAt: now,
	}
	if group {
		c.Name = "group"
		c.Admins = []string{members[0]}
	} else {
		c.DirectKey = model.DirectKey(members[0], members[1])
	}
	require.NoError(t, s.CreateChat(context.Background(), c))
	return c
}

func newMessage(t *testing.T, s store.Store, chatID, senderID string, at time.Time) *model.Message {
	t.Helper()
	m := &model.Message{
		ID:          randx.ID(),
		ChatID:      chatID,
		SenderID:    senderID,
		Text:        "hello",
		Attachments: []model.Attachment{},
		CreatedAt:   at,
		DeletedFor:  []string{},
		DeliveredTo: []string{},
		ReadBy:      []string{},
	}
	require.NoError(t, s.CreateMessage(context.Background(), m))
	return m
}

func testUsers(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")

	// Email lookups ignore case and duplicates are refused
	got, err := s.GetUserByEmail(ctx, alice.Email)
	req.NoError(err)
	req.Equal(alice.ID, got.ID)

	dup := *bob
	dup.ID = randx.ID()
	dup.Email = alice.Email
	req.ErrorIs(s.CreateUser(ctx, &dup), store.ErrDuplicate)

	_, err = s.GetUser(ctx, randx.ID())
	req.ErrorIs(err, store.ErrNotFound)

	users, err := s.GetUsers(ctx, []string{alice.ID, bob.ID, randx.ID()})
	req.NoError(err)
	req.Len(users, 2)

	// Profile updates touch only the given fields
	bio := "hi there"
	updated, err := s.UpdateProfile(ctx, alice.ID, store.ProfileUpdate{Bio: &bio})
	req.NoError(err)
	req.Equal("hi there", updated.Bio)
	req.Equal("alice", updated.Username)

	_, err = s.UpdateProfile(ctx, randx.ID(), store.ProfileUpdate{Bio: &bio})
	req.ErrorIs(err, store.ErrNotFound)

	seen := base()
	req.NoError(s.SetPresence(ctx, alice.ID, model.StatusOffline, &seen))
	got, err = s.GetUser(ctx, alice.ID)
	req.NoError(err)
	req.Equal(model.StatusOffline, got.Status)
	req.NotNil(got.LastSeen)
	req.True(seen.Equal(*got.LastSeen))

	others, err := s.ListUsersExcept(ctx, alice.ID)
	req.NoError(err)
	for _, u := range others {
		req.NotEqual(alice.ID, u.ID)
	}
}

func testDirectUniqueness(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	direct := newChat(t, s, false, alice.ID, bob.ID)

	// The pair is unordered
	found, err := s.FindDirectChat(ctx, bob.ID, alice.ID)
	req.NoError(err)
	req.Equal(direct.ID, found.ID)

	again := &model.Chat{
		ID:        randx.ID(),
		Members:   []string{bob.ID, alice.ID},
		Admins:    []string{},
		CreatedBy: bob.ID,
		DirectKey: model.DirectKey(bob.ID, alice.ID),
		CreatedAt: base(),
		UpdatedAt: base(),
	}
	req.ErrorIs(s.CreateChat(ctx, again), store.ErrDuplicate)

	// Groups with the same members are unrestricted
	newChat(t, s, true, alice.ID, bob.ID)
	newChat(t, s, true, alice.ID, bob.ID)

	ids, err := s.ChatIDsForUser(ctx, alice.ID)
	req.NoError(err)
	req.Len(ids, 3)
}

func testChatUpdates(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	carol := newUser(t, s, "carol")
	first := newChat(t, s, true, alice.ID, bob.ID)
	second := newChat(t, s, true, alice.ID, carol.ID)

	renamed, err := s.RenameChat(ctx, first.ID, "renamed")
	req.NoError(err)
	req.Equal("renamed", renamed.Name)
	req.ElementsMatch([]string{alice.ID, bob.ID}, renamed.Members)

	got, err := s.GetChat(ctx, first.ID)
	req.NoError(err)
	req.Equal("renamed", got.Name)
	req.ElementsMatch([]string{alice.ID}, got.Admins)

	_, err = s.RenameChat(ctx, randx.ID(), "nobody")
	req.ErrorIs(err, store.ErrNotFound)

	// The chat with the newest activity lists first
	time.Sleep(5 * time.Millisecond)
	msg := newMessage(t, s, second.ID, carol.ID, base())
	req.NoError(s.SetLatestMessage(ctx, second.ID, msg.ID))

	chats, err := s.ListChatsForUser(ctx, alice.ID)
	req.NoError(err)
	req.Len(chats, 2)
	req.Equal(second.ID, chats[0].ID)
	req.Equal(msg.ID, chats[0].LatestMessageID)

	req.NoError(s.SetLatestMessage(ctx, second.ID, ""))
	got, err = s.GetChat(ctx, second.ID)
	req.NoError(err)
	req.Empty(got.LatestMessageID)

	chats, err = s.ListChatsForUser(ctx, carol.ID)
	req.NoError(err)
	req.Len(chats, 2)
}

func testMembership(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	carol := newUser(t, s, "carol")
	group := newChat(t, s, true, alice.ID, bob.ID)

	// Adding is a set union
	got, err := s.AddMember(ctx, group.ID, carol.ID)
	req.NoError(err)
	req.ElementsMatch([]string{alice.ID, bob.ID, carol.ID}, got.Members)
	got, err = s.AddMember(ctx, group.ID, carol.ID)
	req.NoError(err)
	req.Len(got.Members, 3)

	// Only members can become admins
	stranger := randx.ID()
	got, err = s.AddAdmin(ctx, group.ID, stranger)
	req.NoError(err)
	req.NotContains(got.Admins, stranger)

	got, err = s.AddAdmin(ctx, group.ID, carol.ID)
	req.NoError(err)
	req.ElementsMatch([]string{alice.ID, carol.ID}, got.Admins)
	got, err = s.AddAdmin(ctx, group.ID, carol.ID)
	req.NoError(err)
	req.Len(got.Admins, 2)

	got, err = s.RemoveAdmin(ctx, group.ID, alice.ID)
	req.NoError(err)
	req.Equal([]string{carol.ID}, got.Admins)

	// Removing a member also drops their admin role
	got, err = s.RemoveMember(ctx, group.ID, carol.ID)
	req.NoError(err)
	req.ElementsMatch([]string{alice.ID, bob.ID}, got.Members)
	req.Empty(got.Admins)

	deleted, err := s.DeleteChatIfEmpty(ctx, group.ID)
	req.NoError(err)
	req.False(deleted)

	chats, err := s.ChatIDsForUser(ctx, carol.ID)
	req.NoError(err)
	req.NotContains(chats, group.ID)

	for _, op := range []func(context.Context, string, string) (*model.Chat, error){
		s.AddMember, s.RemoveMember, s.AddAdmin, s.RemoveAdmin,
	} {
		_, err := op(ctx, randx.ID(), alice.ID)
		req.ErrorIs(err, store.ErrNotFound)
	}
}

func testConcurrentLeaves(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()
	members := make([]string, 8)
	for i := range members {
		members[i] = newUser(t, s, "member").ID
	}
	group := newChat(t, s, true, members...)
	msg := newMessage(t, s, group.ID, members[0], base())

	// When every member leaves at once
	emptied := make([]bool, len(members))
	errs := make([]error, len(members))
	var wg sync.WaitGroup
	for i, id := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.RemoveMember(ctx, group.ID, id)
			if err != nil {
				errs[i] = err
				return
			}
			emptied[i] = len(c.Members) == 0
		}()
	}
	wg.Wait()

	// Then no removal is lost and exactly one of them saw the group emptied
	for _, err := range errs {
		req.NoError(err)
	}
	req.Equal(1, lo.Count(emptied, true))

	got, err := s.GetChat(ctx, group.ID)
	req.NoError(err)
	req.Empty(got.Members)
	req.Empty(got.Admins)

	deleted, err := s.DeleteChatIfEmpty(ctx, group.ID)
	req.NoError(err)
	req.True(deleted)

	_, err = s.GetChat(ctx, group.ID)
	req.ErrorIs(err, store.ErrNotFound)
	_, err = s.GetMessage(ctx, msg.ID)
	req.ErrorIs(err, store.ErrNotFound)

	deleted, err = s.DeleteChatIfEmpty(ctx, group.ID)
	req.NoError(err)
	req.False(deleted)
}

func testDeleteEmptiedDirect(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	direct := newChat(t, s, false, alice.ID, bob.ID)

	_, err := s.RemoveMember(ctx, direct.ID, alice.ID)
	req.NoError(err)
	_, err = s.RemoveMember(ctx, direct.ID, bob.ID)
	req.NoError(err)
	deleted, err := s.DeleteChatIfEmpty(ctx, direct.ID)
	req.NoError(err)
	req.True(deleted)

	// The pair may start over
	newChat(t, s, false, bob.ID, alice.ID)
}

func testMessageListing(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	direct := newChat(t, s, false, alice.ID, bob.ID)

	at := base()
	m1 := newMessage(t, s, direct.ID, alice.ID, at)
	m2 := newMessage(t, s, direct.ID, bob.ID, at.Add(time.Second))
	m3 := newMessage(t, s, direct.ID, alice.ID, at.Add(2*time.Second))

	req.NoError(s.AddDeletedFor(ctx, m3.ID, bob.ID))
	req.NoError(s.AddDeletedFor(ctx, m3.ID, bob.ID))
	req.ErrorIs(s.AddDeletedFor(ctx, randx.ID(), bob.ID), store.ErrNotFound)

	got, err := s.GetMessage(ctx, m3.ID)
	req.NoError(err)
	req.Equal([]string{bob.ID}, got.DeletedFor)

	// Newest first, hidden messages skipped per viewer
	forBob, err := s.ListMessages(ctx, direct.ID, bob.ID)
	req.NoError(err)
	req.Equal([]string{m2.ID, m1.ID}, ids(forBob))

	forAlice, err := s.ListMessages(ctx, direct.ID, alice.ID)
	req.NoError(err)
	req.Equal([]string{m3.ID, m2.ID, m1.ID}, ids(forAlice))

	latest, err := s.LatestVisibleMessage(ctx, direct.ID, bob.ID, "")
	req.NoError(err)
	req.Equal(m2.ID, latest.ID)

	latest, err = s.LatestVisibleMessage(ctx, direct.ID, bob.ID, m2.ID)
	req.NoError(err)
	req.Equal(m1.ID, latest.ID)

	latest, err = s.LatestVisibleMessage(ctx, direct.ID, "", "")
	req.NoError(err)
	req.Equal(m3.ID, latest.ID)

	empty := newChat(t, s, true, alice.ID, bob.ID)
	_, err = s.LatestVisibleMessage(ctx, empty.ID, alice.ID, "")
	req.ErrorIs(err, store.ErrNotFound)
}

func testTombstone(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	direct := newChat(t, s, false, alice.ID, bob.ID)
	msg := &model.Message{
		ID:       randx.ID(),
		ChatID:   direct.ID,
		SenderID: alice.ID,
		Text:     "secret",
		Attachments: []model.Attachment{{
			URL: "https://files.test/a.png", Name: "a.png", ContentType: "image/png", Size: 3,
		}},
		CreatedAt:   base(),
		DeletedFor:  []string{},
		DeliveredTo: []string{bob.ID},
		ReadBy:      []string{bob.ID},
	}
	req.NoError(s.CreateMessage(ctx, msg))

	changed, err := s.Tombstone(ctx, msg.ID)
	req.NoError(err)
	req.True(changed)

	changed, err = s.Tombstone(ctx, msg.ID)
	req.NoError(err)
	req.False(changed)

	got, err := s.GetMessage(ctx, msg.ID)
	req.NoError(err)
	req.True(got.IsDeleted)
	req.Equal(model.DeletedText, got.Text)
	req.Empty(got.Attachments)
	req.Equal([]string{bob.ID}, got.DeliveredTo)
	req.Equal([]string{bob.ID}, got.ReadBy)

	_, err = s.Tombstone(ctx, randx.ID())
	req.ErrorIs(err, store.ErrNotFound)
}

func testDelivery(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	carol := newUser(t, s, "carol")
	ab := newChat(t, s, false, alice.ID, bob.ID)
	ac := newChat(t, s, false, alice.ID, carol.ID)

	toBob := newMessage(t, s, ab.ID, alice.ID, base())
	fromBob := newMessage(t, s, ab.ID, bob.ID, base())
	newMessage(t, s, ac.ID, alice.ID, base())

	chats, err := s.MarkDeliveredForUser(ctx, bob.ID)
	req.NoError(err)
	req.Equal([]string{ab.ID}, chats)

	got, err := s.GetMessage(ctx, toBob.ID)
	req.NoError(err)
	req.Equal([]string{bob.ID}, got.DeliveredTo)

	got, err = s.GetMessage(ctx, fromBob.ID)
	req.NoError(err)
	req.Empty(got.DeliveredTo)

	// Nothing left to deliver
	chats, err = s.MarkDeliveredForUser(ctx, bob.ID)
	req.NoError(err)
	req.Empty(chats)
}

func testReadMarks(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	direct := newChat(t, s, false, alice.ID, bob.ID)

	at := base()
	m1 := newMessage(t, s, direct.ID, alice.ID, at)
	newMessage(t, s, direct.ID, bob.ID, at.Add(time.Second))
	m3 := newMessage(t, s, direct.ID, alice.ID, at.Add(2*time.Second))
	newMessage(t, s, direct.ID, alice.ID, at.Add(3*time.Second))

	counts, err := s.UnreadCounts(ctx, bob.ID, []string{direct.ID})
	req.NoError(err)
	req.Equal(3, counts[direct.ID])

	changed, err := s.MarkReadUpTo(ctx, direct.ID, bob.ID, m3.CreatedAt)
	req.NoError(err)
	req.Equal(2, changed)

	changed, err = s.MarkReadUpTo(ctx, direct.ID, bob.ID, m1.CreatedAt)
	req.NoError(err)
	req.Zero(changed)

	counts, err = s.UnreadCounts(ctx, bob.ID, []string{direct.ID, randx.ID()})
	req.NoError(err)
	req.Equal(1, counts[direct.ID])
	req.Len(counts, 2)
}

func testConcurrentReadMarks(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()
	alice := newUser(t, s, "alice")
	carol := newUser(t, s, "carol")
	bob := newUser(t, s, "bob")
	parallel := newChat(t, s, false, alice.ID, bob.ID)
	serial := newChat(t, s, false, carol.ID, bob.ID)

	at := base()
	history := func(chatID, senderID string) []*model.Message {
		msgs := make([]*model.Message, 6)
		for i := range msgs {
			msgs[i] = newMessage(t, s, chatID, senderID, at.Add(time.Duration(i)*time.Second))
		}
		return msgs
	}
	parallelMsgs := history(parallel.ID, alice.ID)
	serialMsgs := history(serial.ID, carol.ID)
	cutoffs := []int{1, 4, 2}

	changed := make([]int, len(cutoffs))
	errs := make([]error, len(cutoffs))
	var wg sync.WaitGroup
	for i, c := range cutoffs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed[i], errs[i] = s.MarkReadUpTo(ctx, parallel.ID, bob.ID, parallelMsgs[c].CreatedAt)
		}()
	}
	wg.Wait()

	serialChanged := 0
	for _, c := range cutoffs {
		n, err := s.MarkReadUpTo(ctx, serial.ID, bob.ID, serialMsgs[c].CreatedAt)
		req.NoError(err)
		serialChanged += n
	}

	for _, err := range errs {
		req.NoError(err)
	}
	req.Equal(5, serialChanged)
	req.Equal(serialChanged, lo.Sum(changed))

	for i := range parallelMsgs {
		p, err := s.GetMessage(ctx, parallelMsgs[i].ID)
		req.NoError(err)
		q, err := s.GetMessage(ctx, serialMsgs[i].ID)
		req.NoError(err)
		req.ElementsMatch(q.ReadBy, p.ReadBy, "message %d", i)
	}
}

func ids(msgs []*model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
