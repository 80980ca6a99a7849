package realtime_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/realtime/realtimetest"
)

func newBroadcaster(t *testing.T, handles ...*realtimetest.Handle) (*realtime.Broadcaster, *realtime.Rooms) {
	t.Helper()
	registry := realtime.NewRegistry()
	rooms := realtime.NewRooms()
	for _, h := range handles {
		_, err := registry.Register(h)
		require.NoError(t, err)
	}
	return realtime.NewBroadcaster(registry, rooms), rooms
}

func TestBroadcaster_ToChat_Excludes_Sender(t *testing.T) {
	req := require.New(t)
	alice := realtimetest.NewHandle("alice")
	bob := realtimetest.NewHandle("bob")
	b, rooms := newBroadcaster(t, alice, bob)
	rooms.Join(alice, "chat-1")
	rooms.Join(bob, "chat-1")

	// When alice types
	n := b.ToChat("chat-1", realtime.EventTyping, realtime.TypingPayload{ChatID: "chat-1"}, alice)

	// Then only bob hears it
	req.Equal(1, n)
	req.Empty(alice.Events())
	req.Len(bob.Named(realtime.EventTyping), 1)

	var p realtime.TypingPayload
	req.NoError(realtimetest.Decode(bob.Events()[0], &p))
	req.Equal("chat-1", p.ChatID)
}

func TestBroadcaster_ToUsers_Reaches_Every_Session(t *testing.T) {
	req := require.New(t)
	alice1 := realtimetest.NewHandle("alice")
	alice2 := realtimetest.NewHandle("alice")
	bob := realtimetest.NewHandle("bob")
	b, _ := newBroadcaster(t, alice1, alice2, bob)

	n := b.ToUsers([]string{"alice", "carol"}, realtime.EventNewChat, map[string]string{"id": "c"})

	req.Equal(2, n)
	req.Len(alice1.Events(), 1)
	req.Len(alice2.Events(), 1)
	req.Empty(bob.Events())
}

func TestBroadcaster_Counts_Only_Accepting_Handles(t *testing.T) {
	req := require.New(t)
	alice := realtimetest.NewHandle("alice")
	bob := realtimetest.NewHandle("bob")
	b, _ := newBroadcaster(t, alice, bob)

	// Given a closed handle still registered
	bob.Close()

	n := b.ToAll(realtime.EventOnlineUsers, []string{"alice", "bob"})

	req.Equal(1, n)
	req.False(b.ToHandle(bob, realtime.EventSetup, nil))
	req.True(b.ToHandle(alice, realtime.EventSetup, nil))
}

func TestEncode_Envelope_Shape(t *testing.T) {
	req := require.New(t)

	frame, err := realtime.Encode(realtime.EventChatJoined, realtime.ChatJoinedPayload{ChatID: "c", UserID: "u"})

	req.NoError(err)
	req.JSONEq(`{"event":"chat joined","data":{"chatId":"c","userId":"u"}}`, string(frame))
}
