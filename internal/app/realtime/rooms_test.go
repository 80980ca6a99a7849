package realtime_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/realtime/realtimetest"
)

func TestRooms_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	rooms := realtime.NewRooms()
	h := realtimetest.NewHandle("alice")

	req.True(rooms.Join(h, "chat-1"))
	req.False(rooms.Join(h, "chat-1"))

	req.Len(rooms.Members("chat-1"), 1)
	req.True(rooms.IsJoined(h, "chat-1"))
	req.Equal(1, rooms.Count())
}

func TestRooms_LeaveAll_Removes_Empty_Rooms(t *testing.T) {
	req := require.New(t)
	rooms := realtime.NewRooms()
	h1 := realtimetest.NewHandle("alice")
	h2 := realtimetest.NewHandle("bob")

	// Given two handles sharing one room and one handle in a second room
	rooms.Join(h1, "chat-1")
	rooms.Join(h1, "chat-2")
	rooms.Join(h2, "chat-1")

	// When the first handle disconnects
	rooms.LeaveAll(h1)

	// Then only the shared room survives
	req.Equal(1, rooms.Count())
	req.False(rooms.IsJoined(h1, "chat-1"))
	req.True(rooms.IsJoined(h2, "chat-1"))
	req.Empty(rooms.Members("chat-2"))
}

func TestRooms_Leave_Single_Room(t *testing.T) {
	req := require.New(t)
	rooms := realtime.NewRooms()
	h := realtimetest.NewHandle("alice")

	rooms.Join(h, "chat-1")
	rooms.Join(h, "chat-2")

	rooms.Leave(h, "chat-1")

	req.False(rooms.IsJoined(h, "chat-1"))
	req.True(rooms.IsJoined(h, "chat-2"))
}
