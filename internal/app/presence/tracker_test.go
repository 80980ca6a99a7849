package presence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/app/apptest"
	"chatterbox/internal/app/model"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/realtime/realtimetest"
)

func onlineUsers(t *testing.T, h *realtimetest.Handle) [][]string {
	t.Helper()
	out := [][]string{}
	for _, env := range h.Named(realtime.EventOnlineUsers) {
		var ids []string
		require.NoError(t, realtimetest.Decode(env, &ids))
		out = append(out, ids)
	}
	return out
}

func TestTracker_Connect_Marks_Online_And_Sends_Setup(t *testing.T) {
	req := require.New(t)
	app := apptest.New()
	alice := app.User(t, "alice")

	conn := app.Connect(t, alice.ID)

	u, err := app.Store.GetUser(context.Background(), alice.ID)
	req.NoError(err)
	req.Equal(model.StatusOnline, u.Status)
	req.Len(conn.Named(realtime.EventSetup), 1)
	req.Equal([][]string{{alice.ID}}, onlineUsers(t, conn))
}

func TestTracker_Multiple_Sessions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	direct := app.Direct(t, alice.ID, bob.ID)

	bobConn := app.Connect(t, bob.ID)
	laptop := app.Connect(t, alice.ID)
	phone := app.Connect(t, alice.ID)
	bobConn.Reset()

	// When one of alice's sessions ends
	app.Disconnect(laptop)

	// Then alice is still online and nobody is told otherwise
	req.True(app.Registry.IsOnline(alice.ID))
	u, err := app.Store.GetUser(ctx, alice.ID)
	req.NoError(err)
	req.Equal(model.StatusOnline, u.Status)
	req.Nil(u.LastSeen)
	req.Empty(bobConn.Events())

	// When the last session ends
	app.Disconnect(phone)

	// Then alice is offline with lastSeen stamped
	req.False(app.Registry.IsOnline(alice.ID))
	u, err = app.Store.GetUser(ctx, alice.ID)
	req.NoError(err)
	req.Equal(model.StatusOffline, u.Status)
	req.NotNil(u.LastSeen)

	// And bob sees the new online set and a presence patch in the shared chat
	req.Equal([][]string{{bob.ID}}, onlineUsers(t, bobConn))
	updates := bobConn.Named(realtime.EventUpdateUser)
	req.Len(updates, 1)
	var p realtime.UserUpdatePayload
	req.NoError(realtimetest.Decode(updates[0], &p))
	req.Equal(alice.ID, p.UserID)
	req.Equal(string(model.StatusOffline), p.Updates["status"])
	req.Contains(p.Updates, "lastSeen")

	// And the chat room only holds bob
	req.Len(app.Rooms.Members(direct.ID), 1)
}

func TestTracker_Connect_Joins_Chat_Rooms(t *testing.T) {
	req := require.New(t)
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	direct := app.Direct(t, alice.ID, bob.ID)

	conn := app.Connect(t, alice.ID)

	req.True(app.Rooms.IsJoined(conn, direct.ID))
}

func TestTracker_Rejects_Handle_Without_User(t *testing.T) {
	req := require.New(t)
	app := apptest.New()
	h := realtimetest.NewHandle("")

	err := app.Gateway.Open(context.Background(), h)

	req.ErrorIs(err, realtime.ErrMissingUserID)
	req.True(h.Closed())
	req.Zero(app.Registry.Count())
}

func TestTracker_Disconnect_Twice_Is_Harmless(t *testing.T) {
	req := require.New(t)
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	bobConn := app.Connect(t, bob.ID)
	conn := app.Connect(t, alice.ID)

	app.Disconnect(conn)
	bobConn.Reset()
	app.Disconnect(conn)

	req.Empty(bobConn.Events())
}

func TestTracker_CloseAll(t *testing.T) {
	req := require.New(t)
	app := apptest.New()
	a := app.Connect(t, app.User(t, "alice").ID)
	b := app.Connect(t, app.User(t, "bob").ID)

	app.Tracker.CloseAll()

	req.True(a.Closed())
	req.True(b.Closed())
}
