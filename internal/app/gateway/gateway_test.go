package gateway_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/app/apptest"
	"chatterbox/internal/app/chat"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/realtime/realtimetest"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/randx"
)

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	b, err := realtime.Encode(event, data)
	require.NoError(t, err)
	return b
}

func lastError(t *testing.T, h *realtimetest.Handle) realtime.ErrorPayload {
	t.Helper()
	refusals := h.Named(realtime.EventError)
	require.NotEmpty(t, refusals)
	var p realtime.ErrorPayload
	require.NoError(t, realtimetest.Decode(refusals[len(refusals)-1], &p))
	return p
}

func TestGateway_JoinChat_Acknowledges_Members(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	conn := app.Connect(t, alice.ID)
	direct := app.Direct(t, alice.ID, bob.ID)
	app.Rooms.Leave(conn, direct.ID)

	// When alice joins with a bare chat id
	raw, err := json.Marshal(realtime.Envelope{Event: realtime.EventJoinChat, Data: json.RawMessage(`"` + direct.ID + `"`)})
	req.NoError(err)
	app.Gateway.Receive(ctx, conn, raw)

	// Then the session is in the room and acknowledged
	req.True(app.Rooms.IsJoined(conn, direct.ID))
	acks := conn.Named(realtime.EventChatJoined)
	req.Len(acks, 1)
	var p realtime.ChatJoinedPayload
	req.NoError(realtimetest.Decode(acks[0], &p))
	req.Equal(realtime.ChatJoinedPayload{ChatID: direct.ID, UserID: alice.ID}, p)
}

func TestGateway_JoinChat_Refuses_Outsiders(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	carol := app.User(t, "carol")
	direct := app.Direct(t, alice.ID, bob.ID)
	conn := app.Connect(t, carol.ID)

	app.Gateway.Receive(ctx, conn, frame(t, realtime.EventJoinChat, realtime.JoinChatPayload{ChatID: direct.ID}))

	req.False(app.Rooms.IsJoined(conn, direct.ID))
	req.Equal(errs.ErrNotChatMember, lastError(t, conn).Code)

	app.Gateway.Receive(ctx, conn, frame(t, realtime.EventJoinChat, realtime.JoinChatPayload{ChatID: randx.ID()}))
	req.Equal(errs.ErrChatNotFound, lastError(t, conn).Code)
}

func TestGateway_Typing_Relayed_To_Others(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	direct := app.Direct(t, alice.ID, bob.ID)
	aliceConn := app.Connect(t, alice.ID)
	bobConn := app.Connect(t, bob.ID)
	aliceConn.Reset()
	bobConn.Reset()

	payload := realtime.TypingPayload{ChatID: direct.ID, User: json.RawMessage(`{"username":"alice"}`)}
	app.Gateway.Receive(ctx, aliceConn, frame(t, realtime.EventTyping, payload))
	app.Gateway.Receive(ctx, aliceConn, frame(t, realtime.EventStopTyping, payload))

	req.Len(bobConn.Named(realtime.EventTyping), 1)
	req.Len(bobConn.Named(realtime.EventStopTyping), 1)
	req.Empty(aliceConn.Events())

	var p realtime.TypingPayload
	req.NoError(realtimetest.Decode(bobConn.Named(realtime.EventTyping)[0], &p))
	req.JSONEq(`{"username":"alice"}`, string(p.User))
}

func TestGateway_Typing_Requires_Joined_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	carol := app.User(t, "carol")
	direct := app.Direct(t, alice.ID, bob.ID)
	bobConn := app.Connect(t, bob.ID)
	carolConn := app.Connect(t, carol.ID)
	bobConn.Reset()

	app.Gateway.Receive(ctx, carolConn, frame(t, realtime.EventTyping, realtime.TypingPayload{ChatID: direct.ID}))

	req.Empty(bobConn.Events())
}

func TestGateway_MessagesRead(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	direct := app.Direct(t, alice.ID, bob.ID)
	aliceConn := app.Connect(t, alice.ID)
	bobConn := app.Connect(t, bob.ID)
	sent := app.Send(t, alice.ID, direct.ID, "hi")
	aliceConn.Reset()

	// When bob acknowledges reading
	app.Gateway.Receive(ctx, bobConn, frame(t, realtime.EventMessagesRead, realtime.MessagesReadPayload{
		ChatID: direct.ID, UserID: bob.ID, LastReadMessageID: sent.ID,
	}))

	// Then the message is read and alice is told
	req.True(app.Message(t, sent.ID).IsReadBy(bob.ID))
	req.Len(aliceConn.Named(realtime.EventMessagesReadByUser), 1)
}

func TestGateway_MessagesRead_For_Another_User_Is_Dropped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	direct := app.Direct(t, alice.ID, bob.ID)
	aliceConn := app.Connect(t, alice.ID)
	sent := app.Send(t, bob.ID, direct.ID, "hi")

	app.Gateway.Receive(ctx, aliceConn, frame(t, realtime.EventMessagesRead, realtime.MessagesReadPayload{
		ChatID: direct.ID, UserID: bob.ID, LastReadMessageID: sent.ID,
	}))

	req.Empty(app.Message(t, sent.ID).ReadBy)
}

func TestGateway_MessagesRead_Unknown_Cutoff_Is_Refused(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	direct := app.Direct(t, alice.ID, bob.ID)
	bobConn := app.Connect(t, bob.ID)

	app.Gateway.Receive(ctx, bobConn, frame(t, realtime.EventMessagesRead, realtime.MessagesReadPayload{
		ChatID: direct.ID, LastReadMessageID: randx.ID(),
	}))

	req.Equal(errs.ErrMessageNotFound, lastError(t, bobConn).Code)
}

func TestGateway_Malformed_Frames_Keep_Session(t *testing.T) {
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	conn := app.Connect(t, alice.ID)

	frames := map[string][]byte{
		"not json":        []byte("{"),
		"missing event":   []byte(`{"data":{}}`),
		"unknown event":   []byte(`{"event":"fly","data":{}}`),
		"missing payload": []byte(`{"event":"typing"}`),
		"wrong shape":     []byte(`{"event":"messages-read","data":[1,2]}`),
		"failed validate": []byte(`{"event":"messages-read","data":{"chatId":"c"}}`),
	}

	for name, raw := range frames {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			conn.Reset()

			app.Gateway.Receive(ctx, conn, raw)

			req.Empty(conn.Events())
			req.False(conn.Closed())
			req.True(app.Registry.Contains(conn))
		})
	}
}

func TestGateway_New_Group_Member_Online_Joins_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	carol := app.User(t, "carol")
	dave := app.User(t, "dave")
	daveConn := app.Connect(t, dave.ID)

	group, _, cerr := app.Chats.CreateChat(ctx, alice.ID, chat.CreateChatInput{
		IsGroup: true, Name: "team", Members: []string{bob.ID, carol.ID},
	})
	req.Nil(cerr)

	// When dave is added while connected
	_, cerr = app.Chats.AddMember(ctx, alice.ID, group.ID, dave.ID)
	req.Nil(cerr)

	// Then dave's session receives the chat and its events
	req.True(app.Rooms.IsJoined(daveConn, group.ID))
	req.Len(daveConn.Named(realtime.EventNewChat), 1)

	// When dave is removed the session leaves the room
	_, cerr = app.Chats.RemoveMember(ctx, alice.ID, group.ID, dave.ID)
	req.Nil(cerr)
	req.False(app.Rooms.IsJoined(daveConn, group.ID))
}

func TestGateway_Disconnect_Survives_Cancelled_Context(t *testing.T) {
	req := require.New(t)
	app := apptest.New()
	alice := app.User(t, "alice")
	conn := app.Connect(t, alice.ID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	app.Gateway.Disconnect(ctx, conn)

	req.False(app.Registry.IsOnline(alice.ID))
}
