package chat_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/app/apptest"
	"chatterbox/internal/app/chat"
	"chatterbox/internal/app/model"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/realtime/realtimetest"
	"chatterbox/internal/pkg/errs"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func TestSendMessage_Fans_Out_To_Members(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	direct := app.Direct(t, alice.ID, bob.ID)
	aliceConn := app.Connect(t, alice.ID)
	bobConn := app.Connect(t, bob.ID)

	sent := app.Send(t, alice.ID, direct.ID, "  hello  ")

	req.Equal("hello", sent.Text)
	req.Equal(alice.ID, sent.Sender.ID)
	req.Empty(sent.ReadBy)

	// Every member's sessions receive it, the sender's included
	for _, conn := range []*realtimetest.Handle{aliceConn, bobConn} {
		got := conn.Named(realtime.EventReceiveMessage)
		req.Len(got, 1)
		var view model.MessageView
		req.NoError(realtimetest.Decode(got[0], &view))
		req.Equal(sent.ID, view.ID)
		req.Equal("alice", view.Sender.Username)
	}

	c, err := app.Store.GetChat(ctx, direct.ID)
	req.NoError(err)
	req.Equal(sent.ID, c.LatestMessageID)
}

func TestSendMessage_Validation(t *testing.T) {
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	eve := app.User(t, "eve")
	direct := app.Direct(t, alice.ID, bob.ID)

	cases := []struct {
		name  string
		actor string
		input chat.SendMessageInput
		code  int
	}{
		{"empty", alice.ID, chat.SendMessageInput{ChatID: direct.ID, Text: "   "}, errs.ErrEmptyMessage},
		{"too long", alice.ID, chat.SendMessageInput{ChatID: direct.ID, Text: strings.Repeat("x", chat.MaxTextBytes+1)}, errs.ErrMessageContentTooLong},
		{"outsider", eve.ID, chat.SendMessageInput{ChatID: direct.ID, Text: "hi"}, errs.ErrNotChatMember},
		{"unsupported file", alice.ID, chat.SendMessageInput{ChatID: direct.ID, File: &chat.Upload{Data: []byte{0x00, 0x01, 0x02, 0x03}, Name: "x.bin"}}, errs.ErrFileTypeInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, cerr := app.Chats.SendMessage(ctx, tc.actor, tc.input)
			require.NotNil(t, cerr)
			require.Equal(t, tc.code, cerr.Code)
		})
	}
}

func TestSendMessage_With_Attachment(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	direct := app.Direct(t, alice.ID, bob.ID)

	view, cerr := app.Chats.SendMessage(ctx, alice.ID, chat.SendMessageInput{
		ChatID: direct.ID,
		File:   &chat.Upload{Data: pngBytes, Name: "C:\\photos\\cat.png"},
	})

	req.Nil(cerr)
	req.Len(view.Attachments, 1)
	att := view.Attachments[0]
	req.Equal("cat.png", att.Name)
	req.Equal("image/png", att.ContentType)
	req.Equal(int64(len(pngBytes)), att.Size)
	req.True(strings.HasPrefix(att.URL, apptest.FileBaseURL+"attachments/"+direct.ID+"/"))
	req.Equal(1, app.Files.Count())
}

func TestSendMessage_Upload_Failure_Leaves_No_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	direct := app.Direct(t, alice.ID, bob.ID)
	app.Files.FailUploads = true

	_, cerr := app.Chats.SendMessage(ctx, alice.ID, chat.SendMessageInput{
		ChatID: direct.ID,
		Text:   "look",
		File:   &chat.Upload{Data: pngBytes, Name: "cat.png"},
	})

	req.Equal(errs.ErrFileStorageFailed, cerr.Code)
	msgs, err := app.Store.ListMessages(ctx, direct.ID, alice.ID)
	req.NoError(err)
	req.Empty(msgs)
}

func TestDeleteForMe_Moves_Latest_Pointer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	direct := app.Direct(t, alice.ID, bob.ID)
	older := app.Send(t, bob.ID, direct.ID, "older")
	newer := app.Send(t, bob.ID, direct.ID, "newer")

	// Hiding an older message leaves the pointer alone
	result, cerr := app.Chats.DeleteForMe(ctx, bob.ID, older.ID)
	req.Nil(cerr)
	req.False(result.LatestChanged)
	req.Nil(result.NewLatestMessage)

	// When alice hides the newest message
	result, cerr = app.Chats.DeleteForMe(ctx, alice.ID, newer.ID)

	// Then the latest pointer falls back to the previous one
	req.Nil(cerr)
	req.Equal(newer.ID, result.MessageID)
	req.Equal(alice.ID, result.UserID)
	req.Equal(direct.ID, result.ChatID)
	req.True(result.LatestChanged)
	req.Equal(older.ID, result.NewLatestMessage.ID)

	req.True(app.Message(t, newer.ID).IsDeletedFor(alice.ID))
	req.False(app.Message(t, newer.ID).IsDeleted)

	// And each side only sees what it did not hide
	detail, cerr := app.Chats.GetChat(ctx, bob.ID, direct.ID)
	req.Nil(cerr)
	req.Len(detail.Messages, 1)
	req.Equal(newer.ID, detail.Messages[0].ID)

	detail, cerr = app.Chats.GetChat(ctx, alice.ID, direct.ID)
	req.Nil(cerr)
	req.Len(detail.Messages, 1)
	req.Equal(older.ID, detail.Messages[0].ID)
}

func TestDeleteForMe_Requires_Membership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	eve := app.User(t, "eve")
	direct := app.Direct(t, alice.ID, bob.ID)
	sent := app.Send(t, alice.ID, direct.ID, "secret")

	_, cerr := app.Chats.DeleteForMe(ctx, eve.ID, sent.ID)

	req.Equal(errs.ErrNotChatMember, cerr.Code)
}

func TestDeleteForEveryone_Is_Irreversible_And_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	direct := app.Direct(t, alice.ID, bob.ID)
	bobConn := app.Connect(t, bob.ID)

	sent, cerr := app.Chats.SendMessage(ctx, alice.ID, chat.SendMessageInput{
		ChatID: direct.ID,
		Text:   "oops",
		File:   &chat.Upload{Data: pngBytes, Name: "cat.png"},
	})
	req.Nil(cerr)
	_, cerr = app.Chats.GetChat(ctx, bob.ID, direct.ID)
	req.Nil(cerr)

	// Only the sender may delete for everyone
	_, cerr = app.Chats.DeleteForEveryone(ctx, bob.ID, sent.ID)
	req.Equal(errs.ErrNotMessageSender, cerr.Code)

	// When alice deletes it
	view, cerr := app.Chats.DeleteForEveryone(ctx, alice.ID, sent.ID)

	// Then the content is replaced and the object removed
	req.Nil(cerr)
	req.True(view.IsDeleted)
	req.Equal(model.DeletedText, view.Text)
	req.Empty(view.Attachments)
	req.Equal([]string{sent.Attachments[0].URL}, app.Files.Deleted())

	stored := app.Message(t, sent.ID)
	req.True(stored.IsDeleted)
	req.Equal(model.DeletedText, stored.Text)
	req.Empty(stored.Attachments)

	// And receipts are kept
	req.Equal([]string{bob.ID}, stored.DeliveredTo)
	req.Equal([]string{bob.ID}, stored.ReadBy)

	deleted := bobConn.Named(realtime.EventMessageDeletedEveryone)
	req.Len(deleted, 1)
	var p realtime.MessageDeletedPayload
	req.NoError(realtimetest.Decode(deleted[0], &p))
	req.Equal(realtime.MessageDeletedPayload{MessageID: sent.ID, ChatID: direct.ID}, p)

	// When it is deleted again nothing else happens
	view, cerr = app.Chats.DeleteForEveryone(ctx, alice.ID, sent.ID)
	req.Nil(cerr)
	req.True(view.IsDeleted)
	req.Len(bobConn.Named(realtime.EventMessageDeletedEveryone), 1)
	req.Len(app.Files.Deleted(), 1)
}
