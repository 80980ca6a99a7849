/*
Package apptest wires the complete service stack over the in-memory store for tests.
*/
package apptest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/app/chat"
	"chatterbox/internal/app/delivery"
	"chatterbox/internal/app/gateway"
	"chatterbox/internal/app/model"
	"chatterbox/internal/app/presence"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/realtime/realtimetest"
	"chatterbox/internal/app/storage"
	"chatterbox/internal/app/store/memory"
	"chatterbox/internal/app/user"
	"chatterbox/internal/pkg/randx"
)

// FileBaseURL prefixes the URLs handed out by Files.
const FileBaseURL = "https://files.test/"

// ErrUploadRejected is returned by Files when FailUploads is set.
var ErrUploadRejected = errors.New("apptest: upload rejected")

// Files is an in-memory storage.Service.
type Files struct {
	mu          sync.Mutex
	objects     map[string][]byte
	deleted     []string
	FailUploads bool
}

var _ storage.Service = (*Files)(nil)

func NewFiles() *Files {
	return &Files{objects: map[string][]byte{}}
}

func (f *Files) Upload(_ context.Context, key, _ string, body io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailUploads {
		return "", ErrUploadRejected
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.objects[key] = data
	return FileBaseURL + key, nil
}

func (f *Files) Delete(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, ok := strings.CutPrefix(url, FileBaseURL)
	if !ok {
		return nil
	}
	delete(f.objects, key)
	f.deleted = append(f.deleted, url)
	return nil
}

// Count returns the number of stored objects.
func (f *Files) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// Deleted returns the URLs passed to Delete for owned objects.
func (f *Files) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// Stack is the wired application.
type Stack struct {
	Store       *memory.Store
	Files       *Files
	Registry    *realtime.Registry
	Rooms       *realtime.Rooms
	Broadcaster *realtime.Broadcaster
	Engine      *delivery.Engine
	Tracker     *presence.Tracker
	Gateway     *gateway.Gateway
	Chats       *chat.Service
	Users       *user.Service
}

// New wires a fresh stack.
func New() *Stack {
	st := memory.New()
	files := NewFiles()
	registry := realtime.NewRegistry()
	rooms := realtime.NewRooms()
	broadcaster := realtime.NewBroadcaster(registry, rooms)
	engine := delivery.NewEngine(st, registry, broadcaster)
	tracker := presence.NewTracker(registry, rooms, broadcaster, st, engine)

	return &Stack{
		Store:       st,
		Files:       files,
		Registry:    registry,
		Rooms:       rooms,
		Broadcaster: broadcaster,
		Engine:      engine,
		Tracker:     tracker,
		Gateway:     gateway.New(tracker, rooms, broadcaster, engine, st),
		Chats: chat.NewService(st, files, engine, broadcaster, tracker, chat.Options{
			MaxUploadBytes: storage.DefaultMaxAttachmentSize,
		}),
		Users: user.NewService(st, files, broadcaster, storage.DefaultMaxAttachmentSize),
	}
}

// User stores an account directly, skipping password hashing.
func (s *Stack) User(t *testing.T, name string) *model.User {
	t.Helper()
	now := time.Now().UTC()
	u := &model.User{
		ID:        randx.ID(),
		Username:  name,
		Email:     name + "@example.com",
		Status:    model.StatusOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.Store.CreateUser(context.Background(), u))
	return u
}

// Connect opens a live session for userID through the gateway.
func (s *Stack) Connect(t *testing.T, userID string) *realtimetest.Handle {
	t.Helper()
	h := realtimetest.NewHandle(userID)
	require.NoError(t, s.Gateway.Open(context.Background(), h))
	return h
}

// Disconnect closes a session opened with Connect.
func (s *Stack) Disconnect(h *realtimetest.Handle) {
	s.Gateway.Disconnect(context.Background(), h)
	h.Close()
}

// Direct creates the direct chat of a and b.
func (s *Stack) Direct(t *testing.T, a, b string) *model.ChatView {
	t.Helper()
	view, _, cerr := s.Chats.CreateChat(context.Background(), a, chat.CreateChatInput{Members: []string{b}})
	require.Nil(t, cerr)
	return view
}

// Send posts a text message.
func (s *Stack) Send(t *testing.T, senderID, chatID, text string) *model.MessageView {
	t.Helper()
	view, cerr := s.Chats.SendMessage(context.Background(), senderID, chat.SendMessageInput{ChatID: chatID, Text: text})
	require.Nil(t, cerr)
	return view
}

// Message reloads a message from the store.
func (s *Stack) Message(t *testing.T, id string) *model.Message {
	t.Helper()
	msg, err := s.Store.GetMessage(context.Background(), id)
	require.NoError(t, err)
	return msg
}
