package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chatterbox/internal/app/apptest"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/configs"
	"chatterbox/internal/handler"
	"chatterbox/internal/pkg/auth/jwt"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/pow"
)

const secret = "router-test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type server struct {
	app     *apptest.Stack
	handler http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	app := apptest.New()
	deps := &handler.AppDeps{
		Config: &configs.AppConfig{
			Environment:    "development",
			JWTSecret:      secret,
			TokenTTL:       time.Hour,
			MaxUploadBytes: 1 << 20,
		},
		Users:   app.Users,
		Chats:   app.Chats,
		Gateway: app.Gateway,
		Pow:     pow.NewManager(ctx, 0),
	}
	return &server{app: app, handler: handler.Router(ctx, deps)}
}

func (s *server) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.GenerateToken(&jwt.Payload{UserID: userID}, secret, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *server) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, path, rd)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, r)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	status, env := s.do(t, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ok","service":"Chatterbox"}`, string(env.Data))
}

func TestAuthFlow(t *testing.T) {
	req := require.New(t)
	s := newServer(t)

	// Register signs the new user in
	status, env := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "secret1",
	})
	req.Equal(http.StatusCreated, status)
	var session struct {
		Token string `json:"token"`
		User  struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	req.NoError(json.Unmarshal(env.Data, &session))
	req.NotEmpty(session.Token)
	req.NotContains(string(env.Data), "password")

	status, env = s.do(t, http.MethodGet, "/api/auth/me", session.Token, nil)
	req.Equal(http.StatusOK, status)
	req.Contains(string(env.Data), session.User.ID)

	// A signed-in caller cannot register again
	status, env = s.do(t, http.MethodPost, "/api/auth/register", session.Token, map[string]string{
		"username": "other", "email": "other@example.com", "password": "secret1",
	})
	req.Equal(http.StatusBadRequest, status)
	req.Equal(errs.ErrAlreadyLoggedIn, env.Code)

	status, env = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	req.Equal(http.StatusBadRequest, status)
	req.Equal(errs.ErrInvalidCredentials, env.Code)

	status, _ = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "secret1",
	})
	req.Equal(http.StatusOK, status)
}

func TestPrivateRoutes_Require_Identity(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{"/api/users/", "/api/chats/", "/api/auth/me"} {
		status, env := s.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, status, path)
		require.Equal(t, errs.ErrUnauthorized, env.Code, path)
	}
}

func TestChatAndMessageRoutes(t *testing.T) {
	req := require.New(t)
	s := newServer(t)
	alice := s.app.User(t, "alice")
	bob := s.app.User(t, "bob")
	aliceToken := s.token(t, alice.ID)
	bobToken := s.token(t, bob.ID)

	// Creating a direct chat twice returns the same chat
	status, env := s.do(t, http.MethodPost, "/api/chats/", aliceToken, map[string]any{"members": []string{bob.ID}})
	req.Equal(http.StatusCreated, status)
	var created struct {
		ID string `json:"id"`
	}
	req.NoError(json.Unmarshal(env.Data, &created))

	status, env = s.do(t, http.MethodPost, "/api/chats/", bobToken, map[string]any{"members": []string{alice.ID}})
	req.Equal(http.StatusOK, status)
	req.Contains(string(env.Data), created.ID)

	status, env = s.do(t, http.MethodPost, "/api/messages/", aliceToken, map[string]string{"chatId": created.ID, "text": "hi bob"})
	req.Equal(http.StatusCreated, status)
	var msg struct {
		ID string `json:"id"`
	}
	req.NoError(json.Unmarshal(env.Data, &msg))

	status, env = s.do(t, http.MethodGet, "/api/chats/"+created.ID+"/", bobToken, nil)
	req.Equal(http.StatusOK, status)
	req.Contains(string(env.Data), "hi bob")

	status, env = s.do(t, http.MethodDelete, "/api/messages/"+msg.ID+"/for-everyone", bobToken, nil)
	req.Equal(http.StatusForbidden, status)
	req.Equal(errs.ErrNotMessageSender, env.Code)

	status, _ = s.do(t, http.MethodDelete, "/api/messages/"+msg.ID+"/for-everyone", aliceToken, nil)
	req.Equal(http.StatusOK, status)

	status, env = s.do(t, http.MethodGet, "/api/chats/not-a-uuid/", aliceToken, nil)
	req.Equal(http.StatusNotFound, status)
	req.Equal(errs.ErrChatNotFound, env.Code)
}

func TestWebSocket_Handshake(t *testing.T) {
	req := require.New(t)
	s := newServer(t)
	alice := s.app.User(t, "alice")
	srv := httptest.NewServer(s.handler)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	// Missing and unknown users are refused before the upgrade
	status, env := s.do(t, http.MethodGet, "/ws", "", nil)
	req.Equal(http.StatusBadRequest, status)
	req.Equal(errs.ErrInvalidParams, env.Code)

	_, res, err := websocket.DefaultDialer.Dial(wsURL+"?userId=missing", http.Header{
		"Authorization": {"Bearer " + s.token(t, "missing")},
	})
	req.Error(err)
	req.Equal(http.StatusNotFound, res.StatusCode)
	res.Body.Close()

	// A session token for another user is refused
	header := http.Header{"Authorization": {"Bearer " + s.token(t, "someone-else")}}
	_, res, err = websocket.DefaultDialer.Dial(wsURL+"?userId="+alice.ID, header)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, res.StatusCode)
	res.Body.Close()

	// A valid handshake receives the setup event
	header = http.Header{"Authorization": {"Bearer " + s.token(t, alice.ID)}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?userId="+alice.ID, header)
	req.NoError(err)
	defer conn.Close()
	req.NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))

	events := []string{}
	for len(events) == 0 || events[len(events)-1] != realtime.EventSetup {
		var frame realtime.Envelope
		req.NoError(conn.ReadJSON(&frame))
		events = append(events, frame.Event)
	}
	req.Contains(events, realtime.EventOnlineUsers)
	req.Eventually(func() bool { return s.app.Registry.IsOnline(alice.ID) }, time.Second, 10*time.Millisecond)
}

func TestWebSocket_Requires_Session(t *testing.T) {
	req := require.New(t)
	s := newServer(t)
	alice := s.app.User(t, "alice")
	bob := s.app.User(t, "bob")
	direct := s.app.Direct(t, alice.ID, bob.ID)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=" + bob.ID

	// When someone dials as bob without a session
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)

	// Then the upgrade is refused and bob stays offline
	req.Error(err)
	req.Equal(http.StatusUnauthorized, res.StatusCode)
	res.Body.Close()
	req.False(s.app.Registry.IsOnline(bob.ID))

	// And nothing sent to bob is marked delivered
	sent := s.app.Send(t, alice.ID, direct.ID, "private for bob")
	req.Empty(sent.DeliveredTo)

	// While bob's session cookie is accepted
	header := http.Header{"Cookie": {jwt.CookieName + "=" + s.token(t, bob.ID)}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	req.NoError(err)
	defer conn.Close()
	req.Eventually(func() bool { return s.app.Registry.IsOnline(bob.ID) }, time.Second, 10*time.Millisecond)
}
