package pow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/pkg/errs"
)

func solve(t *testing.T, c Challenge) string {
	t.Helper()
	for i := 0; i < 1_000_000; i++ {
		counter := strconv.Itoa(i)
		if Solves(c.Nonce, counter, c.Difficulty) {
			return counter
		}
	}
	t.Fatal("no solution found")
	return ""
}

func newManager(t *testing.T, difficulty int) *Manager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewManager(ctx, difficulty)
}

func TestVerify_Issues_Single_Use_Token(t *testing.T) {
	req := require.New(t)
	m := newManager(t, 2)
	c := m.NewChallenge()
	counter := solve(t, c)

	token, cerr := m.Verify(c.Nonce, counter)
	req.Nil(cerr)
	req.NotEmpty(token)

	// The nonce is consumed
	_, cerr = m.Verify(c.Nonce, counter)
	req.Equal(errs.ErrPowChallengeInvalid, cerr.Code)

	r := httptest.NewRequest(http.MethodPost, "/register", nil)
	r.Header.Set(TokenHeaderKey, token)
	req.True(m.Redeem(r))
	req.False(m.Redeem(r))
}

func TestVerify_Rejects_Wrong_Or_Expired(t *testing.T) {
	req := require.New(t)
	m := newManager(t, 2)
	c := m.NewChallenge()

	_, cerr := m.Verify("unknown", "0")
	req.Equal(errs.ErrPowChallengeInvalid, cerr.Code)

	counter := solve(t, c)
	m.now = func() time.Time { return time.Now().Add(NonceExpiryDuration + time.Second) }
	_, cerr = m.Verify(c.Nonce, counter)
	req.Equal(errs.ErrPowChallengeInvalid, cerr.Code)
}

func TestMiddleware(t *testing.T) {
	req := require.New(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	// Disabled managers let everything through
	rec := httptest.NewRecorder()
	newManager(t, 0).Middleware(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	req.Equal(http.StatusNoContent, rec.Code)

	m := newManager(t, 1)
	rec = httptest.NewRecorder()
	m.Middleware(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	req.Equal(http.StatusForbidden, rec.Code)

	c := m.NewChallenge()
	token, cerr := m.Verify(c.Nonce, solve(t, c))
	req.Nil(cerr)

	rec = httptest.NewRecorder()
	m.Middleware(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/?"+TokenQueryKey+"="+token, nil))
	req.Equal(http.StatusNoContent, rec.Code)
}

func TestEvictExpired(t *testing.T) {
	req := require.New(t)
	m := newManager(t, 1)
	m.NewChallenge()
	m.NewChallenge()

	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	m.evictExpired()

	req.Empty(m.nonces)
}
