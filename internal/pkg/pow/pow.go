/*
Package pow gates account registration behind a hash-based proof of work.

A client fetches a Challenge, searches for a counter such that sha256(nonce+counter) in hex
starts with Difficulty zeros, and trades the solution for a short-lived single-use proof token.
The registration endpoint consumes that token through Middleware.
*/
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/resp"
)

const (
	// TokenHeaderKey carries the proof token on the gated request.
	TokenHeaderKey = "X-PoW-Token"

	// TokenQueryKey is the query-string fallback for TokenHeaderKey.
	TokenQueryKey = "pow_token"

	// ProofTokenDuration is how long an issued proof token stays redeemable.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration is how long a challenge stays solvable.
	NonceExpiryDuration = 5 * time.Minute
)

// Challenge is handed to clients that must solve a proof of work.
type Challenge struct {
	Nonce      string    `json:"nonce"`
	Difficulty int       `json:"difficulty"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Manager tracks outstanding nonces and issued proof tokens.
type Manager struct {
	difficulty int
	now        func() time.Time

	mu     sync.Mutex
	nonces map[string]time.Time
	tokens map[string]time.Time
}

// NewManager returns a Manager requiring difficulty leading hex zeros.
// Expired entries are swept until ctx is cancelled.
func NewManager(ctx context.Context, difficulty int) *Manager {
	m := &Manager{
		difficulty: difficulty,
		now:        time.Now,
		nonces:     make(map[string]time.Time),
		tokens:     make(map[string]time.Time),
	}

	go m.sweep(ctx)

	return m
}

// Enabled reports whether proofs are required at all.
func (m *Manager) Enabled() bool {
	return m != nil && m.difficulty > 0
}

// NewChallenge issues a fresh nonce.
func (m *Manager) NewChallenge() Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()

	expires := m.now().Add(NonceExpiryDuration)
	nonce := uuid.New().String()
	m.nonces[nonce] = expires

	return Challenge{Nonce: nonce, Difficulty: m.difficulty, ExpiresAt: expires}
}

// Solves reports whether counter satisfies the difficulty for nonce.
func Solves(nonce, counter string, difficulty int) bool {
	hash := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(hash[:]), strings.Repeat("0", difficulty))
}

// Verify checks a solution and, on success, consumes the nonce and returns a proof token.
func (m *Manager) Verify(nonce, counter string) (string, *errs.CustomError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.nonces[nonce]
	if !ok || m.now().After(expiry) {
		return "", errs.NewError(errs.ErrPowChallengeInvalid)
	}

	if !Solves(nonce, counter, m.difficulty) {
		return "", errs.NewError(errs.ErrPowChallengeInvalid)
	}

	delete(m.nonces, nonce)

	token := uuid.New().String()
	m.tokens[token] = m.now().Add(ProofTokenDuration)
	return token, nil
}

// Redeem consumes the proof token carried by r.
func (m *Manager) Redeem(r *http.Request) bool {
	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		token = r.URL.Query().Get(TokenQueryKey)
	}
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.tokens[token]
	if !ok {
		return false
	}
	delete(m.tokens, token)

	return !m.now().After(expiry)
}

// Middleware requires a redeemable proof token when the manager is enabled.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Enabled() && !m.Redeem(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Manager) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *Manager) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for nonce, expiry := range m.nonces {
		if now.After(expiry) {
			delete(m.nonces, nonce)
		}
	}
	for token, expiry := range m.tokens {
		if now.After(expiry) {
			delete(m.tokens, token)
		}
	}
}
