package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestGenerate_And_Parse(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(&Payload{UserID: "u1", Email: "a@example.com"}, secret, time.Hour)
	req.NoError(err)

	payload, err := ParseToken(token, secret)
	req.NoError(err)
	req.Equal("u1", payload.UserID)
	req.Equal("u1", payload.Subject)
	req.Equal(TokenIssuer, payload.Issuer)

	_, err = ParseToken(token, "other-secret")
	req.ErrorIs(err, ErrTokenInvalid)
}

func TestParseToken_Expired(t *testing.T) {
	req := require.New(t)
	past := time.Now().Add(-time.Hour)
	claims := &Payload{
		StandardClaims: jwtlib.StandardClaims{
			Subject:   "u1",
			Issuer:    TokenIssuer,
			IssuedAt:  past.Add(-time.Hour).Unix(),
			ExpiresAt: past.Unix(),
		},
		UserID: "u1",
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
	req.NoError(err)

	_, err = ParseToken(token, secret)

	req.ErrorIs(err, ErrTokenExpired)
}

func TestParseToken_Requires_UserID(t *testing.T) {
	token, err := GenerateToken(&Payload{}, secret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, secret)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestMiddleware_Identity(t *testing.T) {
	req := require.New(t)
	token, err := GenerateToken(&Payload{UserID: "u1"}, secret, time.Hour)
	req.NoError(err)

	var seen *Payload
	h := IdentityExtractorMiddleware(secret)(RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPayloadFromContext(r)
		w.WriteHeader(http.StatusOK)
	})))

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"anonymous", func(*http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusOK},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(r)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, r)

			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				require.Equal(t, "u1", seen.UserID)
			}
		})
	}
}
