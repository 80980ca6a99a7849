/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"net/http"
	"time"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/user"
	"chatterbox/internal/pkg/auth/jwt"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/logx"
	"chatterbox/internal/pkg/req"
	"chatterbox/internal/pkg/resp"
)

// setSessionCookie issues the HttpOnly session cookie. A negative maxAge clears it.
func setSessionCookie(w http.ResponseWriter, deps *AppDeps, token string, maxAge time.Duration) {
	cookie := &http.Cookie{
		Name:     jwt.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   !deps.Config.IsDevelopment(),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge.Seconds()),
	}
	if maxAge < 0 {
		cookie.MaxAge = -1
	}
	http.SetCookie(w, cookie)
}

// issueSession signs a token for u, sets the cookie and returns the response body.
func issueSession(w http.ResponseWriter, deps *AppDeps, u *model.User) (map[string]any, *errs.CustomError) {
	ttl := deps.Config.TokenTTL
	if ttl <= 0 {
		ttl = jwt.DefaultSessionExpiration
	}

	token, err := jwt.GenerateToken(&jwt.Payload{UserID: u.ID, Email: u.Email}, deps.Config.JWTSecret, ttl)
	if err != nil {
		logx.Error(err, "Failed to generate session token", "user_id", u.ID)
		return nil, errs.NewError(errs.ErrUnknown)
	}

	setSessionCookie(w, deps, token, ttl)
	return map[string]any{"token": token, "user": u}, nil
}

// HandleRegister creates an account and signs the caller in.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input user.RegisterInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, customErr := deps.Users.Register(r.Context(), input)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		body, customErr := issueSession(w, deps, u)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondCreated(w, r, body)
	}
}

// HandleLogin verifies credentials and issues a session token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identity := jwt.GetPayloadFromContext(r); identity != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input user.LoginInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, customErr := deps.Users.Authenticate(r.Context(), input)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		body, customErr := issueSession(w, deps, u)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, body)
	}
}

// HandleLogout clears the session cookie. Bearer tokens simply expire.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setSessionCookie(w, deps, "", -1)
		resp.RespondSuccess(w, r, nil)
	}
}

// HandleMe returns the authenticated user's account.
func HandleMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		u, customErr := deps.Users.Get(r.Context(), identity.UserID)
		if customErr != nil {
			if customErr.Code == errs.ErrUserNotFound {
				customErr = errs.NewError(errs.ErrUnauthorized)
			}
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, map[string]any{"user": u})
	}
}

// HandlePowChallenge hands out a fresh proof-of-work challenge.
func HandlePowChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Pow.Enabled() {
			resp.RespondSuccess(w, r, map[string]any{"required": false})
			return
		}
		resp.RespondSuccess(w, r, map[string]any{"required": true, "challenge": deps.Pow.NewChallenge()})
	}
}

// PowVerifyInput is a proposed proof-of-work solution.
type PowVerifyInput struct {
	Nonce   string `json:"nonce" validate:"required"`
	Counter string `json:"counter" validate:"required"`
}

// HandlePowVerify trades a solved challenge for a single-use proof token.
func HandlePowVerify(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PowVerifyInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		token, customErr := deps.Pow.Verify(input.Nonce, input.Counter)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, map[string]any{"powToken": token})
	}
}
