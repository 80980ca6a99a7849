/*
Package handler provides the HTTP handlers and routing setup for the Chatterbox server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"chatterbox/internal/pkg/auth/jwt"
	"chatterbox/internal/pkg/limiter"
	"chatterbox/internal/pkg/logx"
	"chatterbox/internal/pkg/resp"
)

const (
	AuthRate  = 0.2
	AuthBurst = 5
	WSRate    = 0.5
	WSBurst   = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// The limiters stop sweeping idle entries when ctx is cancelled.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	authLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(AuthRate), AuthBurst)
	wsLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(WSRate), WSBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.Origins() {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if origins := deps.Config.Origins(); len(origins) > 0 {
		corsAllowedOrigins = origins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-PoW-Token"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)
	r.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "Chatterbox",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.Use(authLimiter.Middleware)

			auth.With(deps.Pow.Middleware).Post("/register", HandleRegister(deps))
			auth.Post("/login", HandleLogin(deps))
			auth.Post("/logout", HandleLogout(deps))
			auth.With(jwt.RequireIdentity).Get("/me", HandleMe(deps))

			auth.Get("/pow/challenge", HandlePowChallenge(deps))
			auth.Post("/pow/verify", HandlePowVerify(deps))
		})

		api.Group(func(private chi.Router) {
			private.Use(jwt.RequireIdentity)

			private.Route("/users", func(users chi.Router) {
				users.Get("/", HandleListUsers(deps))
				users.Patch("/me/username", HandleUpdateUsername(deps))
				users.Patch("/me/bio", HandleUpdateBio(deps))
				users.Patch("/me/avatar", HandleUpdateAvatar(deps))
			})

			private.Route("/chats", func(chats chi.Router) {
				chats.Post("/", HandleCreateChat(deps))
				chats.Get("/", HandleGetChats(deps))

				chats.Route("/{id}", func(one chi.Router) {
					one.Get("/", HandleGetChat(deps))
					one.Patch("/name", HandleRenameChat(deps))
					one.Post("/members", HandleAddMember(deps))
					one.Delete("/members/{userId}", HandleRemoveMember(deps))
					one.Post("/admins", HandlePromoteAdmin(deps))
					one.Delete("/admins/{userId}", HandleDemoteAdmin(deps))
					one.Post("/leave", HandleLeaveChat(deps))
				})
			})

			private.Route("/messages", func(messages chi.Router) {
				messages.Post("/", HandleSendMessage(deps))
				messages.Delete("/{id}/for-me", HandleDeleteForMe(deps))
				messages.Delete("/{id}/for-everyone", HandleDeleteForEveryone(deps))
			})
		})
	})

	r.With(wsLimiter.Middleware).Get("/ws", HandleWebSocket(wsUpgrader, deps))

	return r
}
