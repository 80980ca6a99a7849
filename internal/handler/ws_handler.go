/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

The handshake requires a session token, from the cookie or the Authorization header, and a
userId query parameter naming the same existing user.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"chatterbox/internal/app/realtime"
	"chatterbox/internal/pkg/auth/jwt"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/logx"
	"chatterbox/internal/pkg/resp"
)

// HandleWebSocket upgrades the connection and runs the session until it ends.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logx.Ctx(r.Context())

		userID := r.URL.Query().Get("userId")
		if userID == "" {
			log.Warn().Msg("WebSocket request rejected: missing userId query parameter")
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			log.Warn().Str(logx.FieldUserID, userID).Msg("WebSocket request rejected: no session")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}
		if identity.UserID != userID {
			log.Warn().Str(logx.FieldUserID, userID).Msg("WebSocket request rejected: userId does not match session")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if _, customErr := deps.Users.Get(r.Context(), userID); customErr != nil {
			log.Info().Str(logx.FieldUserID, userID).Msg("WebSocket request rejected: unknown user")
			resp.RespondError(w, r, customErr)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}

		client := realtime.NewClient(conn, userID)

		ctx := r.Context()
		if err := deps.Gateway.Open(ctx, client); err != nil {
			log.Error().Err(err).Str(logx.FieldUserID, userID).Msg("WebSocket session rejected during registration")
			_ = conn.Close()
			return
		}

		log.Info().Str(logx.FieldClientID, client.ID()).Str(logx.FieldUserID, userID).Msg("WebSocket session opened")

		client.Serve(ctx, deps.Gateway)
	}
}
