package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatterbox/internal/app/chat"
	"chatterbox/internal/app/model"
	"chatterbox/internal/pkg/auth/jwt"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/randx"
	"chatterbox/internal/pkg/req"
	"chatterbox/internal/pkg/resp"
)

// chatIDParam reads and checks the {id} URL parameter.
func chatIDParam(r *http.Request) (string, *errs.CustomError) {
	id := chi.URLParam(r, "id")
	if !randx.IsValidID(id) {
		return "", errs.NewError(errs.ErrChatNotFound)
	}
	return id, nil
}

// HandleCreateChat creates a group or finds-or-creates a direct chat.
func HandleCreateChat(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input chat.CreateChatInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		view, created, customErr := deps.Chats.CreateChat(r.Context(), identity.UserID, input)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if created {
			resp.RespondCreated(w, r, view)
			return
		}
		resp.RespondSuccess(w, r, view)
	}
}

// HandleGetChats lists the caller's chats.
func HandleGetChats(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		views, customErr := deps.Chats.GetChats(r.Context(), identity.UserID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, views)
	}
}

// HandleGetChat returns one chat with its messages.
func HandleGetChat(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		chatID, customErr := chatIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		detail, customErr := deps.Chats.GetChat(r.Context(), identity.UserID, chatID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, detail)
	}
}

type RenameChatInput struct {
	Name string `json:"name" validate:"required,max=100"`
}

// HandleRenameChat renames a group.
func HandleRenameChat(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		chatID, customErr := chatIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input RenameChatInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		view, customErr := deps.Chats.Rename(r.Context(), identity.UserID, chatID, input.Name)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, view)
	}
}

type ChatUserInput struct {
	UserID string `json:"userId" validate:"required"`
}

// groupAction is a membership or admin change applied by actorID to userID.
type groupAction func(s *chat.Service, ctx context.Context, actorID, chatID, userID string) (*model.ChatView, *errs.CustomError)

// handleGroupAction runs action with the target user taken from the JSON body, or from the
// {userId} URL parameter when fromURL is set.
func handleGroupAction(deps *AppDeps, fromURL bool, action groupAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		chatID, customErr := chatIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var target string
		if fromURL {
			target = chi.URLParam(r, "userId")
		} else {
			var input ChatUserInput
			if customErr := req.BindJSON(r, &input); customErr != nil {
				resp.RespondError(w, r, customErr)
				return
			}
			target = input.UserID
		}
		if target == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		view, customErr := action(deps.Chats, r.Context(), identity.UserID, chatID, target)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, view)
	}
}

// HandleAddMember adds a user to a group.
func HandleAddMember(deps *AppDeps) http.HandlerFunc {
	return handleGroupAction(deps, false, (*chat.Service).AddMember)
}

// HandleRemoveMember removes a user from a group.
func HandleRemoveMember(deps *AppDeps) http.HandlerFunc {
	return handleGroupAction(deps, true, (*chat.Service).RemoveMember)
}

// HandlePromoteAdmin grants admin rights.
func HandlePromoteAdmin(deps *AppDeps) http.HandlerFunc {
	return handleGroupAction(deps, false, (*chat.Service).PromoteAdmin)
}

// HandleDemoteAdmin revokes admin rights.
func HandleDemoteAdmin(deps *AppDeps) http.HandlerFunc {
	return handleGroupAction(deps, true, (*chat.Service).DemoteAdmin)
}

// HandleLeaveChat removes the caller from a group.
func HandleLeaveChat(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		chatID, customErr := chatIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		view, customErr := deps.Chats.Leave(r.Context(), identity.UserID, chatID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if view == nil {
			resp.RespondSuccess(w, r, map[string]any{"chatId": chatID, "deleted": true})
			return
		}
		resp.RespondSuccess(w, r, view)
	}
}
