package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatterbox/internal/app/chat"
	"chatterbox/internal/pkg/auth/jwt"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/randx"
	"chatterbox/internal/pkg/req"
	"chatterbox/internal/pkg/resp"
)

// bindSendMessage reads a message from a JSON body, or from a multipart form with the
// fields chatId, text and attachment.
func bindSendMessage(w http.ResponseWriter, r *http.Request, deps *AppDeps) (chat.SendMessageInput, *errs.CustomError) {
	var input chat.SendMessageInput

	if !req.IsMultipart(r) {
		customErr := req.BindJSON(r, &input)
		return input, customErr
	}

	if customErr := req.SetupMultipart(w, r); customErr != nil {
		return input, customErr
	}
	input.ChatID = r.FormValue("chatId")
	input.Text = r.FormValue("text")

	file, header, customErr := req.FormFile(r, "attachment")
	if customErr != nil {
		return input, customErr
	}
	if file != nil {
		defer file.Close()

		if !deps.Config.UploadsEnabled() {
			return input, errs.NewError(errs.ErrFileStorageFailed)
		}

		data, customErr := req.ReadAllLimited(file, deps.Config.MaxUploadBytes)
		if customErr != nil {
			return input, customErr
		}
		input.File = &chat.Upload{Data: data, Name: header.Filename}
	}

	return input, req.Validate(&input)
}

// HandleSendMessage posts a message to a chat.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		input, customErr := bindSendMessage(w, r, deps)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		view, customErr := deps.Chats.SendMessage(r.Context(), identity.UserID, input)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondCreated(w, r, view)
	}
}

func messageIDParam(r *http.Request) (string, *errs.CustomError) {
	id := chi.URLParam(r, "id")
	if !randx.IsValidID(id) {
		return "", errs.NewError(errs.ErrMessageNotFound)
	}
	return id, nil
}

// HandleDeleteForMe hides a message from the caller.
func HandleDeleteForMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		messageID, customErr := messageIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		result, customErr := deps.Chats.DeleteForMe(r.Context(), identity.UserID, messageID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, result)
	}
}

// HandleDeleteForEveryone tombstones a message sent by the caller.
func HandleDeleteForEveryone(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		messageID, customErr := messageIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		view, customErr := deps.Chats.DeleteForEveryone(r.Context(), identity.UserID, messageID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, view)
	}
}
