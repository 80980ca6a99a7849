package handler

import (
	"net/http"

	"chatterbox/internal/pkg/auth/jwt"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/req"
	"chatterbox/internal/pkg/resp"
)

// HandleListUsers returns every user except the caller.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		users, customErr := deps.Users.List(r.Context(), identity.UserID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, users)
	}
}

type UpdateUsernameInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
}

// HandleUpdateUsername changes the caller's display name.
func HandleUpdateUsername(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input UpdateUsernameInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, customErr := deps.Users.UpdateUsername(r.Context(), identity.UserID, input.Username)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, u)
	}
}

type UpdateBioInput struct {
	Bio string `json:"bio" validate:"max=500"`
}

// HandleUpdateBio changes the caller's profile text.
func HandleUpdateBio(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input UpdateBioInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, customErr := deps.Users.UpdateBio(r.Context(), identity.UserID, input.Bio)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, u)
	}
}

// HandleUpdateAvatar replaces the caller's profile picture from the multipart field profilePic.
func HandleUpdateAvatar(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		if !deps.Config.UploadsEnabled() {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		if customErr := req.SetupMultipart(w, r); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		file, _, customErr := req.FormFile(r, "profilePic")
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if file == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		defer file.Close()

		data, customErr := req.ReadAllLimited(file, deps.Config.MaxUploadBytes)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, customErr := deps.Users.UpdateAvatar(r.Context(), identity.UserID, data)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		resp.RespondSuccess(w, r, u)
	}
}
