/*
Package user manages accounts: registration, credential checks and profile edits.

Every profile change is announced as Update-user to the chat rooms of the user, so open
clients can patch their copy without refetching.
*/
package user

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"chatterbox/internal/app/model"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/storage"
	"chatterbox/internal/app/store"
	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/logx"
	"chatterbox/internal/pkg/randx"
)

// Store is the persistence the service needs.
type Store interface {
	store.UserRepository
	ChatIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// RoomNotifier fans events out to chat rooms.
type RoomNotifier interface {
	ToChat(chatID, event string, payload any, exclude realtime.Handle) int
}

// RegisterInput is a new account.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginInput is a credential pair.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Service implements the account operations.
type Service struct {
	store          Store
	files          storage.Service
	notifier       RoomNotifier
	maxUploadBytes int64
	now            func() time.Time
	log            zerolog.Logger
}

// NewService wires a service. maxUploadBytes bounds avatar uploads.
func NewService(s Store, files storage.Service, notifier RoomNotifier, maxUploadBytes int64) *Service {
	return &Service{
		store:          s,
		files:          files,
		notifier:       notifier,
		maxUploadBytes: maxUploadBytes,
		now:            func() time.Time { return time.Now().UTC() },
		log:            logx.Component("user"),
	}
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, *errs.CustomError) {
	username := strings.TrimSpace(in.Username)
	if len(username) < 3 {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errs.Internal(err)
	}

	now := s.now()
	u := &model.User{
		ID:           randx.ID(),
		Username:     username,
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: string(hash),
		Status:       model.StatusOffline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.log.Warn().Str("email", u.Email).Msg("Registration conflict: email already exists")
			return nil, errs.NewError(errs.ErrEmailAlreadyExists)
		}
		return nil, errs.Internal(err)
	}

	s.log.Info().Str("user_id", u.ID).Msg("User registered")
	return u, nil
}

// Authenticate returns the account matching the credentials.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (*model.User, *errs.CustomError) {
	u, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrInvalidCredentials)
		}
		return nil, errs.Internal(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		s.log.Warn().Str("user_id", u.ID).Msg("Login: password mismatch")
		return nil, errs.NewError(errs.ErrInvalidCredentials)
	}
	return u, nil
}

// Get returns the account with id.
func (s *Service) Get(ctx context.Context, id string) (*model.User, *errs.CustomError) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrUserNotFound)
		}
		return nil, errs.Internal(err)
	}
	return u, nil
}

// List returns every account except the caller's.
func (s *Service) List(ctx context.Context, actorID string) ([]*model.User, *errs.CustomError) {
	users, err := s.store.ListUsersExcept(ctx, actorID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	return users, nil
}

// UpdateUsername changes the display name.
func (s *Service) UpdateUsername(ctx context.Context, actorID, username string) (*model.User, *errs.CustomError) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 50 {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}
	return s.update(ctx, actorID, store.ProfileUpdate{Username: &username}, map[string]any{"username": username})
}

// UpdateBio changes the profile text. An empty bio clears it.
func (s *Service) UpdateBio(ctx context.Context, actorID, bio string) (*model.User, *errs.CustomError) {
	bio = strings.TrimSpace(bio)
	if len(bio) > 500 {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}
	return s.update(ctx, actorID, store.ProfileUpdate{Bio: &bio}, map[string]any{"bio": bio})
}

// UpdateAvatar stores data as the new profile picture and removes the previous object.
func (s *Service) UpdateAvatar(ctx context.Context, actorID string, data []byte) (*model.User, *errs.CustomError) {
	current, cerr := s.Get(ctx, actorID)
	if cerr != nil {
		return nil, cerr
	}

	info, cerr := storage.Inspect(data, storage.KindAvatar, s.maxUploadBytes)
	if cerr != nil {
		return nil, cerr
	}

	key, err := storage.ObjectKey("avatars/"+actorID, info.Extension)
	if err != nil {
		return nil, errs.Internal(err)
	}

	url, err := s.files.Upload(ctx, key, info.ContentType, bytes.NewReader(data))
	if err != nil {
		s.log.Error().Err(err).Str("user_id", actorID).Str("key", key).Msg("Avatar upload failed")
		return nil, errs.NewError(errs.ErrFileStorageFailed)
	}

	u, cerr := s.update(ctx, actorID, store.ProfileUpdate{ProfilePic: &url}, map[string]any{"profilePic": url})
	if cerr != nil {
		_ = s.files.Delete(ctx, url)
		return nil, cerr
	}

	if old := current.ProfilePic; old != "" && old != url {
		if err := s.files.Delete(ctx, old); err != nil {
			s.log.Warn().Err(err).Str("user_id", actorID).Str("url", old).Msg("Failed to delete previous avatar")
		}
	}
	return u, nil
}

func (s *Service) update(ctx context.Context, actorID string, upd store.ProfileUpdate, patch map[string]any) (*model.User, *errs.CustomError) {
	u, err := s.store.UpdateProfile(ctx, actorID, upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrUserNotFound)
		}
		return nil, errs.Internal(err)
	}

	s.announce(ctx, actorID, patch)
	return u, nil
}

// announce sends Update-user to every chat room of userID. Failures are logged only.
func (s *Service) announce(ctx context.Context, userID string, patch map[string]any) {
	chatIDs, err := s.store.ChatIDsForUser(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list chats for profile update")
		return
	}

	payload := realtime.UserUpdatePayload{UserID: userID, Updates: patch}
	for _, chatID := range chatIDs {
		s.notifier.ToChat(chatID, realtime.EventUpdateUser, payload, nil)
	}
}
