package user_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/app/apptest"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/realtime/realtimetest"
	"chatterbox/internal/app/user"
	"chatterbox/internal/pkg/errs"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func register(t *testing.T, app *apptest.Stack, name string) string {
	t.Helper()
	u, cerr := app.Users.Register(context.Background(), user.RegisterInput{
		Username: name,
		Email:    strings.ToUpper(name) + "@Example.com",
		Password: "secret-" + name,
	})
	require.Nil(t, cerr)
	return u.ID
}

func TestRegister_And_Authenticate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()

	id := register(t, app, "alice")

	// The email is stored lowercased and the password hashed
	stored, err := app.Store.GetUser(ctx, id)
	req.NoError(err)
	req.Equal("alice@example.com", stored.Email)
	req.NotEqual("secret-alice", stored.PasswordHash)

	u, cerr := app.Users.Authenticate(ctx, user.LoginInput{Email: "Alice@example.com", Password: "secret-alice"})
	req.Nil(cerr)
	req.Equal(id, u.ID)

	_, cerr = app.Users.Authenticate(ctx, user.LoginInput{Email: "alice@example.com", Password: "wrong"})
	req.Equal(errs.ErrInvalidCredentials, cerr.Code)

	_, cerr = app.Users.Authenticate(ctx, user.LoginInput{Email: "nobody@example.com", Password: "secret-alice"})
	req.Equal(errs.ErrInvalidCredentials, cerr.Code)
}

func TestRegister_Duplicate_Email(t *testing.T) {
	req := require.New(t)
	app := apptest.New()
	register(t, app, "alice")

	_, cerr := app.Users.Register(context.Background(), user.RegisterInput{
		Username: "other",
		Email:    "alice@example.com",
		Password: "secret",
	})

	req.Equal(errs.ErrEmailAlreadyExists, cerr.Code)
}

func TestGet_And_List(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")

	_, cerr := app.Users.Get(ctx, "missing")
	req.Equal(errs.ErrUserNotFound, cerr.Code)

	users, cerr := app.Users.List(ctx, alice.ID)
	req.Nil(cerr)
	req.Len(users, 1)
	req.Equal(bob.ID, users[0].ID)
}

func TestProfile_Updates_Are_Announced(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")
	bob := app.User(t, "bob")
	app.Direct(t, alice.ID, bob.ID)
	bobConn := app.Connect(t, bob.ID)
	bobConn.Reset()

	u, cerr := app.Users.UpdateUsername(ctx, alice.ID, "  alicia ")
	req.Nil(cerr)
	req.Equal("alicia", u.Username)

	u, cerr = app.Users.UpdateBio(ctx, alice.ID, "hello")
	req.Nil(cerr)
	req.Equal("hello", u.Bio)

	updates := bobConn.Named(realtime.EventUpdateUser)
	req.Len(updates, 2)
	var p realtime.UserUpdatePayload
	req.NoError(realtimetest.Decode(updates[0], &p))
	req.Equal(alice.ID, p.UserID)
	req.Equal(map[string]any{"username": "alicia"}, p.Updates)
}

func TestProfile_Update_Validation(t *testing.T) {
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")

	t.Run("short username", func(t *testing.T) {
		_, cerr := app.Users.UpdateUsername(ctx, alice.ID, " ab ")
		require.Equal(t, errs.ErrInvalidParams, cerr.Code)
	})

	t.Run("long bio", func(t *testing.T) {
		_, cerr := app.Users.UpdateBio(ctx, alice.ID, strings.Repeat("b", 501))
		require.Equal(t, errs.ErrInvalidParams, cerr.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, cerr := app.Users.UpdateBio(ctx, "missing", "hi")
		require.Equal(t, errs.ErrUserNotFound, cerr.Code)
	})
}

func TestUpdateAvatar_Replaces_Previous_Object(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	app := apptest.New()
	alice := app.User(t, "alice")

	first, cerr := app.Users.UpdateAvatar(ctx, alice.ID, pngBytes)
	req.Nil(cerr)
	req.True(strings.HasPrefix(first.ProfilePic, apptest.FileBaseURL+"avatars/"+alice.ID+"/"))

	second, cerr := app.Users.UpdateAvatar(ctx, alice.ID, pngBytes)
	req.Nil(cerr)
	req.NotEqual(first.ProfilePic, second.ProfilePic)

	req.Equal([]string{first.ProfilePic}, app.Files.Deleted())
	req.Equal(1, app.Files.Count())

	_, cerr = app.Users.UpdateAvatar(ctx, alice.ID, []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"))
	req.Equal(errs.ErrFileTypeInvalid, cerr.Code)

	app.Files.FailUploads = true
	_, cerr = app.Users.UpdateAvatar(ctx, alice.ID, pngBytes)
	req.Equal(errs.ErrFileStorageFailed, cerr.Code)
}
