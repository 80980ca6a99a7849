package errs_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/pkg/errs"
)

func TestNewError(t *testing.T) {
	req := require.New(t)

	cerr := errs.NewError(errs.ErrNotChatMember)
	req.Equal(errs.ErrNotChatMember, cerr.Code)
	req.Equal(http.StatusForbidden, cerr.Status)

	// Messages with verbs are formatted with the details
	cerr = errs.NewError(errs.ErrMessageContentTooLong, 5000)
	req.Equal("Message is too long (max 5000 bytes).", cerr.Message)

	// Unregistered codes fall back to ErrUnknown
	cerr = errs.NewError(999999)
	req.Equal(errs.ErrUnknown, cerr.Code)
	req.Equal(http.StatusInternalServerError, cerr.Status)
}

func TestNewError_Returns_Independent_Copies(t *testing.T) {
	req := require.New(t)

	first := errs.NewError(errs.ErrChatNotFound)
	first.Message = "changed"

	req.Equal("Chat not found.", errs.NewError(errs.ErrChatNotFound).Message)
}

func TestInternal_Hides_Cause(t *testing.T) {
	req := require.New(t)

	cerr := errs.Internal(errors.New("pq: connection refused"))

	req.Equal(errs.ErrUnknown, cerr.Code)
	req.NotContains(cerr.Message, "connection refused")
}

func TestFrom_And_Is(t *testing.T) {
	req := require.New(t)

	req.Nil(errs.From(nil))

	wrapped := fmt.Errorf("loading chat: %w", errs.NewError(errs.ErrChatNotFound))
	req.Equal(errs.ErrChatNotFound, errs.From(wrapped).Code)
	req.True(errs.Is(wrapped, errs.ErrChatNotFound))
	req.False(errs.Is(wrapped, errs.ErrUserNotFound))

	req.Equal(errs.ErrUnknown, errs.From(errors.New("boom")).Code)
}
