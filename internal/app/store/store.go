/*
Package store declares the persistence contracts used by the services.

Implementations live in the memory, postgres and mongo subpackages. Methods return plain
errors, ErrNotFound for missing rows and ErrDuplicate for uniqueness violations. Every
receipt-set mutation is an idempotent set union.
*/
package store

import (
	"context"
	"errors"
	"time"

	"chatterbox/internal/app/model"
)

var (
	// ErrNotFound is returned when the addressed entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when a uniqueness constraint would be violated.
	ErrDuplicate = errors.New("store: duplicate")
)

// ProfileUpdate carries the optional profile fields to overwrite.
type ProfileUpdate struct {
	Username   *string
	Bio        *string
	ProfilePic *string
}

// UserRepository persists accounts and presence.
type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// GetUsers returns the users that exist among ids, in no particular order.
	GetUsers(ctx context.Context, ids []string) ([]*model.User, error)
	ListUsersExcept(ctx context.Context, id string) ([]*model.User, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*model.User, error)
	SetPresence(ctx context.Context, id string, status model.Status, lastSeen *time.Time) error
}

// ChatRepository persists chats.
type ChatRepository interface {
	// CreateChat fails with ErrDuplicate when a direct chat for the same pair exists.
	CreateChat(ctx context.Context, c *model.Chat) error
	GetChat(ctx context.Context, id string) (*model.Chat, error)
	FindDirectChat(ctx context.Context, a, b string) (*model.Chat, error)
	// ListChatsForUser returns the user's chats, most recently updated first.
	ListChatsForUser(ctx context.Context, userID string) ([]*model.Chat, error)
	ChatIDsForUser(ctx context.Context, userID string) ([]string, error)
	// RenameChat sets the chat's name. The membership operations below change one user at
	// a time in a single atomic write and return the chat as stored afterwards. All of them
	// bump updatedAt and fail with ErrNotFound when the chat does not exist.
	RenameChat(ctx context.Context, chatID, name string) (*model.Chat, error)
	// AddMember adds userID to members as a set union.
	AddMember(ctx context.Context, chatID, userID string) (*model.Chat, error)
	// RemoveMember removes userID from members and admins.
	RemoveMember(ctx context.Context, chatID, userID string) (*model.Chat, error)
	// AddAdmin adds userID to admins, only while userID is a member.
	AddAdmin(ctx context.Context, chatID, userID string) (*model.Chat, error)
	RemoveAdmin(ctx context.Context, chatID, userID string) (*model.Chat, error)
	// DeleteChatIfEmpty removes the chat and its messages when it has no members left and
	// reports whether it did.
	DeleteChatIfEmpty(ctx context.Context, chatID string) (bool, error)
	// SetLatestMessage points the chat at messageID (empty clears it) and bumps updatedAt.
	SetLatestMessage(ctx context.Context, chatID, messageID string) error
}

// MessageRepository persists messages and their receipt sets.
type MessageRepository interface {
	CreateMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	// ListMessages returns the chat's messages not deleted for viewer, newest first.
	ListMessages(ctx context.Context, chatID, viewer string) ([]*model.Message, error)
	// LatestVisibleMessage returns the newest message not deleted for viewer, skipping excludeID.
	LatestVisibleMessage(ctx context.Context, chatID, viewer, excludeID string) (*model.Message, error)
	AddDeletedFor(ctx context.Context, messageID, userID string) error
	// Tombstone marks the message deleted for everyone. It reports false when it already was.
	Tombstone(ctx context.Context, messageID string) (bool, error)
	// MarkDeliveredForUser adds userID to deliveredTo on every message sent by someone else in
	// the user's chats, returning the ids of the chats where at least one message changed.
	MarkDeliveredForUser(ctx context.Context, userID string) ([]string, error)
	// MarkReadUpTo adds userID to readBy on every message of chatID created at or before cutoff
	// and sent by someone else. It returns the number of messages changed.
	MarkReadUpTo(ctx context.Context, chatID, userID string, cutoff time.Time) (int, error)
	// UnreadCounts returns, per chat, the messages sent by others not read by userID.
	UnreadCounts(ctx context.Context, userID string, chatIDs []string) (map[string]int, error)
}

// Store bundles the repositories behind one backend.
type Store interface {
	UserRepository
	ChatRepository
	MessageRepository

	Close(ctx context.Context) error
}
