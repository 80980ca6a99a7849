/*
Package model defines the persisted entities of Chatterbox and the populated views returned
to clients.

The struct tags serve both the JSON API and the MongoDB store. Sets (members, admins,
deliveredTo, readBy, deletedFor) are stored as string slices with no duplicates.
*/
package model

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// Status is the presence state persisted on a user.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// DeletedText replaces the text of a message deleted for everyone.
const DeletedText = "This message was deleted"

// User is a registered account.
type User struct {
	ID           string     `json:"id" bson:"_id"`
	Username     string     `json:"username" bson:"username"`
	Email        string     `json:"email" bson:"email"`
	PasswordHash string     `json:"-" bson:"password_hash"`
	ProfilePic   string     `json:"profilePic" bson:"profile_pic"`
	Bio          string     `json:"bio" bson:"bio"`
	Status       Status     `json:"status" bson:"status"`
	LastSeen     *time.Time `json:"lastSeen,omitempty" bson:"last_seen,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" bson:"updated_at"`
}

// Chat is a direct conversation between two users or a named group.
type Chat struct {
	ID              string    `json:"id" bson:"_id"`
	IsGroup         bool      `json:"isGroup" bson:"is_group"`
	Name            string    `json:"name,omitempty" bson:"name,omitempty"`
	Description     string    `json:"description,omitempty" bson:"description,omitempty"`
	Members         []string  `json:"members" bson:"members"`
	Admins          []string  `json:"admins,omitempty" bson:"admins"`
	CreatedBy       string    `json:"createdBy" bson:"created_by"`
	LatestMessageID string    `json:"latestMessageId,omitempty" bson:"latest_message_id,omitempty"`
	DirectKey       string    `json:"-" bson:"direct_key,omitempty"`
	CreatedAt       time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" bson:"updated_at"`
}

// DirectKey identifies the unordered pair of a direct chat.
func DirectKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// IsMember reports whether userID belongs to the chat.
func (c *Chat) IsMember(userID string) bool {
	return slices.Contains(c.Members, userID)
}

// IsAdmin reports whether userID administers the chat.
func (c *Chat) IsAdmin(userID string) bool {
	return slices.Contains(c.Admins, userID)
}

// OtherMembers returns every member except userID.
func (c *Chat) OtherMembers(userID string) []string {
	return lo.Without(c.Members, userID)
}

// Attachment is an uploaded file referenced by a message.
type Attachment struct {
	URL         string `json:"url" bson:"url"`
	Name        string `json:"name" bson:"name"`
	ContentType string `json:"contentType" bson:"content_type"`
	Size        int64  `json:"size" bson:"size"`
}

// Message is a chat message with its per-recipient receipt sets.
type Message struct {
	ID          string       `json:"id" bson:"_id"`
	ChatID      string       `json:"chatId" bson:"chat_id"`
	SenderID    string       `json:"senderId" bson:"sender_id"`
	Text        string       `json:"text" bson:"text"`
	Attachments []Attachment `json:"attachments" bson:"attachments"`
	CreatedAt   time.Time    `json:"createdAt" bson:"created_at"`
	IsDeleted   bool         `json:"isDeleted" bson:"is_deleted"`
	DeletedFor  []string     `json:"deletedFor" bson:"deleted_for"`
	DeliveredTo []string     `json:"deliveredTo" bson:"delivered_to"`
	ReadBy      []string     `json:"readBy" bson:"read_by"`
}

// IsDeletedFor reports whether userID hid the message for themselves.
func (m *Message) IsDeletedFor(userID string) bool {
	return slices.Contains(m.DeletedFor, userID)
}

// IsReadBy reports whether userID has read the message.
func (m *Message) IsReadBy(userID string) bool {
	return slices.Contains(m.ReadBy, userID)
}

// IsDeliveredTo reports whether the message reached userID.
func (m *Message) IsDeliveredTo(userID string) bool {
	return slices.Contains(m.DeliveredTo, userID)
}

// Tombstone clears the content of a message deleted for everyone. Receipt sets are kept.
func (m *Message) Tombstone() {
	m.IsDeleted = true
	m.Text = DeletedText
	m.Attachments = []Attachment{}
}

// Normalize replaces nil slices with empty ones so the API never renders null sets.
func (m *Message) Normalize() {
	if m.Attachments == nil {
		m.Attachments = []Attachment{}
	}
	if m.DeletedFor == nil {
		m.DeletedFor = []string{}
	}
	if m.DeliveredTo == nil {
		m.DeliveredTo = []string{}
	}
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
}

// MessageView is a message with its sender populated.
type MessageView struct {
	Message
	Sender *User `json:"sender,omitempty"`
}

// ChatView is a chat with members, admins and latest message populated.
type ChatView struct {
	ID            string       `json:"id"`
	IsGroup       bool         `json:"isGroup"`
	Name          string       `json:"name,omitempty"`
	Description   string       `json:"description,omitempty"`
	Members       []*User      `json:"members"`
	Admins        []*User      `json:"admins"`
	CreatedBy     string       `json:"createdBy"`
	LatestMessage *MessageView `json:"latestMessage,omitempty"`
	UnreadCount   int          `json:"unreadCount"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// ChatDetail is a chat view together with the messages visible to the caller, newest first.
type ChatDetail struct {
	*ChatView
	Messages []*MessageView `json:"messages"`
}
