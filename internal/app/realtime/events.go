/*
Package realtime owns the live-channel plumbing: connection handles, the process-wide
connection registry, chat rooms, fan-out, and the WebSocket client pumps.

Every frame on the wire is an Envelope: {"event": name, "data": payload}.
*/
package realtime

import (
	"encoding/json"
	"time"
)

// Server → client events.
const (
	EventSetup                  = "setup"
	EventOnlineUsers            = "online-users"
	EventMessagesDelivered      = "messages-delivered"
	EventMessagesReadByUser     = "messages-read-by-user"
	EventReceiveMessage         = "receive-message"
	EventMessageDeletedEveryone = "message-deleted-everyone"
	EventUpdateUser             = "Update-user"
	EventNewChat                = "new-chat"
	EventChatJoined             = "chat joined"
	EventError                  = "error"
)

// Client → server events. Typing events are relayed under the same name.
const (
	EventJoinChat     = "joinChat"
	EventTyping       = "typing"
	EventStopTyping   = "stop-typing"
	EventMessagesRead = "messages-read"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinChatPayload accepts either a bare chat id string or {"chatId": id}.
type JoinChatPayload struct {
	ChatID string `json:"chatId" validate:"required"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *JoinChatPayload) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		p.ChatID = id
		return nil
	}

	type plain JoinChatPayload
	return json.Unmarshal(data, (*plain)(p))
}

// TypingPayload is relayed verbatim to the other handles in the chat room.
type TypingPayload struct {
	ChatID string          `json:"chatId" validate:"required"`
	User   json.RawMessage `json:"user,omitempty"`
}

// MessagesReadPayload acknowledges reading up to LastReadMessageID.
type MessagesReadPayload struct {
	ChatID            string `json:"chatId" validate:"required"`
	UserID            string `json:"userId"`
	LastReadMessageID string `json:"lastReadMessageId" validate:"required"`
}

// ChatJoinedPayload acknowledges joinChat.
type ChatJoinedPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// DeliveredPayload announces that UserID received the chat's pending messages.
type DeliveredPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// ReadByUserPayload announces a bulk read mark.
type ReadByUserPayload struct {
	ChatID            string `json:"chatId"`
	UserID            string `json:"userId"`
	LastReadMessageID string `json:"lastReadMessageId"`
}

// MessageDeletedPayload announces a delete-for-everyone.
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

// UserUpdatePayload patches profile or presence fields of UserID on clients.
type UserUpdatePayload struct {
	UserID  string         `json:"userId"`
	Updates map[string]any `json:"updates"`
}

// PresenceUpdates builds the Update-user patch sent when a user goes offline.
func PresenceUpdates(status string, lastSeen time.Time) map[string]any {
	return map[string]any{"status": status, "lastSeen": lastSeen}
}

// ErrorPayload reports a rejected inbound event back to its sender.
type ErrorPayload struct {
	Event   string `json:"event"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Encode marshals an envelope carrying payload.
func Encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
