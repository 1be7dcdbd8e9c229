package core

import "time"

const (
	// client -> server
	EventAuthenticate = "authenticate"
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventSendMessage  = "send_message"
	EventMarkRead     = "mark_read"
	EventTyping       = "typing"
	EventStopTyping   = "stop_typing"

	// server -> client
	EventActiveUsers         = "active_users"
	EventUserStatusChange    = "user_status_change"
	EventNewMessage          = "new_message"
	EventMessageNotification = "message_notification"
	EventMessagesRead        = "messages_read"
	EventUserTyping          = "user_typing"
	EventUserStopTyping      = "user_stop_typing"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

// AuthPayload carries the credential supplied with an authenticate event.
// Which field is honored depends on the gateway's trust mode.
type AuthPayload struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"userId,omitempty"`
}

type StatusChangePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type RoomPayload struct {
	ChatID string `json:"chatId"`
}

type SendMessagePayload struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// Message is the transient envelope relayed to room members. The durable
// record the store keeps is a copy of this; neither path confirms the other.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

// MessageNotification is the lightweight companion of a new_message event,
// enough for unread-badge logic without rendering the full message.
type MessageNotification struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

type MarkReadPayload struct {
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
}

type MessagesReadPayload struct {
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
	ReadBy     string   `json:"readBy"`
}

type TypingPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}
