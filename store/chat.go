package store

import (
	"context"
	"errors"
	"time"

	"github.com/skillswap/skillswap/core"
)

var (
	// ErrChatNotFound is returned when a conversation id has no record.
	ErrChatNotFound = errors.New("chat not found")
)

// Chat is the authoritative conversation record: participants plus the
// last-message metadata the marketplace UI sorts conversations by.
type Chat struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// ChatStore is the durable log the realtime core collaborates with. It
// holds the ordered message history; the relay holds nothing. Subscribe is
// the change-feed primitive reconnecting clients converge through.
type ChatStore interface {
	// CreateChat registers a conversation between participants.
	CreateChat(ctx context.Context, id string, participants []string) error

	Chat(ctx context.Context, id string) (*Chat, error)

	// ChatsByParticipant lists conversations the user takes part in,
	// most recently active first.
	ChatsByParticipant(ctx context.Context, userID string) ([]Chat, error)

	// AppendMessage writes a message record and updates the owning chat's
	// last-message metadata.
	AppendMessage(ctx context.Context, m core.Message) error

	// Messages returns the chat's history ordered by creation time.
	Messages(ctx context.Context, chatID string) ([]core.Message, error)

	// MarkMessagesRead flips the read flag on the given messages. Only
	// messages the reader did not send are flipped.
	MarkMessagesRead(ctx context.Context, chatID string, messageIDs []string, readBy string) error

	// Subscribe returns an ordered feed of messages appended to chatID
	// from now on. The returned cancel func releases the subscription.
	Subscribe(chatID string) (<-chan core.Message, func())
}
