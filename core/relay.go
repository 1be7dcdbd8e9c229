package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Persister is the durable-store write path exercised alongside the live
// relay. The two paths are deliberately unordered and untransacted: the
// relay never waits for the store, and a store failure never retracts a
// broadcast. The client reconciliation layer owns convergence.
type Persister interface {
	AppendMessage(ctx context.Context, m Message) error
	MarkMessagesRead(ctx context.Context, chatID string, messageIDs []string, readBy string) error
}

// ChatRelay fans chat traffic out to room members: full messages, unread
// notifications, read receipts and typing state. Delivery is fire-and-forget
// to currently connected peers; offline peers catch up through the durable
// store on reconnect, never through relay replay.
type ChatRelay struct {
	gateway   *Gateway
	rooms     *RoomRegistry
	ids       *MessageIDGenerator
	persister Persister
	logger    *slog.Logger
}

func NewChatRelay(gateway *Gateway, rooms *RoomRegistry, persister Persister, logger *slog.Logger) *ChatRelay {
	return &ChatRelay{
		gateway:   gateway,
		rooms:     rooms,
		ids:       NewMessageIDGenerator(),
		persister: persister,
		logger:    logger,
	}
}

// HandleSendMessage builds the message envelope, kicks off the durable
// write and broadcasts to every room member except the sending connection.
// The sender's own UI updates optimistically and receives nothing back.
func (r *ChatRelay) HandleSendMessage(ctx context.Context, e *Event) error {
	c := e.Origin
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	var payload SendMessagePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil ||
		payload.ChatID == "" || payload.Text == "" {
		return ErrMalformedPayload
	}

	id, createdAt := r.ids.Next()
	msg := Message{
		ID:        id,
		ChatID:    payload.ChatID,
		SenderID:  c.UserID(),
		Text:      payload.Text,
		CreatedAt: createdAt,
		Read:      false,
	}

	// Durable write runs concurrently with the broadcast; neither path
	// waits for or confirms the other.
	if r.persister != nil {
		go func() {
			if err := r.persister.AppendMessage(ctx, msg); err != nil {
				r.logger.Warn(fmt.Sprintf("append message %s: %v", msg.ID, err))
			}
		}()
	}

	msgEvent, err := NewEvent(EventNewMessage, msg)
	if err != nil {
		return err
	}
	noticeEvent, err := NewEvent(EventMessageNotification, MessageNotification{
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
	})
	if err != nil {
		return err
	}

	members := r.rooms.Members(payload.ChatID)
	r.gateway.Deliver(msgEvent, members, c)
	r.gateway.Deliver(noticeEvent, members, c)
	return nil
}

// HandleMarkRead broadcasts a read receipt to the room and flips the
// durable read flags through the store's own write path. Message ids are
// trusted and forwarded in the order given.
func (r *ChatRelay) HandleMarkRead(ctx context.Context, e *Event) error {
	c := e.Origin
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	var payload MarkReadPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil ||
		payload.ChatID == "" || len(payload.MessageIDs) == 0 {
		return ErrMalformedPayload
	}

	readBy := c.UserID()
	if r.persister != nil {
		go func() {
			if err := r.persister.MarkMessagesRead(ctx, payload.ChatID, payload.MessageIDs, readBy); err != nil {
				r.logger.Warn(fmt.Sprintf("mark read %s: %v", payload.ChatID, err))
			}
		}()
	}

	receipt, err := NewEvent(EventMessagesRead, MessagesReadPayload{
		ChatID:     payload.ChatID,
		MessageIDs: payload.MessageIDs,
		ReadBy:     readBy,
	})
	if err != nil {
		return err
	}
	r.gateway.Deliver(receipt, r.rooms.Members(payload.ChatID), c)
	return nil
}

// HandleTyping relays typing state to the room. Nothing is persisted and
// nothing expires server-side; receivers age the indicator out themselves.
func (r *ChatRelay) HandleTyping(_ context.Context, e *Event) error {
	return r.relayTyping(e, EventUserTyping)
}

func (r *ChatRelay) HandleStopTyping(_ context.Context, e *Event) error {
	return r.relayTyping(e, EventUserStopTyping)
}

func (r *ChatRelay) relayTyping(e *Event, outType string) error {
	c := e.Origin
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	var payload RoomPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil || payload.ChatID == "" {
		return ErrMalformedPayload
	}
	out, err := NewEvent(outType, TypingPayload{ChatID: payload.ChatID, UserID: c.UserID()})
	if err != nil {
		return err
	}
	r.gateway.Deliver(out, r.rooms.Members(payload.ChatID), c)
	return nil
}
