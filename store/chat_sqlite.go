package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/skillswap/skillswap/core"
)

// SQLiteChatStore is the single-node implementation of the durable chat
// log. The in-process subscriber registry stands in for the hosted
// document store's change feed: appenders notify room subscribers after
// the row is committed, so the feed only ever carries confirmed records.
type SQLiteChatStore struct {
	db *sql.DB

	subMu     sync.RWMutex
	subs      map[string]map[int]chan core.Message
	nextSubID int
}

func NewSQLiteChatStore(db *sql.DB) *SQLiteChatStore {
	return &SQLiteChatStore{
		db:   db,
		subs: make(map[string]map[int]chan core.Message),
	}
}

func (s *SQLiteChatStore) CreateChat(ctx context.Context, id string, participants []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chats (id, last_message, last_message_at) VALUES (?, '', NULL)", id); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	for _, p := range participants {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chat_participants (chat_id, user_id) VALUES (?, ?)", id, p); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteChatStore) Chat(ctx context.Context, id string) (*Chat, error) {
	chat := &Chat{ID: id}
	var lastMessageAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT last_message, last_message_at FROM chats WHERE id = ?", id).
		Scan(&chat.LastMessage, &lastMessageAt)
	if err == sql.ErrNoRows {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select chat: %w", err)
	}
	if lastMessageAt.Valid {
		chat.LastMessageAt = lastMessageAt.Time
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY user_id", id)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		chat.Participants = append(chat.Participants, p)
	}
	return chat, rows.Err()
}

func (s *SQLiteChatStore) ChatsByParticipant(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.last_message, c.last_message_at
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.last_message_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var chat Chat
		var lastMessageAt sql.NullTime
		if err := rows.Scan(&chat.ID, &chat.LastMessage, &lastMessageAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		if lastMessageAt.Valid {
			chat.LastMessageAt = lastMessageAt.Time
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (s *SQLiteChatStore) AppendMessage(ctx context.Context, m core.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, text, created_at, read)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.SenderID, m.Text, m.CreatedAt, m.Read); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE chats SET last_message = ?, last_message_at = ? WHERE id = ?`,
		m.Text, m.CreatedAt, m.ChatID); err != nil {
		return fmt.Errorf("update last message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notify(m)
	return nil
}

func (s *SQLiteChatStore) Messages(ctx context.Context, chatID string) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, text, created_at, read
		FROM messages WHERE chat_id = ?
		ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.Message
	for rows.Next() {
		var m core.Message
		var createdAt time.Time
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &createdAt, &m.Read); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = createdAt.UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteChatStore) MarkMessagesRead(ctx context.Context, chatID string, messageIDs []string, readBy string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(messageIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(messageIDs)+2)
	args = append(args, chatID, readBy)
	for _, id := range messageIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		UPDATE messages SET read = 1
		WHERE chat_id = ? AND sender_id != ? AND id IN (%s)`, placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update read flags: %w", err)
	}
	return nil
}

func (s *SQLiteChatStore) Subscribe(chatID string) (<-chan core.Message, func()) {
	ch := make(chan core.Message, 64)

	s.subMu.Lock()
	subs, ok := s.subs[chatID]
	if !ok {
		subs = make(map[int]chan core.Message)
		s.subs[chatID] = subs
	}
	id := s.nextSubID
	s.nextSubID++
	subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if subs, ok := s.subs[chatID]; ok {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				close(ch)
				if len(subs) == 0 {
					delete(s.subs, chatID)
				}
			}
		}
	}
	return ch, cancel
}

func (s *SQLiteChatStore) notify(m core.Message) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subs[m.ChatID] {
		// A subscriber that stopped draining misses updates; it will
		// re-list on reconnect like any other stale client.
		select {
		case ch <- m:
		default:
		}
	}
}
