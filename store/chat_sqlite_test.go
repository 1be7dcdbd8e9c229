package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap/skillswap/core"
)

type chatStoreFixture struct {
	store    *SQLiteChatStore
	db       *sql.DB
	ctx      context.Context
	t        *testing.T
	tearDown func()
}

func newChatStoreFixture(t *testing.T) *chatStoreFixture {
	ctx, cancel := context.WithCancel(context.Background())

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}

	goose.SetBaseFS(os.DirFS("../migrations"))
	if err := goose.SetDialect("sqlite3"); err != nil {
		t.Fatal(err)
	}
	if err := goose.Up(db, "."); err != nil {
		t.Fatal(err)
	}

	return &chatStoreFixture{
		store: NewSQLiteChatStore(db),
		db:    db,
		ctx:   ctx,
		t:     t,
		tearDown: func() {
			cancel()
			db.Close()
		},
	}
}

func (f *chatStoreFixture) seedChat(id string, participants ...string) {
	require.NoError(f.t, f.store.CreateChat(f.ctx, id, participants))
}

func (f *chatStoreFixture) seedMessage(id, chatID, senderID, text string, createdAt time.Time) core.Message {
	m := core.Message{
		ID:        id,
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: createdAt,
	}
	require.NoError(f.t, f.store.AppendMessage(f.ctx, m))
	return m
}

func TestCreateChat(t *testing.T) {
	t.Run("create and read back", func(t *testing.T) {
		f := newChatStoreFixture(t)
		defer f.tearDown()

		f.seedChat("chat-1", "bob", "alice")

		chat, err := f.store.Chat(f.ctx, "chat-1")
		require.NoError(t, err)
		assert.Equal(t, "chat-1", chat.ID)
		assert.Equal(t, []string{"alice", "bob"}, chat.Participants)
		assert.Empty(t, chat.LastMessage)
		assert.Zero(t, chat.LastMessageAt)
	})

	t.Run("unknown chat", func(t *testing.T) {
		f := newChatStoreFixture(t)
		defer f.tearDown()

		_, err := f.store.Chat(f.ctx, "missing")
		require.ErrorIs(t, err, ErrChatNotFound)
	})
}

func TestAppendMessage(t *testing.T) {
	t.Run("history is ordered by creation time", func(t *testing.T) {
		f := newChatStoreFixture(t)
		defer f.tearDown()
		f.seedChat("chat-1", "alice", "bob")
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		// inserted out of order on purpose
		f.seedMessage("3", "chat-1", "alice", "third", base.Add(2*time.Second))
		f.seedMessage("1", "chat-1", "alice", "first", base)
		f.seedMessage("2", "chat-1", "bob", "second", base.Add(time.Second))

		msgs, err := f.store.Messages(f.ctx, "chat-1")
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "first", msgs[0].Text)
		assert.Equal(t, "second", msgs[1].Text)
		assert.Equal(t, "third", msgs[2].Text)
		assert.False(t, msgs[0].Read)
	})

	t.Run("updates the chat's last message", func(t *testing.T) {
		f := newChatStoreFixture(t)
		defer f.tearDown()
		f.seedChat("chat-1", "alice", "bob")
		sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		f.seedMessage("1", "chat-1", "alice", "hello", sentAt)

		chat, err := f.store.Chat(f.ctx, "chat-1")
		require.NoError(t, err)
		assert.Equal(t, "hello", chat.LastMessage)
		assert.True(t, chat.LastMessageAt.Equal(sentAt))
	})
}

func TestChatsByParticipant(t *testing.T) {
	f := newChatStoreFixture(t)
	defer f.tearDown()
	f.seedChat("chat-1", "alice", "bob")
	f.seedChat("chat-2", "alice", "carol")
	f.seedChat("chat-3", "bob", "carol")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.seedMessage("1", "chat-1", "alice", "older", base)
	f.seedMessage("2", "chat-2", "carol", "newer", base.Add(time.Hour))

	chats, err := f.store.ChatsByParticipant(f.ctx, "alice")

	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "chat-2", chats[0].ID)
	assert.Equal(t, "chat-1", chats[1].ID)
}

func TestMarkMessagesRead(t *testing.T) {
	t.Run("flips only messages the reader did not send", func(t *testing.T) {
		f := newChatStoreFixture(t)
		defer f.tearDown()
		f.seedChat("chat-1", "alice", "bob")
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		f.seedMessage("1", "chat-1", "alice", "from alice", base)
		f.seedMessage("2", "chat-1", "bob", "from bob", base.Add(time.Second))
		f.seedMessage("3", "chat-1", "alice", "unmentioned", base.Add(2*time.Second))

		err := f.store.MarkMessagesRead(f.ctx, "chat-1", []string{"1", "2"}, "bob")

		require.NoError(t, err)
		msgs, err := f.store.Messages(f.ctx, "chat-1")
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.True(t, msgs[0].Read)
		assert.False(t, msgs[1].Read, "reader's own message stays unread")
		assert.False(t, msgs[2].Read, "message outside the id list stays unread")
	})

	t.Run("empty id list is a no-op", func(t *testing.T) {
		f := newChatStoreFixture(t)
		defer f.tearDown()
		f.seedChat("chat-1", "alice", "bob")

		require.NoError(t, f.store.MarkMessagesRead(f.ctx, "chat-1", nil, "bob"))
	})
}

func TestSubscribe(t *testing.T) {
	t.Run("appends reach the subscriber after commit", func(t *testing.T) {
		f := newChatStoreFixture(t)
		defer f.tearDown()
		f.seedChat("chat-1", "alice", "bob")

		feed, cancel := f.store.Subscribe("chat-1")
		defer cancel()

		sent := f.seedMessage("1", "chat-1", "alice", "hello", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

		select {
		case got := <-feed:
			assert.Equal(t, sent.ID, got.ID)
			assert.Equal(t, sent.Text, got.Text)
		case <-time.After(2 * time.Second):
			require.Fail(t, "timeout waiting for feed delivery")
		}
	})

	t.Run("feed is scoped to one chat", func(t *testing.T) {
		f := newChatStoreFixture(t)
		defer f.tearDown()
		f.seedChat("chat-1", "alice", "bob")
		f.seedChat("chat-2", "alice", "carol")

		feed, cancel := f.store.Subscribe("chat-1")
		defer cancel()

		f.seedMessage("1", "chat-2", "alice", "elsewhere", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

		select {
		case m := <-feed:
			require.Failf(t, "unexpected delivery", "message %s", m.ID)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("cancel closes the feed", func(t *testing.T) {
		f := newChatStoreFixture(t)
		defer f.tearDown()
		f.seedChat("chat-1", "alice", "bob")

		feed, cancel := f.store.Subscribe("chat-1")
		cancel()

		_, ok := <-feed
		assert.False(t, ok)
		// cancelling twice is harmless
		cancel()
	})
}
