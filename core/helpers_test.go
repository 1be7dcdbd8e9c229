package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var baseTimeout = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type gatewayFixture struct {
	t        *testing.T
	ctx      context.Context
	gateway  *Gateway
	rooms    *RoomRegistry
	presence *MemoryPresence
	relay    *ChatRelay
	wg       sync.WaitGroup
	tearDown func()
}

func newGatewayFixture(t *testing.T, persister Persister) *gatewayFixture {
	ctx, cancel := context.WithCancel(context.Background())

	f := &gatewayFixture{t: t, ctx: ctx}
	f.rooms = NewRoomRegistry()
	f.presence = NewMemoryPresence()

	auth, err := NewAuthenticator(TrustClaimed, nil)
	require.NoError(t, err)

	logger := discardLogger()
	f.gateway = NewGateway(ctx, &f.wg, logger, auth, f.presence, f.rooms)
	f.relay = NewChatRelay(f.gateway, f.rooms, persister, logger)

	f.tearDown = func() {
		cancel()
		f.wg.Wait()
	}
	return f
}

// conn registers a connection as if the gateway had admitted it, without a
// real socket. The read and write loops never run; events queued for the
// connection pile up in its write stream where the test can inspect them.
// A non-empty userID also completes the authenticate handshake.
func (f *gatewayFixture) conn(userID string) *Conn {
	c := &Conn{
		context:     f.ctx,
		id:          uuid.NewString(),
		writeStream: make(chan *Event, f.gateway.WriteStreamSize),
		readStream:  f.gateway.receivedEvents,
		logger:      discardLogger(),
	}

	f.gateway.mu.Lock()
	f.gateway.conns[c.id] = c
	f.gateway.mu.Unlock()

	if userID != "" {
		c.bind(userID)
		_, err := f.presence.Connect(f.ctx, userID)
		require.NoError(f.t, err)
	}
	return c
}

// inbound builds an event as the read loop would have produced it.
func inbound(t *testing.T, origin *Conn, eventType string, payload interface{}) *Event {
	e, err := NewEvent(eventType, payload)
	require.NoError(t, err)
	e.Origin = origin
	return e
}

func recvEvent(t *testing.T, c *Conn) *Event {
	select {
	case e := <-c.writeStream:
		require.NotNil(t, e)
		return e
	case <-time.After(baseTimeout):
		require.Fail(t, "timeout waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Conn) {
	select {
	case e := <-c.writeStream:
		require.Failf(t, "unexpected event", "%s", e)
	default:
	}
}

type readCall struct {
	chatID     string
	messageIDs []string
	readBy     string
}

// recordingPersister captures the durable writes the relay kicks off.
type recordingPersister struct {
	mu       sync.Mutex
	appended []Message
	reads    []readCall
}

func (p *recordingPersister) AppendMessage(_ context.Context, m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appended = append(p.appended, m)
	return nil
}

func (p *recordingPersister) MarkMessagesRead(_ context.Context, chatID string, messageIDs []string, readBy string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads = append(p.reads, readCall{chatID: chatID, messageIDs: messageIDs, readBy: readBy})
	return nil
}

func (p *recordingPersister) appendedMessages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.appended...)
}

func (p *recordingPersister) readCalls() []readCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]readCall(nil), p.reads...)
}
