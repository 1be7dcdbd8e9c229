package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway accepts inbound socket connections, runs the authenticate
// handshake and tracks the set of live connections. Everything downstream
// (rooms, relays) sees connections only after the gateway admitted them.
type Gateway struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	auth     Authenticator
	presence Presence
	rooms    *RoomRegistry

	// receivedEvents carries every inbound event to the router's single
	// dispatch goroutine.
	receivedEvents chan *Event

	upgrader websocket.Upgrader
	context  context.Context
	connWg   *sync.WaitGroup
	logger   *slog.Logger

	ReadStreamSize  int
	WriteStreamSize int
}

type GatewayOption func(*Gateway)

func WithCheckOrigin(f func(r *http.Request) bool) GatewayOption {
	return func(g *Gateway) {
		g.upgrader.CheckOrigin = f
	}
}

func NewGateway(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger,
	auth Authenticator, presence Presence, rooms *RoomRegistry, opts ...GatewayOption) *Gateway {

	g := &Gateway{
		conns:           make(map[string]*Conn),
		auth:            auth,
		presence:        presence,
		rooms:           rooms,
		upgrader:        defaultUpgrader,
		context:         ctx,
		connWg:          wg,
		logger:          logger,
		ReadStreamSize:  100,
		WriteStreamSize: 100,
	}

	for _, opt := range opts {
		opt(g)
	}

	g.receivedEvents = make(chan *Event, g.ReadStreamSize)

	return g
}

// Events is the inbound stream consumed by the event router.
func (g *Gateway) Events() <-chan *Event {
	return g.receivedEvents
}

// Connect upgrades the request and admits the connection. The connection
// is unauthenticated until it completes the authenticate handshake.
func (g *Gateway) Connect(w http.ResponseWriter, r *http.Request) error {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}

	id := uuid.NewString()
	c := &Conn{
		conn:        conn,
		context:     g.context,
		id:          id,
		writeStream: make(chan *Event, g.WriteStreamSize),
		readStream:  g.receivedEvents,
		ticker:      time.NewTicker(pingPeriod),
		logger:      g.logger.With(slog.String("connection", id)),
	}
	c.notifyDisconnect = func() {
		g.disconnect(c)
	}

	g.mu.Lock()
	g.conns[id] = c
	g.mu.Unlock()

	g.connWg.Add(1)
	go func() {
		defer g.connWg.Done()
		c.readLoop()
	}()
	g.connWg.Add(1)
	go func() {
		defer g.connWg.Done()
		c.writeLoop()
	}()

	g.logger.Info("connection admitted", slog.String("connection", id))
	return nil
}

// HandleAuthenticate binds an identity to the originating connection and
// announces the presence change. The presence broadcast happens only after
// a successful bind; a failed attempt leaves the connection open for retry.
func (g *Gateway) HandleAuthenticate(ctx context.Context, e *Event) error {
	c := e.Origin
	var payload AuthPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return ErrMalformedPayload
	}

	userID, err := g.auth.Authenticate(ctx, payload)
	if err != nil {
		return fmt.Errorf("authenticate connection %s: %w", c.ID(), err)
	}

	if c.Authenticated() {
		// Re-authentication keeps the original identity.
		return nil
	}
	c.bind(userID)

	first, err := g.presence.Connect(ctx, userID)
	if err != nil {
		return fmt.Errorf("presence connect %s: %w", userID, err)
	}

	g.broadcastActiveUsers(ctx)
	if first {
		g.broadcastStatusChange(userID, StatusOnline, c)
	}

	g.logger.Info("connection authenticated",
		slog.String("connection", c.ID()), slog.String("user", userID))
	return nil
}

// HandleJoinRoom subscribes the originating connection to a room.
func (g *Gateway) HandleJoinRoom(_ context.Context, e *Event) error {
	c := e.Origin
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	var payload RoomPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil || payload.ChatID == "" {
		return ErrMalformedPayload
	}
	g.rooms.Join(c, payload.ChatID)
	g.logger.Debug("joined room",
		slog.String("user", c.UserID()), slog.String("chat", payload.ChatID))
	return nil
}

func (g *Gateway) HandleLeaveRoom(_ context.Context, e *Event) error {
	c := e.Origin
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	var payload RoomPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil || payload.ChatID == "" {
		return ErrMalformedPayload
	}
	g.rooms.Leave(c, payload.ChatID)
	return nil
}

// disconnect tears a connection down: room membership and presence are
// cleaned up synchronously before anything else can reference the
// connection, and calling it twice is harmless.
func (g *Gateway) disconnect(c *Conn) {
	g.mu.Lock()
	if _, ok := g.conns[c.ID()]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.conns, c.ID())
	g.mu.Unlock()

	g.rooms.DropConn(c)
	c.close()

	userID := c.UserID()
	if userID == "" {
		return
	}

	last, err := g.presence.Disconnect(g.context, userID)
	if err != nil {
		g.logger.Error(fmt.Sprintf("presence disconnect %s: %v", userID, err))
	}
	g.broadcastActiveUsers(g.context)
	if last {
		g.broadcastStatusChange(userID, StatusOffline, c)
	}
	g.logger.Info("connection closed",
		slog.String("connection", c.ID()), slog.String("user", userID))
}

func (g *Gateway) broadcastActiveUsers(ctx context.Context) {
	users, err := g.presence.Snapshot(ctx)
	if err != nil {
		g.logger.Error(fmt.Sprintf("presence snapshot: %v", err))
		return
	}
	e, err := NewEvent(EventActiveUsers, users)
	if err != nil {
		g.logger.Error(err.Error())
		return
	}
	g.Broadcast(e, nil)
}

func (g *Gateway) broadcastStatusChange(userID, status string, exclude *Conn) {
	e, err := NewEvent(EventUserStatusChange, StatusChangePayload{UserID: userID, Status: status})
	if err != nil {
		g.logger.Error(err.Error())
		return
	}
	g.Broadcast(e, exclude)
}

// Broadcast sends e to every live connection except exclude. Connections
// whose write stream is full are disconnected rather than blocked on.
func (g *Gateway) Broadcast(e *Event, exclude *Conn) {
	g.mu.RLock()
	targets := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		if c == exclude {
			continue
		}
		targets = append(targets, c)
	}
	g.mu.RUnlock()

	g.Deliver(e, targets, nil)
}

// Deliver sends e to each of the given connections except exclude.
func (g *Gateway) Deliver(e *Event, targets []*Conn, exclude *Conn) {
	var stalled []*Conn
	for _, c := range targets {
		if c == exclude {
			continue
		}
		if !c.trySend(e) {
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		g.logger.Warn("dropping stalled connection", slog.String("connection", c.ID()))
		g.disconnect(c)
	}
}

// Close disconnects every live connection.
func (g *Gateway) Close() {
	g.mu.RLock()
	conns := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.RUnlock()
	for _, c := range conns {
		g.disconnect(c)
	}
}
