package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Event is the wire frame exchanged over a connection. Origin is set on
// inbound events only and identifies the connection that dispatched it.
type Event struct {
	Origin  *Conn           `json:"-"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Payload.Size: %d}", e.Type, len(e.Payload))
}

// NewEvent marshals payload into an outbound event frame.
func NewEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Event{Type: t, Payload: b}, nil
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

type EventHandler func(context.Context, *Event) error

// EventRouter multiplexes all inbound events onto a single dispatch
// goroutine. Handlers run to completion before the next event is taken,
// which is what gives per-room delivery order without any room-level
// locking.
type EventRouter struct {
	handlers map[string]EventHandler
	ctx      context.Context
	in       <-chan *Event
	logger   *slog.Logger
}

func NewEventRouter(ctx context.Context, logger *slog.Logger, in <-chan *Event) *EventRouter {
	return &EventRouter{
		handlers: make(map[string]EventHandler),
		ctx:      ctx,
		in:       in,
		logger:   logger,
	}
}

func (r *EventRouter) On(eventType string, h EventHandler) {
	if _, ok := r.handlers[eventType]; ok {
		panic(fmt.Sprintf("handler(%s): already registered", eventType))
	}
	r.handlers[eventType] = h
}

func (r *EventRouter) Listen(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				return
			case e, ok := <-r.in:
				if !ok {
					return
				}
				r.dispatch(e)
			}
		}
	}()
}

func (r *EventRouter) dispatch(e *Event) {
	h, ok := r.handlers[e.Type]
	if !ok {
		r.logger.Warn(fmt.Sprintf("no handler for %s", e.Type))
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(fmt.Sprintf("handler(%s) panic: %v", e.Type, rec))
		}
	}()
	if err := h(r.ctx, e); err != nil {
		// Rejections are policy, not faults: the client gets nothing back
		// either way, but they must not drown out real errors in the logs.
		if errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrMalformedPayload) {
			r.logger.Warn(fmt.Sprintf("handler(%s): %v", e.Type, err))
			return
		}
		r.logger.Error(fmt.Sprintf("handler(%s): %v", e.Type, err))
	}
}
