// Package reconcile merges the durable store's ordered message stream with
// live relay events into one deduplicated, stably ordered view. It is the
// consuming side's consistency boundary: the two server paths are unordered
// and untransacted by design, and convergence happens here.
package reconcile

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/skillswap/skillswap/core"
)

// Timeline is the merged view of one conversation. Messages are keyed by
// id: the first arrival claims the slot, a later durable record upgrades a
// relay-only entry in place (read flag, authoritative timestamp) without
// moving it. A relay event whose durable record never shows up stays in
// the view and is reported as unconfirmed, a warning-level anomaly rather
// than an error.
type Timeline struct {
	mu    sync.RWMutex
	byID  map[string]*entry
	order []string

	onChange func(core.Message)
}

type entry struct {
	msg     core.Message
	durable bool
}

func NewTimeline() *Timeline {
	return &Timeline{byID: make(map[string]*entry)}
}

// OnChange registers a callback invoked with every message that is added
// or upgraded. Must be set before Run.
func (t *Timeline) OnChange(f func(core.Message)) {
	t.onChange = f
}

// ApplyDurable folds in a record from the store's subscription feed.
func (t *Timeline) ApplyDurable(m core.Message) {
	t.apply(m, true)
}

// ApplyLive folds in a relay event.
func (t *Timeline) ApplyLive(m core.Message) {
	t.apply(m, false)
}

func (t *Timeline) apply(m core.Message, durable bool) {
	t.mu.Lock()
	existing, ok := t.byID[m.ID]
	switch {
	case !ok:
		t.byID[m.ID] = &entry{msg: m, durable: durable}
		t.insert(m.ID)
	case durable:
		// The durable record is authoritative for everything but position.
		existing.msg = m
		existing.durable = true
	default:
		// Relay duplicate of a message already known; nothing to learn.
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(m)
	}
}

// insert keeps order sorted by (createdAt, id) while never displacing an
// already placed message: a new entry only sifts backward past entries
// that sort strictly after it.
func (t *Timeline) insert(id string) {
	msg := t.byID[id].msg
	pos := sort.Search(len(t.order), func(i int) bool {
		other := t.byID[t.order[i]].msg
		if !other.CreatedAt.Equal(msg.CreatedAt) {
			return other.CreatedAt.After(msg.CreatedAt)
		}
		return other.ID > msg.ID
	})
	t.order = append(t.order, "")
	copy(t.order[pos+1:], t.order[pos:])
	t.order[pos] = id
}

// Messages returns the merged view in display order.
func (t *Timeline) Messages() []core.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	msgs := make([]core.Message, 0, len(t.order))
	for _, id := range t.order {
		msgs = append(msgs, t.byID[id].msg)
	}
	return msgs
}

// Unconfirmed returns ids seen only from the relay, in display order.
func (t *Timeline) Unconfirmed() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ids []string
	for _, id := range t.order {
		if !t.byID[id].durable {
			ids = append(ids, id)
		}
	}
	return ids
}

// Run pumps both sources into the timeline until the context is canceled
// or both channels close.
func (t *Timeline) Run(ctx context.Context, durable, live <-chan core.Message) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pump(ctx, durable, t.ApplyDurable)
	})
	g.Go(func() error {
		return pump(ctx, live, t.ApplyLive)
	})
	return g.Wait()
}

func pump(ctx context.Context, in <-chan core.Message, apply func(core.Message)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-in:
			if !ok {
				return nil
			}
			apply(m)
		}
	}
}
