package core

import (
	"context"
	"sort"
	"sync"
)

// Presence tracks which users currently have at least one live connection.
// Connect and Disconnect report the transitions the gateway must announce:
// first going true on a user's first connection, last going true when their
// final connection drops. A user with two tabs open stays online until both
// are gone.
type Presence interface {
	Connect(ctx context.Context, userID string) (first bool, err error)
	Disconnect(ctx context.Context, userID string) (last bool, err error)
	Snapshot(ctx context.Context) ([]string, error)
}

// MemoryPresence is the single-node reference implementation: a refcount
// per user, rebuilt from zero on process restart. Deployments that spread
// the gateway across processes use RedisPresence instead.
type MemoryPresence struct {
	mu   sync.RWMutex
	refs map[string]int
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{refs: make(map[string]int)}
}

func (p *MemoryPresence) Connect(_ context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs[userID]++
	return p.refs[userID] == 1, nil
}

func (p *MemoryPresence) Disconnect(_ context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.refs[userID]
	if !ok {
		return false, nil
	}
	if n <= 1 {
		delete(p.refs, userID)
		return true, nil
	}
	p.refs[userID] = n - 1
	return false, nil
}

func (p *MemoryPresence) Snapshot(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	users := make([]string, 0, len(p.refs))
	for u := range p.refs {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}
