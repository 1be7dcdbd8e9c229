package core

import (
	"strconv"
	"sync"
	"time"
)

// MessageIDGenerator issues message ids that sort in generation order.
// Ids are millisecond timestamps rendered as decimal strings; when two
// messages land in the same millisecond the counter is bumped past the
// previous value, so ids are strictly increasing within a process.
// Cross-room global ordering is not a goal, per-room order is.
type MessageIDGenerator struct {
	mu   sync.Mutex
	last int64
}

func NewMessageIDGenerator() *MessageIDGenerator {
	return &MessageIDGenerator{}
}

// Next returns a fresh id and the timestamp it encodes.
func (g *MessageIDGenerator) Next() (string, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := time.Now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return strconv.FormatInt(ms, 10), time.UnixMilli(ms).UTC()
}
