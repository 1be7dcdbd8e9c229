package core

import "sync"

// RoomRegistry maps chat ids to the connections subscribed to them. A room
// here is only a fan-out grouping key; the authoritative conversation
// record lives in the durable store. Membership is per connection, not per
// user: two tabs of one user subscribe independently.
type RoomRegistry struct {
	mu sync.RWMutex
	// rooms[chatID] -> member connections
	rooms map[string]map[*Conn]struct{}
	// joined[conn] -> rooms the connection belongs to, for disconnect cleanup
	joined map[*Conn]map[string]struct{}
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]map[*Conn]struct{}),
		joined: make(map[*Conn]map[string]struct{}),
	}
}

// Join subscribes c to roomID. Joining twice is a no-op; a connection never
// appears in a room's fan-out set more than once.
func (r *RoomRegistry) Join(c *Conn, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Conn]struct{})
		r.rooms[roomID] = members
	}
	members[c] = struct{}{}

	rooms, ok := r.joined[c]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[c] = rooms
	}
	rooms[roomID] = struct{}{}
}

// Leave removes c from roomID. Leaving a room the connection never joined
// is a no-op.
func (r *RoomRegistry) Leave(c *Conn, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(c, roomID)
}

// DropConn removes c from every room it had joined. Called synchronously
// from disconnect handling before any further event referencing c.
func (r *RoomRegistry) DropConn(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for roomID := range r.joined[c] {
		r.leave(c, roomID)
	}
	delete(r.joined, c)
}

func (r *RoomRegistry) leave(c *Conn, roomID string) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	if rooms, ok := r.joined[c]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.joined, c)
		}
	}
}

// Members returns a snapshot of the connections subscribed to roomID.
func (r *RoomRegistry) Members(roomID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]*Conn, 0, len(r.rooms[roomID]))
	for c := range r.rooms[roomID] {
		members = append(members, c)
	}
	return members
}

// Contains reports whether c is subscribed to roomID.
func (r *RoomRegistry) Contains(c *Conn, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][c]
	return ok
}
