package realtime

import (
	"sort"
	"sync"
)

// Rooms is a bidirectional membership index: room -> connections and
// connection -> rooms. Both directions change under one lock.
type Rooms struct {
	mu     sync.RWMutex
	byRoom map[string]map[*Conn]struct{}
	byConn map[*Conn]map[string]struct{}
}

// NewRooms creates an empty index.
func NewRooms() *Rooms {
	return &Rooms{
		byRoom: make(map[string]map[*Conn]struct{}),
		byConn: make(map[*Conn]map[string]struct{}),
	}
}

// Join adds c to room. It reports false when c was already a member.
func (r *Rooms) Join(c *Conn, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.byRoom[room]
	if !ok {
		members = make(map[*Conn]struct{})
		r.byRoom[room] = members
	}
	if _, ok := members[c]; ok {
		return false
	}
	members[c] = struct{}{}

	joined, ok := r.byConn[c]
	if !ok {
		joined = make(map[string]struct{})
		r.byConn[c] = joined
	}
	joined[room] = struct{}{}
	return true
}

// LeaveAll removes c from every room and returns the rooms it was in.
func (r *Rooms) LeaveAll(c *Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := sortedSet(r.byConn[c])
	for _, room := range left {
		r.leaveLocked(c, room)
	}
	return left
}

func (r *Rooms) leaveLocked(c *Conn, room string) {
	if members, ok := r.byRoom[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.byRoom, room)
		}
	}
	if joined, ok := r.byConn[c]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.byConn, c)
		}
	}
}

// Members returns the connections in room.
func (r *Rooms) Members(room string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.byRoom[room]))
	for c := range r.byRoom[room] {
		out = append(out, c)
	}
	return out
}

// Of returns the rooms c has joined, sorted.
func (r *Rooms) Of(c *Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedSet(r.byConn[c])
}

// List returns every non-empty room, sorted.
func (r *Rooms) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byRoom))
	for room := range r.byRoom {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
