// Package presence tracks which users currently hold live connections.
package presence

import (
	"sort"
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// Handle identifies one live connection. The table only looks handles up;
// closing the underlying connection is the owner's job.
type Handle interface {
	ID() string
}

// Table maps user ids to their set of open handles. A user is present
// iff the set is non-empty; empty sets are purged.
type Table struct {
	mu      sync.RWMutex
	users   map[string]map[string]Handle
	changed chan struct{}
}

func NewTable() *Table {
	return &Table{
		users:   make(map[string]map[string]Handle),
		changed: make(chan struct{}, 1),
	}
}

// Register adds h to userID's set. Re-registering the same handle is a no-op.
func (t *Table) Register(userID string, h Handle) {
	t.mu.Lock()
	conns, ok := t.users[userID]
	if !ok {
		conns = make(map[string]Handle)
		t.users[userID] = conns
	}
	conns[h.ID()] = h
	count := len(conns)
	t.mu.Unlock()

	jww.DEBUG.Printf("[presence] registered %s for %s (%d open)", h.ID(), userID, count)
	if !ok {
		jww.INFO.Printf("[presence] 🟢 %s online", userID)
		t.signal()
	}
}

// Unregister removes h from userID's set. Unknown handles are ignored.
func (t *Table) Unregister(userID string, h Handle) {
	t.mu.Lock()
	conns, ok := t.users[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if _, ok := conns[h.ID()]; !ok {
		t.mu.Unlock()
		return
	}
	delete(conns, h.ID())
	wentOffline := len(conns) == 0
	if wentOffline {
		delete(t.users, userID)
	}
	t.mu.Unlock()

	jww.DEBUG.Printf("[presence] unregistered %s for %s", h.ID(), userID)
	if wentOffline {
		jww.INFO.Printf("[presence] ⚪ %s offline", userID)
		t.signal()
	}
}

func (t *Table) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.users[userID]
	return ok
}

// Snapshot returns the online user ids in sorted order.
func (t *Table) Snapshot() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.users))
	for id := range t.users {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// ConnectionsFor returns a copy of userID's open handles, possibly empty.
func (t *Table) ConnectionsFor(userID string) []Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conns := t.users[userID]
	out := make([]Handle, 0, len(conns))
	for _, h := range conns {
		out = append(out, h)
	}
	return out
}

// Changes delivers a signal after presence transitions. Signals coalesce:
// a receiver that snapshots after each receive never misses the latest state.
func (t *Table) Changes() <-chan struct{} {
	return t.changed
}

func (t *Table) signal() {
	select {
	case t.changed <- struct{}{}:
	default:
	}
}
