package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handle string

func (h handle) ID() string { return string(h) }

func drain(t *Table) bool {
	select {
	case <-t.Changes():
		return true
	default:
		return false
	}
}

func TestTable_RegisterUnregister(t *testing.T) {
	tbl := NewTable()

	assert.False(t, tbl.IsOnline("alice"))
	assert.Empty(t, tbl.ConnectionsFor("alice"))

	tbl.Register("alice", handle("c1"))
	assert.True(t, tbl.IsOnline("alice"))
	assert.True(t, drain(tbl), "absent→present signals")

	tbl.Register("alice", handle("c2"))
	assert.Len(t, tbl.ConnectionsFor("alice"), 2)
	assert.False(t, drain(tbl), "second tab is not a transition")

	tbl.Unregister("alice", handle("c1"))
	assert.True(t, tbl.IsOnline("alice"))
	assert.False(t, drain(tbl))

	tbl.Unregister("alice", handle("c2"))
	assert.False(t, tbl.IsOnline("alice"))
	assert.Empty(t, tbl.Snapshot())
	assert.True(t, drain(tbl), "present→absent signals")
}

func TestTable_RoundTripRestoresState(t *testing.T) {
	tbl := NewTable()
	tbl.Register("bob", handle("b1"))
	before := tbl.Snapshot()
	beforeConns := tbl.ConnectionsFor("bob")

	tbl.Register("alice", handle("a1"))
	tbl.Unregister("alice", handle("a1"))

	assert.Equal(t, before, tbl.Snapshot())
	assert.ElementsMatch(t, beforeConns, tbl.ConnectionsFor("bob"))
	assert.Empty(t, tbl.ConnectionsFor("alice"))
}

func TestTable_UnknownUnregisterIsNoop(t *testing.T) {
	tbl := NewTable()
	tbl.Register("alice", handle("a1"))
	drain(tbl)

	tbl.Unregister("alice", handle("nope"))
	tbl.Unregister("ghost", handle("a1"))

	assert.True(t, tbl.IsOnline("alice"))
	assert.False(t, drain(tbl))

	tbl.Unregister("alice", handle("a1"))
	tbl.Unregister("alice", handle("a1"))
	assert.False(t, tbl.IsOnline("alice"))
}

func TestTable_SignalsCoalesceWithoutBlocking(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < 100; i++ {
		tbl.Register(fmt.Sprintf("u%d", i), handle(fmt.Sprintf("c%d", i)))
	}
	assert.True(t, drain(tbl))
	assert.False(t, drain(tbl))
	assert.Len(t, tbl.Snapshot(), 100)
}

func TestTable_SnapshotMatchesConnections(t *testing.T) {
	tbl := NewTable()
	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		for c := 0; c < 4; c++ {
			wg.Add(1)
			go func(u, c int) {
				defer wg.Done()
				user := fmt.Sprintf("user%d", u)
				h := handle(fmt.Sprintf("%s-conn%d", user, c))
				tbl.Register(user, h)
				if c%2 == 0 {
					tbl.Unregister(user, h)
				}
			}(u, c)
		}
	}
	wg.Wait()

	online := tbl.Snapshot()
	require.Len(t, online, 8)
	for u := 0; u < 10; u++ {
		user := fmt.Sprintf("user%d", u)
		assert.Equal(t, tbl.IsOnline(user), len(tbl.ConnectionsFor(user)) > 0, user)
	}
	for _, user := range online {
		assert.Len(t, tbl.ConnectionsFor(user), 2)
	}
}
