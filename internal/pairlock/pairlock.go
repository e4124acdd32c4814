// Package pairlock serializes work on a conversation between two users.
package pairlock

import (
	"hash/fnv"
	"sync"
)

const stripes = 64

// Locker hands out a mutex per unordered user pair. Distinct pairs may share
// a stripe; that only costs contention, never correctness.
type Locker struct {
	mu [stripes]sync.Mutex
}

func New() *Locker {
	return &Locker{}
}

// Lock locks the pair (a, b), equal to (b, a), and returns the unlock func.
func (l *Locker) Lock(a, b string) (unlock func()) {
	m := &l.mu[stripe(a, b)]
	m.Lock()
	return m.Unlock
}

func stripe(a, b string) uint32 {
	if a > b {
		a, b = b, a
	}
	h := fnv.New32a()
	h.Write([]byte(a))
	h.Write([]byte{0})
	h.Write([]byte(b))
	return h.Sum32() % stripes
}
