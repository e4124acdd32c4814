package pairlock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStripeIsOrderIndependent(t *testing.T) {
	assert.Equal(t, stripe("alice", "bob"), stripe("bob", "alice"))
	assert.Less(t, stripe("x", "y"), uint32(stripes))
}

func TestLockSerializesPair(t *testing.T) {
	l := New()
	unlock := l.Lock("alice", "bob")

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		u := l.Lock("bob", "alice")
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("reversed pair acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}

func TestConcurrentCounter(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	n := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "a", "b"
			if i%2 == 0 {
				a, b = b, a
			}
			unlock := l.Lock(a, b)
			n++
			unlock()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, n)
}
