// Package gateway terminates websocket connections, authenticates them and
// bridges their lifecycle to the presence table.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/apperr"
	"chatrelay/internal/auth"
	"chatrelay/internal/model"
	"chatrelay/internal/presence"
)

// Presence is the subset of presence.Table the gateway drives.
type Presence interface {
	Register(userID string, h presence.Handle)
	Unregister(userID string, h presence.Handle)
	Snapshot() []string
	Changes() <-chan struct{}
}

type Options struct {
	AllowedOrigins []string
	// AuthTimeout bounds how long a connection may stay unauthenticated.
	AuthTimeout time.Duration
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
}

// Gateway owns every live websocket connection.
type Gateway struct {
	presence Presence
	verifier auth.Verifier
	upgrader websocket.Upgrader
	opts     Options

	mu       sync.RWMutex
	conns    map[string]*Conn
	shutdown bool
}

func New(p Presence, v auth.Verifier, opts Options) *Gateway {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 5 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &Gateway{
		presence: p,
		verifier: v,
		upgrader: createUpgrader(opts.AllowedOrigins),
		opts:     opts,
		conns:    make(map[string]*Conn),
	}
}

// Push queues ev on the connection behind h without blocking. A closed or
// saturated connection yields a DeliveryBestEffortFailure; saturated
// connections are closed as slow consumers.
func (g *Gateway) Push(h presence.Handle, ev model.Event) error {
	g.mu.RLock()
	c, ok := g.conns[h.ID()]
	g.mu.RUnlock()
	if !ok {
		return apperr.Delivery("connection closed", nil)
	}
	return c.enqueue(ev)
}

// Broadcast pushes ev to every open connection. Failures are logged only.
func (g *Gateway) Broadcast(ev model.Event) {
	// 接続をスナップショットしてからロックを外す
	g.mu.RLock()
	snapshot := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		snapshot = append(snapshot, c)
	}
	g.mu.RUnlock()

	for _, c := range snapshot {
		if err := c.enqueue(ev); err != nil {
			jww.WARN.Printf("[WebSocket] broadcast %s to %s (%s) failed: %v", ev.Type, c.id, c.userID, err)
		}
	}
}

// HandleBroadcast sends the current roster to every connection after each
// presence change, until ctx is done.
func (g *Gateway) HandleBroadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.presence.Changes():
			online := g.presence.Snapshot()
			jww.INFO.Printf("[WebSocket] 📢 Broadcasting roster: %d online", len(online))
			g.Broadcast(model.RosterEvent(online))
		}
	}
}

// OpenConnections returns the number of registered connections.
func (g *Gateway) OpenConnections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// Shutdown closes every connection and refuses new ones.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	g.shutdown = true
	snapshot := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		snapshot = append(snapshot, c)
	}
	g.mu.Unlock()

	for _, c := range snapshot {
		c.Close()
	}
	jww.INFO.Printf("[WebSocket] gateway shut down, closed %d connections", len(snapshot))
}

func (g *Gateway) add(c *Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shutdown {
		return false
	}
	g.conns[c.id] = c
	return true
}

func (g *Gateway) remove(c *Conn) {
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
}
