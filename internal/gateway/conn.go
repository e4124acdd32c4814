package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/apperr"
	"chatrelay/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Conn is one websocket connection. It is the presence.Handle the gateway
// registers; only the gateway closes it.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	gw     *Gateway

	state     atomic.Int32
	send      chan model.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(gw *Gateway, id string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		gw:   gw,
		send: make(chan model.Event, gw.opts.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }
func (c *Conn) State() State   { return State(c.state.Load()) }

// Done is closed once the connection has been torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) enqueue(ev model.Event) error {
	if c.State() != StateOpen {
		return apperr.Delivery("connection not open", nil)
	}
	select {
	case <-c.done:
		return apperr.Delivery("connection closed", nil)
	default:
	}
	select {
	case c.send <- ev:
		return nil
	default:
		jww.WARN.Printf("[WebSocket] %s (%s) send buffer full, closing slow consumer", c.id, c.userID)
		c.Close()
		return apperr.Delivery("send buffer full", nil)
	}
}

// Close tears the connection down exactly once, unregistering it from
// presence if it had been opened.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosed)))
		if prev == StateOpen {
			c.gw.presence.Unregister(c.userID, c)
		}
		c.gw.remove(c)
		close(c.done)
		c.ws.Close()

		jww.INFO.Printf("[WebSocket] Client %s (%s) disconnected. Total clients: %d",
			c.id, c.userID, c.gw.OpenConnections())
	})
}

// readPump reads client frames until the transport fails. Only keepalive
// pings are meaningful after authentication.
func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev model.Event
		if err := c.ws.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				jww.WARN.Printf("[WebSocket] read error from %s (%s): %v", c.id, c.userID, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		switch ev.Type {
		case model.EventPing:
			if err := c.enqueue(model.Event{Type: model.EventPong}); err != nil {
				jww.DEBUG.Printf("[WebSocket] pong to %s dropped: %v", c.id, err)
			}
		default:
			jww.DEBUG.Printf("[WebSocket] ignoring %q frame from %s", ev.Type, c.id)
		}
	}
}

// writePump is the connection's only writer once it is open.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				jww.WARN.Printf("[WebSocket] write to %s (%s) failed: %v", c.id, c.userID, err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
