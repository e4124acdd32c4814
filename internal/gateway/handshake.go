package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/apperr"
	"chatrelay/internal/auth"
	"chatrelay/internal/model"
)

// createUpgrader builds the upgrader; only origins in allowedOrigins may connect.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedMap[origin]
		},
	}
}

// HandleWebSocket handles GET /ws.
//
// The client claims an identity with ?userId= and proves it with a bearer
// token taken from ?token=, the Authorization header, or, when neither is
// present, a first {"type":"auth"} frame sent within the auth timeout.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claimed := r.URL.Query().Get("userId")
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r)
	}

	// Credentials sent with the upgrade request are checked before upgrading.
	var userID string
	if token != "" {
		id, err := g.authenticate(claimed, token)
		if err != nil {
			jww.WARN.Printf("[GET /ws] ❌ Unauthorized from %s: %v", r.RemoteAddr, err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		userID = id
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		jww.WARN.Printf("[GET /ws] WebSocket upgrade error: %v", err)
		return
	}

	c := newConn(g, uuid.NewString(), ws)

	if userID == "" {
		userID, err = g.authenticateFrame(c, claimed)
		if err != nil {
			jww.WARN.Printf("[GET /ws] ❌ Handshake from %s rejected: %v", r.RemoteAddr, err)
			c.reject("unauthorized")
			return
		}
	}

	c.userID = userID
	c.state.Store(int32(StateAuthenticated))

	if !g.open(c) {
		c.reject("server shutting down")
		return
	}

	go c.writePump()
	c.readPump()
}

func (g *Gateway) authenticate(claimed, token string) (string, error) {
	userID, err := g.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	if claimed != "" && claimed != userID {
		return "", apperr.Unauthorized("claimed identity does not match token")
	}
	return userID, nil
}

// authenticateFrame waits up to AuthTimeout for the auth frame.
func (g *Gateway) authenticateFrame(c *Conn, claimed string) (string, error) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(g.opts.AuthTimeout))

	var ev model.Event
	if err := c.ws.ReadJSON(&ev); err != nil {
		return "", apperr.Wrap(apperr.CodeUnauthorized, "no auth frame", err)
	}
	if ev.Type != model.EventAuth {
		return "", apperr.Unauthorized("first frame must be auth")
	}
	if ev.UserID != "" {
		if claimed != "" && claimed != ev.UserID {
			return "", apperr.Unauthorized("conflicting identity claims")
		}
		claimed = ev.UserID
	}
	return g.authenticate(claimed, ev.Token)
}

// open moves an authenticated connection to Open: it becomes pushable,
// is registered in presence and receives the current roster.
func (g *Gateway) open(c *Conn) bool {
	if !g.add(c) {
		return false
	}
	// Register before publishing Open so a racing Close that observes Open
	// always has an entry to remove; if Close won the race, undo it here.
	g.presence.Register(c.userID, c)
	if !c.state.CompareAndSwap(int32(StateAuthenticated), int32(StateOpen)) {
		g.presence.Unregister(c.userID, c)
		return false
	}

	jww.INFO.Printf("[WebSocket] New connection %s for %s. Total clients: %d", c.id, c.userID, g.OpenConnections())

	if err := c.enqueue(model.RosterEvent(g.presence.Snapshot())); err != nil {
		jww.WARN.Printf("[WebSocket] initial roster to %s failed: %v", c.id, err)
	}
	return true
}

// reject tells a never-opened client why and closes it without touching presence.
func (c *Conn) reject(reason string) {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteJSON(model.Event{Type: model.EventError, Error: reason})
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait))
	c.Close()
}
