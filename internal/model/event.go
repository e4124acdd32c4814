package model

// Event types exchanged over the websocket.
const (
	EventAuth           = "auth"
	EventPing           = "ping"
	EventPong           = "pong"
	EventPresenceRoster = "presenceRoster"
	EventNewMessage     = "newMessage"
	EventError          = "error"
)

// Event is the single envelope for every websocket frame.
type Event struct {
	Type        string   `json:"type"`
	UserID      string   `json:"userId,omitempty"`
	Token       string   `json:"token,omitempty"`
	OnlineUsers []string `json:"onlineUsers,omitempty"`
	Message     *Message `json:"message,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// RosterEvent builds a presenceRoster event.
func RosterEvent(online []string) Event {
	return Event{Type: EventPresenceRoster, OnlineUsers: online}
}

// NewMessageEvent builds a newMessage event carrying a persisted message.
func NewMessageEvent(msg Message) Event {
	return Event{Type: EventNewMessage, Message: &msg}
}
