package model

import "time"

// Message is a direct message between two users.
// Seen only ever moves from false to true.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"createdAt"`

	// Seq is the store's insertion order, used as a tie-breaker for equal timestamps.
	Seq int64 `json:"-"`
}

// Peer is a user the caller has exchanged messages with.
type Peer struct {
	User        User `json:"user"`
	UnseenCount int  `json:"unseenCount"`
}
