package model

import "time"

// Member is the public part of a user shown in a conversation listing.
type Member struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic"`
}

// Conversation links two users. There is at most one per pair.
type Conversation struct {
	ID        string    `json:"_id"`
	MemberIDs []string  `json:"-"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}
