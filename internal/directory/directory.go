// Package directory answers who a user has talked to and serves
// conversation history.
package directory

import (
	"context"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/apperr"
	"chatrelay/internal/model"
	"chatrelay/internal/pairlock"
	"chatrelay/internal/store"
)

type MessageStore interface {
	PeerIDs(ctx context.Context, userID string) ([]string, error)
	UnseenCounts(ctx context.Context, userID string) (map[string]int, error)
	FetchAndMarkSeen(ctx context.Context, userID, peerID string) ([]model.Message, error)
	DeleteConversation(ctx context.Context, a, b string) (int64, error)
}

type UserStore interface {
	ByID(ctx context.Context, id string) (*model.User, error)
	ByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

type ConversationStore interface {
	Start(ctx context.Context, a, b string) (*model.Conversation, error)
	ForUser(ctx context.Context, userID string) ([]model.Conversation, error)
}

type Service struct {
	messages      MessageStore
	users         UserStore
	conversations ConversationStore
	locks         *pairlock.Locker
}

func NewService(messages MessageStore, users UserStore, conversations ConversationStore, locks *pairlock.Locker) *Service {
	return &Service{messages: messages, users: users, conversations: conversations, locks: locks}
}

// ListConversationPeers returns every user userID has exchanged messages
// with, each with the number of unseen messages they sent to userID.
func (s *Service) ListConversationPeers(ctx context.Context, userID string) ([]model.Peer, error) {
	ids, err := s.messages.PeerIDs(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("failed to list conversations", err)
	}
	if len(ids) == 0 {
		return []model.Peer{}, nil
	}

	users, err := s.users.ByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Persistence("failed to load users", err)
	}
	counts, err := s.messages.UnseenCounts(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("failed to count unseen messages", err)
	}

	peers := make([]model.Peer, 0, len(users))
	for _, u := range users {
		peers = append(peers, model.Peer{User: u, UnseenCount: counts[u.ID]})
	}
	return peers, nil
}

// FetchHistory returns the conversation in ascending order and marks the
// returned messages from peerID as seen.
func (s *Service) FetchHistory(ctx context.Context, userID, peerID string) ([]model.Message, error) {
	if peerID == "" {
		return nil, apperr.InvalidRequest("peer id is required")
	}
	msgs, err := s.messages.FetchAndMarkSeen(ctx, userID, peerID)
	if err != nil {
		return nil, apperr.Persistence("failed to load messages", err)
	}
	return msgs, nil
}

// DeleteConversation removes the conversation in both directions. It holds
// the pair lock, so an in-flight send either lands before it (and is
// deleted) or after it.
func (s *Service) DeleteConversation(ctx context.Context, userID, peerID string) (int64, error) {
	if peerID == "" {
		return 0, apperr.InvalidRequest("peer id is required")
	}

	unlock := s.locks.Lock(userID, peerID)
	defer unlock()

	n, err := s.messages.DeleteConversation(ctx, userID, peerID)
	if err != nil {
		return 0, apperr.Persistence("failed to delete chat", err)
	}
	jww.INFO.Printf("[directory] deleted %d messages between %s and %s", n, userID, peerID)
	return n, nil
}

// StartConversation opens the conversation between userID and peerID.
// Starting one that already exists returns it unchanged.
func (s *Service) StartConversation(ctx context.Context, userID, peerID string) (*model.Conversation, error) {
	if peerID == "" {
		return nil, apperr.InvalidRequest("receiverId is required")
	}
	if _, err := s.users.ByID(ctx, peerID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.InvalidRequest("receiver does not exist")
		}
		return nil, apperr.Persistence("failed to look up receiver", err)
	}

	c, err := s.conversations.Start(ctx, userID, peerID)
	if err != nil {
		return nil, apperr.Persistence("failed to start conversation", err)
	}
	if err := s.withMembers(ctx, []*model.Conversation{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// ListConversations returns userID's conversations with member names and pictures.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	convs, err := s.conversations.ForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("failed to fetch conversations", err)
	}
	ptrs := make([]*model.Conversation, len(convs))
	for i := range convs {
		ptrs[i] = &convs[i]
	}
	if err := s.withMembers(ctx, ptrs); err != nil {
		return nil, err
	}
	return convs, nil
}

// withMembers fills Members from MemberIDs with one user lookup.
// Members whose account no longer exists are left out.
func (s *Service) withMembers(ctx context.Context, convs []*model.Conversation) error {
	seen := make(map[string]bool)
	var ids []string
	for _, c := range convs {
		for _, id := range c.MemberIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := s.users.ByIDs(ctx, ids)
	if err != nil {
		return apperr.Persistence("failed to load members", err)
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, c := range convs {
		c.Members = make([]model.Member, 0, len(c.MemberIDs))
		for _, id := range c.MemberIDs {
			if u, ok := byID[id]; ok {
				c.Members = append(c.Members, model.Member{ID: u.ID, FullName: u.FullName, ProfilePic: u.ProfilePic})
			}
		}
	}
	return nil
}
