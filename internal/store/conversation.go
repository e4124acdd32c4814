package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"chatrelay/internal/database"
	"chatrelay/internal/model"
)

// ConversationStore persists conversations. The pair is stored sorted
// (member_a < member_b) so the unique key covers both orders.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func sortedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Start returns the conversation between a and b, creating it if needed.
func (s *ConversationStore) Start(ctx context.Context, a, b string) (*model.Conversation, error) {
	lo, hi := sortedPair(a, b)

	c, err := s.byPair(ctx, lo, hi)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	c = &model.Conversation{
		ID:        uuid.NewString(),
		MemberIDs: []string{lo, hi},
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, member_a, member_b, created_at) VALUES (?, ?, ?, ?)",
		c.ID, lo, hi, c.CreatedAt)
	if err != nil {
		// Lost a race with a concurrent Start for the same pair.
		if database.IsDuplicate(err) {
			return s.byPair(ctx, lo, hi)
		}
		return nil, errors.Wrap(err, "conversationStore.Start.Insert")
	}
	return c, nil
}

// ForUser lists the conversations userID is a member of, oldest first.
func (s *ConversationStore) ForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, member_a, member_b, created_at FROM conversations
		WHERE member_a = ? OR member_b = ?
		ORDER BY created_at, id`, userID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "conversationStore.ForUser.Query")
	}
	defer rows.Close()

	convs := []model.Conversation{}
	for rows.Next() {
		var c model.Conversation
		var a, b string
		if err := rows.Scan(&c.ID, &a, &b, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "conversationStore.ForUser.Scan")
		}
		c.MemberIDs = []string{a, b}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "conversationStore.ForUser.Rows")
	}
	return convs, nil
}

// byPair returns sql.ErrNoRows unwrapped when the pair has no conversation.
func (s *ConversationStore) byPair(ctx context.Context, lo, hi string) (*model.Conversation, error) {
	c := &model.Conversation{MemberIDs: []string{lo, hi}}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM conversations WHERE member_a = ? AND member_b = ?", lo, hi).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "conversationStore.byPair.Scan")
	}
	return c, nil
}
