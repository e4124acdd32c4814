package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"chatrelay/internal/model"
)

// MessageStore persists direct messages.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

const messageColumns = "seq, id, sender_id, receiver_id, text, image, seen, created_at"

// Create assigns id, timestamp and seen=false, then inserts msg.
func (s *MessageStore) Create(ctx context.Context, msg *model.Message) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	msg.Seen = false

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, sender_id, receiver_id, text, image, seen, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.Image, false, msg.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "messageStore.Create.Insert")
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "messageStore.Create.LastInsertId")
	}
	msg.Seq = seq
	return nil
}

// Conversation returns every message between a and b in display order.
func (s *MessageStore) Conversation(ctx context.Context, a, b string) ([]model.Message, error) {
	return queryMessages(ctx, s.db, a, b)
}

// FetchAndMarkSeen returns the conversation between userID and peerID and, in the same
// transaction, flips seen on the returned messages sent by peerID to userID.
func (s *MessageStore) FetchAndMarkSeen(ctx context.Context, userID, peerID string) ([]model.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "messageStore.FetchAndMarkSeen.Begin")
	}
	defer tx.Rollback()

	msgs, err := queryMessages(ctx, tx, userID, peerID)
	if err != nil {
		return nil, err
	}

	var maxSeq int64
	for _, m := range msgs {
		if m.Seq > maxSeq {
			maxSeq = m.Seq
		}
	}

	if maxSeq > 0 {
		_, err = tx.ExecContext(ctx,
			"UPDATE messages SET seen = ? WHERE sender_id = ? AND receiver_id = ? AND seen = ? AND seq <= ?",
			true, peerID, userID, false, maxSeq)
		if err != nil {
			return nil, errors.Wrap(err, "messageStore.FetchAndMarkSeen.Update")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "messageStore.FetchAndMarkSeen.Commit")
	}

	for i := range msgs {
		if msgs[i].SenderID == peerID && msgs[i].ReceiverID == userID {
			msgs[i].Seen = true
		}
	}
	return msgs, nil
}

// DeleteConversation removes all messages between a and b in both directions.
func (s *MessageStore) DeleteConversation(ctx context.Context, a, b string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "messageStore.DeleteConversation.Begin")
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		a, b, b, a)
	if err != nil {
		return 0, errors.Wrap(err, "messageStore.DeleteConversation.Delete")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "messageStore.DeleteConversation.RowsAffected")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "messageStore.DeleteConversation.Commit")
	}
	return n, nil
}

// PeerIDs returns the distinct users userID has sent to or received from, excluding userID.
func (s *MessageStore) PeerIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END
		FROM messages WHERE sender_id = ? OR receiver_id = ?`,
		userID, userID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "messageStore.PeerIDs.Query")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "messageStore.PeerIDs.Scan")
		}
		if id != userID {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "messageStore.PeerIDs.Rows")
	}
	return ids, nil
}

// UnseenCounts returns, per sender, the number of unseen messages addressed to userID.
func (s *MessageStore) UnseenCounts(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT sender_id, COUNT(*) FROM messages WHERE receiver_id = ? AND seen = ? GROUP BY sender_id",
		userID, false)
	if err != nil {
		return nil, errors.Wrap(err, "messageStore.UnseenCounts.Query")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sender string
		var n int
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, errors.Wrap(err, "messageStore.UnseenCounts.Scan")
		}
		counts[sender] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "messageStore.UnseenCounts.Rows")
	}
	return counts, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMessages(ctx context.Context, q querier, a, b string) ([]model.Message, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+messageColumns+` FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, seq ASC`,
		a, b, b, a)
	if err != nil {
		return nil, errors.Wrap(err, "messageStore.queryMessages.Query")
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &m.Seen, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "messageStore.queryMessages.Scan")
		}
		m.CreatedAt = m.CreatedAt.UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "messageStore.queryMessages.Rows")
	}
	return msgs, nil
}
