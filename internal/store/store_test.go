package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/database"
	"chatrelay/internal/model"
)

// newTestDB creates a temp-file SQLite database with the schema applied.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func send(t *testing.T, s *MessageStore, from, to, text string) model.Message {
	t.Helper()
	m := model.Message{SenderID: from, ReceiverID: to, Text: text}
	require.NoError(t, s.Create(context.Background(), &m))
	return m
}

func TestMessageStore_CreateAndConversation(t *testing.T) {
	s := NewMessageStore(newTestDB(t))
	ctx := context.Background()

	m1 := send(t, s, "alice", "bob", "hi")
	assert.NotEmpty(t, m1.ID)
	assert.False(t, m1.Seen)
	assert.False(t, m1.CreatedAt.IsZero())
	assert.Positive(t, m1.Seq)

	send(t, s, "bob", "alice", "hey")
	send(t, s, "alice", "carol", "other conversation")
	send(t, s, "alice", "bob", "how are you")

	msgs, err := s.Conversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"hi", "hey", "how are you"}, []string{msgs[0].Text, msgs[1].Text, msgs[2].Text})
	for _, m := range msgs {
		assert.False(t, m.Seen)
	}
}

func TestMessageStore_FetchAndMarkSeen(t *testing.T) {
	s := NewMessageStore(newTestDB(t))
	ctx := context.Background()

	send(t, s, "alice", "bob", "one")
	send(t, s, "alice", "bob", "two")
	send(t, s, "bob", "alice", "reply")

	counts, err := s.UnseenCounts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 2}, counts)

	msgs, err := s.FetchAndMarkSeen(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].Seen)
	assert.True(t, msgs[1].Seen)
	assert.False(t, msgs[2].Seen, "bob's own message to alice stays unseen until alice fetches")

	counts, err = s.UnseenCounts(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, counts)

	counts, err = s.UnseenCounts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"bob": 1}, counts)
}

func TestMessageStore_MarkSeenOnlyUpToFetched(t *testing.T) {
	db := newTestDB(t)
	s := NewMessageStore(db)
	ctx := context.Background()

	first := send(t, s, "alice", "bob", "fetched")
	later := send(t, s, "alice", "bob", "arrives later")

	// Simulate the second message landing after the read by bounding the update as the
	// store does, with the first message's seq as the fetched maximum.
	_, err := db.ExecContext(ctx,
		"UPDATE messages SET seen = ? WHERE sender_id = ? AND receiver_id = ? AND seen = ? AND seq <= ?",
		true, "alice", "bob", false, first.Seq)
	require.NoError(t, err)

	msgs, err := s.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].Seen)
	assert.Equal(t, later.ID, msgs[1].ID)
	assert.False(t, msgs[1].Seen)
}

func TestMessageStore_DeleteConversation(t *testing.T) {
	s := NewMessageStore(newTestDB(t))
	ctx := context.Background()

	send(t, s, "alice", "bob", "a")
	send(t, s, "bob", "alice", "b")
	send(t, s, "alice", "carol", "c")

	n, err := s.DeleteConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	msgs, err := s.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = s.Conversation(ctx, "alice", "carol")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMessageStore_PeerIDs(t *testing.T) {
	s := NewMessageStore(newTestDB(t))
	ctx := context.Background()

	send(t, s, "alice", "bob", "1")
	send(t, s, "bob", "alice", "2")
	send(t, s, "carol", "alice", "3")
	send(t, s, "alice", "alice", "note to self")
	send(t, s, "bob", "carol", "not alice's")

	ids, err := s.PeerIDs(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "carol"}, ids)

	ids, err = s.PeerIDs(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUserStore(t *testing.T) {
	s := NewUserStore(newTestDB(t))
	ctx := context.Background()

	alice := &model.User{FullName: "Alice Liddell", Email: "alice@example.com", Bio: "curious", PasswordHash: "h1"}
	require.NoError(t, s.Create(ctx, alice))
	assert.NotEmpty(t, alice.ID)

	bob := &model.User{FullName: "Bob 100%", Email: "bob@example.com", Bio: "builder", PasswordHash: "h2"}
	require.NoError(t, s.Create(ctx, bob))

	dup := &model.User{FullName: "Impostor", Email: "alice@example.com", Bio: "x", PasswordHash: "h3"}
	assert.ErrorIs(t, s.Create(ctx, dup), ErrEmailTaken)

	got, err := s.ByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, "h1", got.PasswordHash)

	_, err = s.ByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	users, err := s.ByIDs(ctx, []string{bob.ID, alice.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Alice Liddell", users[0].FullName)

	found, err := s.Search(ctx, alice.ID, "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bob.ID, found[0].ID)

	found, err = s.Search(ctx, bob.ID, "LIDDELL")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, alice.ID, found[0].ID)

	found, err = s.Search(ctx, alice.ID, "100%")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = s.Search(ctx, bob.ID, "%")
	require.NoError(t, err)
	assert.Empty(t, found, "wildcards in the query are literal")

	updated, err := s.UpdateProfile(ctx, alice.ID, "Alice L.", "down the hole", "http://cdn/a.png")
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", updated.FullName)
	assert.Equal(t, "http://cdn/a.png", updated.ProfilePic)

	updated, err = s.UpdateProfile(ctx, alice.ID, "Alice", "bio", "")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn/a.png", updated.ProfilePic, "empty avatar keeps the previous one")

	_, err = s.UpdateProfile(ctx, "missing", "x", "y", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestConversationStore_StartIsIdempotent(t *testing.T) {
	s := NewConversationStore(newTestDB(t))
	ctx := context.Background()

	c1, err := s.Start(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, c1.ID)
	assert.Equal(t, []string{"alice", "bob"}, c1.MemberIDs)

	c2, err := s.Start(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	_, err = s.Start(ctx, "carol", "alice")
	require.NoError(t, err)

	convs, err := s.ForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 2)

	convs, err = s.ForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, c1.ID, convs[0].ID)

	convs, err = s.ForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, convs)
}
