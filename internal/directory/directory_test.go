package directory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/apperr"
	"chatrelay/internal/database"
	"chatrelay/internal/model"
	"chatrelay/internal/pairlock"
	"chatrelay/internal/presence"
	"chatrelay/internal/relay"
	"chatrelay/internal/store"
)

type noopPusher struct{}

func (noopPusher) Push(presence.Handle, model.Event) error { return nil }

type noUploads struct{}

func (noUploads) Upload(context.Context, []byte) (string, error) { return "", nil }

type fixture struct {
	dir      *Service
	relay    *relay.Service
	messages *store.MessageStore
	users    map[string]string // name -> id
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "dir.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	messages := store.NewMessageStore(db)
	userStore := store.NewUserStore(db)
	locks := pairlock.New()

	f := &fixture{
		dir:      NewService(messages, userStore, store.NewConversationStore(db), locks),
		relay:    relay.NewService(messages, userStore, noUploads{}, presence.NewTable(), noopPusher{}, locks),
		messages: messages,
		users:    make(map[string]string),
	}
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		u := &model.User{FullName: name, Email: name + "@example.com", PasswordHash: "x"}
		require.NoError(t, userStore.Create(context.Background(), u))
		f.users[name] = u.ID
	}
	return f
}

func (f *fixture) send(t *testing.T, from, to, text string) {
	t.Helper()
	_, err := f.relay.Send(context.Background(), relay.SendRequest{SenderID: f.users[from], ReceiverID: f.users[to], Text: text})
	require.NoError(t, err)
}

func unseenFor(peers []model.Peer, id string) (int, bool) {
	for _, p := range peers {
		if p.User.ID == id {
			return p.UnseenCount, true
		}
	}
	return 0, false
}

func TestOfflineScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.users["Alice"], f.users["Bob"]

	f.send(t, "Alice", "Bob", "hi")

	peers, err := f.dir.ListConversationPeers(ctx, bob)
	require.NoError(t, err)
	n, ok := unseenFor(peers, alice)
	require.True(t, ok)
	assert.Equal(t, 1, n)

	history, err := f.dir.FetchHistory(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Text)
	assert.True(t, history[0].Seen)

	peers, err = f.dir.ListConversationPeers(ctx, bob)
	require.NoError(t, err)
	n, _ = unseenFor(peers, alice)
	assert.Equal(t, 0, n)
}

func TestFetchHistoryMarksAllUnseen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.users["Alice"], f.users["Bob"]

	for _, text := range []string{"1", "2", "3", "4", "5"} {
		f.send(t, "Bob", "Alice", text)
	}
	f.send(t, "Alice", "Bob", "reply")

	history, err := f.dir.FetchHistory(ctx, alice, bob)
	require.NoError(t, err)
	require.Len(t, history, 6)
	assert.Equal(t, "reply", history[5].Text, "ascending order")

	peers, err := f.dir.ListConversationPeers(ctx, alice)
	require.NoError(t, err)
	n, _ := unseenFor(peers, bob)
	assert.Equal(t, 0, n)

	// Fetching again keeps them seen.
	history, err = f.dir.FetchHistory(ctx, alice, bob)
	require.NoError(t, err)
	for _, m := range history[:5] {
		assert.True(t, m.Seen)
	}
}

func TestListConversationPeers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.users["Alice"], f.users["Bob"], f.users["Carol"]

	f.send(t, "Alice", "Bob", "a→b")
	f.send(t, "Bob", "Alice", "b→a")
	f.send(t, "Bob", "Alice", "b→a again")
	f.send(t, "Carol", "Alice", "c→a")
	f.send(t, "Alice", "Alice", "note")

	peers, err := f.dir.ListConversationPeers(ctx, alice)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "Bob", peers[0].User.FullName)
	assert.Equal(t, 2, peers[0].UnseenCount)
	assert.Equal(t, carol, peers[1].User.ID)
	assert.Equal(t, 1, peers[1].UnseenCount)

	peers, err = f.dir.ListConversationPeers(ctx, bob)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, 1, peers[0].UnseenCount)

	peers, err = f.dir.ListConversationPeers(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, peers)
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.users["Alice"], f.users["Bob"], f.users["Carol"]

	f.send(t, "Alice", "Bob", "1")
	f.send(t, "Bob", "Alice", "2")
	f.send(t, "Carol", "Alice", "3")

	n, err := f.dir.DeleteConversation(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	history, err := f.dir.FetchHistory(ctx, bob, alice)
	require.NoError(t, err)
	assert.Empty(t, history)

	peers, err := f.dir.ListConversationPeers(ctx, alice)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, carol, peers[0].User.ID)

	peers, err = f.dir.ListConversationPeers(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, peers, "unseen counter for the deleted peer is gone")
}

func TestDeleteConcurrentWithSends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.users["Alice"], f.users["Bob"]

	var wg sync.WaitGroup
	var deleted int64
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_, err := f.relay.Send(ctx, relay.SendRequest{SenderID: bob, ReceiverID: alice, Text: "in flight"})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		n, err := f.dir.DeleteConversation(ctx, alice, bob)
		assert.NoError(t, err)
		deleted = n
	}()
	wg.Wait()

	// Every message is either removed by the delete or was sent after it.
	history, err := f.dir.FetchHistory(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(20), deleted+int64(len(history)))

	_, err = f.dir.DeleteConversation(ctx, bob, alice)
	require.NoError(t, err)
	history, err = f.dir.FetchHistory(ctx, alice, bob)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.dir.FetchHistory(ctx, f.users["Alice"], "")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidRequest))

	_, err = f.dir.DeleteConversation(ctx, f.users["Alice"], "")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidRequest))
}

func TestConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.users["Alice"], f.users["Bob"], f.users["Carol"]

	c1, err := f.dir.StartConversation(ctx, alice, bob)
	require.NoError(t, err)
	require.Len(t, c1.Members, 2)

	again, err := f.dir.StartConversation(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, again.ID, "one conversation per pair")

	_, err = f.dir.StartConversation(ctx, carol, alice)
	require.NoError(t, err)

	convs, err := f.dir.ListConversations(ctx, alice)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	names := []string{}
	for _, m := range convs[0].Members {
		names = append(names, m.FullName)
	}
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, names)

	convs, err = f.dir.ListConversations(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, convs, 1)

	_, err = f.dir.StartConversation(ctx, alice, "")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidRequest))
	_, err = f.dir.StartConversation(ctx, alice, "nobody")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidRequest))
}
