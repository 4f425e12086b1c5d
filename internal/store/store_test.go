package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/LegacyAung/chat-app/internal/relay"
	"github.com/LegacyAung/chat-app/internal/store"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteStore(t *testing.T) *store.GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	s, err := store.NewGormStore(db)
	require.NoError(t, err)
	return s
}

func msg(sender, receiver, body string) relay.ChatMessage {
	return relay.ChatMessage{
		RoomID:         "alice:bob",
		Sender:         sender,
		Receiver:       receiver,
		SenderUsername: sender,
		Body:           body,
		SentAt:         time.Now(),
	}
}

func TestGormStoreAppendAndHistory(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, msg("alice", "bob", "first")))
	require.NoError(t, s.Append(ctx, msg("bob", "alice", "second")))
	require.NoError(t, s.Append(ctx, msg("alice", "carol", "unrelated")))

	history, err := s.History(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, 2, "history must span both directions but exclude other pairs")
	assert.Equal(t, "first", history[0].Body)
	assert.Equal(t, "second", history[1].Body)
	assert.Equal(t, "alice", history[0].Sender)
	assert.Equal(t, "bob", history[1].Sender)
}

func TestGormStoreHistoryOrderIsArgumentInsensitive(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, msg("alice", "bob", fmt.Sprintf("m%d", i))))
	}

	forward, err := s.History(ctx, "alice", "bob")
	require.NoError(t, err)
	reversed, err := s.History(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, forward, reversed)
}

func TestGormStoreEmptyHistory(t *testing.T) {
	s := newSQLiteStore(t)

	history, err := s.History(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemoryStoreMatchesGormSemantics(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, mem.Append(ctx, msg("alice", "bob", "first")))
	require.NoError(t, mem.Append(ctx, msg("bob", "alice", "second")))
	require.NoError(t, mem.Append(ctx, msg("alice", "carol", "unrelated")))
	assert.Equal(t, 3, mem.Len())

	history, err := mem.History(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Body)
	assert.Equal(t, "second", history[1].Body)
}
