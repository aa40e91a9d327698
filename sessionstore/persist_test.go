package sessionstore

import (
	"context"
	"errors"
	"testing"

	"github.com/creastat/chatstore/session"
	"github.com/creastat/chatstore/session/drivers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withPersistence(store session.Store) func(*Options) {
	return func(o *Options) { o.Persistence = store }
}

func TestPersistAndRehydrate(t *testing.T) {
	ctx := context.Background()
	mem := drivers.NewMemoryStore()

	s := newTestStore(t, &fakeBackend{}, withPersistence(mem))
	require.NoError(t, s.Login(ctx, annCreds))
	sessionID := s.CreateSession()
	_, err := s.AddMessage(MessageInput{Sender: session.SenderUser, Content: "remember me"})
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	snap, err := mem.Load(ctx, DefaultStorageKey)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Positive(t, snap.Version)
	assert.True(t, snap.IsAuthenticated)

	restored := newTestStore(t, &fakeBackend{}, withPersistence(mem))
	st := restored.State()
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, sessionID, st.CurrentSessionID)
	assert.Equal(t, "remember me", st.Sessions[0].Title)
	require.Len(t, st.Sessions[0].Messages, 1)
	require.NotNil(t, st.User)
	assert.Equal(t, "ann@example.com", st.User.Email)
	assert.True(t, st.IsAuthenticated)
}

func TestPersistEphemeralIdentity(t *testing.T) {
	ctx := context.Background()
	mem := drivers.NewMemoryStore()
	ephemeral := func(o *Options) { o.EphemeralIdentity = true }

	s := newTestStore(t, &fakeBackend{}, withPersistence(mem), ephemeral)
	s.LoginAsGuest()
	s.CreateSession()
	require.NoError(t, s.Flush(ctx))

	snap, err := mem.Load(ctx, DefaultStorageKey)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Nil(t, snap.User)
	assert.False(t, snap.IsAuthenticated)
	assert.Len(t, snap.Sessions, 1)

	restored := newTestStore(t, &fakeBackend{}, withPersistence(mem), ephemeral)
	st := restored.State()
	assert.Nil(t, st.User)
	assert.False(t, st.IsAuthenticated)
	assert.Len(t, st.Sessions, 1)
}

func TestPersistTruncatesHistoryOnly(t *testing.T) {
	ctx := context.Background()
	mem := drivers.NewMemoryStore()

	s := newTestStore(t, &fakeBackend{}, withPersistence(mem), func(o *Options) { o.PersistMessageLimit = 2 })
	s.CreateSession()
	for _, content := range []string{"one", "two", "three"} {
		_, err := s.AddMessage(MessageInput{Sender: session.SenderUser, Content: content})
		require.NoError(t, err)
	}
	require.NoError(t, s.Flush(ctx))

	snap, err := mem.Load(ctx, DefaultStorageKey)
	require.NoError(t, err)
	require.Len(t, snap.Sessions[0].Messages, 2)
	assert.Equal(t, "two", snap.Sessions[0].Messages[0].Content)
	assert.Len(t, s.GetCurrentSession().Messages, 3)
}

func TestPersistTruncatesByTokens(t *testing.T) {
	ctx := context.Background()
	mem := drivers.NewMemoryStore()

	// Each message below estimates to two tokens.
	s := newTestStore(t, &fakeBackend{}, withPersistence(mem), func(o *Options) { o.PersistTokenLimit = 4 })
	s.CreateSession()
	for _, content := range []string{"aaaaaaa1", "aaaaaaa2", "aaaaaaa3"} {
		_, err := s.AddMessage(MessageInput{Sender: session.SenderUser, Content: content})
		require.NoError(t, err)
	}
	require.NoError(t, s.Flush(ctx))

	snap, err := mem.Load(ctx, DefaultStorageKey)
	require.NoError(t, err)
	require.Len(t, snap.Sessions[0].Messages, 2)
	assert.Equal(t, "aaaaaaa2", snap.Sessions[0].Messages[0].Content)
	assert.Equal(t, "aaaaaaa3", snap.Sessions[0].Messages[1].Content)
	assert.Len(t, s.GetCurrentSession().Messages, 3)

	restored := newTestStore(t, &fakeBackend{}, withPersistence(mem))
	assert.Len(t, restored.GetCurrentSession().Messages, 2)
}

func TestPersistOverwritesOnConflict(t *testing.T) {
	ctx := context.Background()
	mem := drivers.NewMemoryStore()

	s := newTestStore(t, &fakeBackend{}, withPersistence(mem))

	// Another writer saves under the same key first.
	require.NoError(t, mem.Save(ctx, DefaultStorageKey, &session.Snapshot{CurrentSessionID: "theirs"}))

	mine := s.CreateSession()
	require.NoError(t, s.Flush(ctx))

	snap, err := mem.Load(ctx, DefaultStorageKey)
	require.NoError(t, err)
	assert.Equal(t, mine, snap.CurrentSessionID)
	assert.Equal(t, int64(2), snap.Version)
}

type failingStore struct {
	session.Store
}

func (failingStore) Load(context.Context, string) (*session.Snapshot, error) {
	return nil, errors.New("disk on fire")
}

func TestNewFailsWhenRehydrateFails(t *testing.T) {
	_, err := New(context.Background(), Options{Backend: &fakeBackend{}, Persistence: failingStore{}})
	assert.ErrorContains(t, err, "disk on fire")
}

func TestLogoutPersistsEmptyState(t *testing.T) {
	ctx := context.Background()
	mem := drivers.NewMemoryStore()

	s := newTestStore(t, &fakeBackend{}, withPersistence(mem))
	require.NoError(t, s.Login(ctx, annCreds))
	s.CreateSession()
	s.Logout(ctx)
	require.NoError(t, s.Flush(ctx))

	snap, err := mem.Load(ctx, DefaultStorageKey)
	require.NoError(t, err)
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.Sessions)
	assert.Empty(t, snap.CurrentSessionID)
}
