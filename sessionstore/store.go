// Package sessionstore is the client-side chat session store.
//
// A Store holds the signed-in user, the list of chat sessions and the active
// session pointer. Every mutation runs under one mutex, is published to
// subscribers and is persisted asynchronously. Network calls to the agent
// backend never run while the mutex is held; their results are applied to the
// state as it is when they return.
package sessionstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creastat/chatstore/agent"
	"github.com/creastat/chatstore/identity"
	"github.com/creastat/chatstore/internal/metrics"
	"github.com/creastat/chatstore/session"
	"go.uber.org/zap"
)

// DefaultStorageKey is the key the snapshot is persisted under.
const DefaultStorageKey = "chat-session-storage"

// Backend is the part of the agent client the store needs.
type Backend interface {
	Chat(ctx context.Context, token string, req agent.ChatRequest) (*agent.ChatResponse, error)
	History(ctx context.Context, token string) ([]agent.SessionSummary, error)
	SessionDetail(ctx context.Context, token, sessionID string) (*agent.SessionDetail, error)
	GenerateTitle(ctx context.Context, token, sessionID string) (string, error)
	ClaimSession(ctx context.Context, token, sessionID string) error
}

var _ Backend = (*agent.Client)(nil)

// State is a copy of the store's observable state.
type State struct {
	User             *session.User
	IsAuthenticated  bool
	Sessions         []session.ChatSession
	CurrentSessionID string
}

func (s State) clone() State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	out.Sessions = make([]session.ChatSession, len(s.Sessions))
	for i, cs := range s.Sessions {
		out.Sessions[i] = cs.Clone()
	}
	return out
}

// indexOf returns the position of the session with the given id, or -1.
func (s *State) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// Options configures a Store.
type Options struct {
	// Backend is the agent backend. Required.
	Backend Backend
	// Identity signs users in. Login fails with ErrAuth when it is nil.
	Identity identity.Provider
	// Persistence stores snapshots. Nil keeps the state in memory only.
	Persistence session.Store
	// StorageKey defaults to DefaultStorageKey.
	StorageKey string
	// EphemeralIdentity keeps the user and authentication flag out of the
	// persisted snapshot; only sessions and the current session id are stored.
	EphemeralIdentity bool
	// PersistDebounce delays writes so bursts of mutations coalesce.
	PersistDebounce time.Duration
	// PersistMessageLimit and PersistTokenLimit cap the history persisted per
	// session. Zero means unlimited. In-memory state is never truncated.
	PersistMessageLimit int
	PersistTokenLimit   int
	// RequestTimeout bounds every backend call. Defaults to 60s.
	RequestTimeout time.Duration
	// ClaimConcurrency bounds concurrent claim calls after login. Defaults to 8.
	ClaimConcurrency int
	// GuestToken is the bearer token sent for chats without a signed-in identity.
	GuestToken string

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

// Store is the chat session store.
type Store struct {
	backend  Backend
	identity identity.Provider
	persist  *persister

	ephemeralIdentity bool
	messageLimit      int
	tokenLimit        int
	requestTimeout    time.Duration
	claimConcurrency  int
	guestToken        string

	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	state State

	// notifyMu keeps subscriber callbacks in mutation order.
	notifyMu    sync.Mutex
	subscribers map[int]func(State)
	nextSubID   int
}

// New creates a store and rehydrates it from opts.Persistence.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("sessionstore: backend is required")
	}
	if opts.StorageKey == "" {
		opts.StorageKey = DefaultStorageKey
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.ClaimConcurrency <= 0 {
		opts.ClaimConcurrency = 8
	}
	if opts.GuestToken == "" {
		opts.GuestToken = "mock_token"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		backend:           opts.Backend,
		identity:          opts.Identity,
		ephemeralIdentity: opts.EphemeralIdentity,
		messageLimit:      opts.PersistMessageLimit,
		tokenLimit:        opts.PersistTokenLimit,
		requestTimeout:    opts.RequestTimeout,
		claimConcurrency:  opts.ClaimConcurrency,
		guestToken:        opts.GuestToken,
		logger:            opts.Logger.Named("sessionstore"),
		metrics:           opts.Metrics,
		now:               opts.Now,
		state:             State{Sessions: []session.ChatSession{}},
		subscribers:       make(map[int]func(State)),
	}

	if opts.Persistence != nil {
		snap, err := opts.Persistence.Load(ctx, opts.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("sessionstore: rehydrate: %w", err)
		}
		var version int64
		if snap != nil {
			s.rehydrate(snap)
			version = snap.Version
		}
		s.persist = newPersister(opts.Persistence, opts.StorageKey, version, opts.PersistDebounce, s.logger, s.metrics)
	}
	s.metrics.SetSessions(len(s.state.Sessions))

	return s, nil
}

// rehydrate merges a persisted snapshot into the default state.
func (s *Store) rehydrate(snap *session.Snapshot) {
	if snap.Sessions != nil {
		s.state.Sessions = snap.Clone().Sessions
	}
	for i := range s.state.Sessions {
		if s.state.Sessions[i].Messages == nil {
			s.state.Sessions[i].Messages = []session.Message{}
		}
	}
	s.state.CurrentSessionID = snap.CurrentSessionID
	if !s.ephemeralIdentity && snap.User != nil {
		u := *snap.User
		s.state.User = &u
		s.state.IsAuthenticated = snap.IsAuthenticated
	}
	s.logger.Debug("rehydrated state",
		zap.Int("sessions", len(s.state.Sessions)),
		zap.Int64("version", snap.Version))
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn to be called with a copy of the state after every
// mutation. fn must not mutate the store synchronously. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		delete(s.subscribers, id)
	}
}

// update applies fn under the state lock. When fn reports a change, the new
// state is published to subscribers and queued for persistence.
func (s *Store) update(fn func(st *State) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	published := s.state.clone()
	var snap *session.Snapshot
	if s.persist != nil {
		snap = s.snapshotLocked()
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.metrics.SetSessions(len(published.Sessions))
	if snap != nil {
		s.persist.enqueue(snap)
	}
	for _, sub := range s.subscribers {
		sub(published)
	}
}

// Flush writes any pending snapshot synchronously.
func (s *Store) Flush(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	return s.persist.flush(ctx)
}

// Close flushes pending state and stops the background writer.
// The persistence store itself is owned by the caller.
func (s *Store) Close(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	return s.persist.close(ctx)
}

// backendContext derives the context for one backend call.
func (s *Store) backendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.requestTimeout)
}
