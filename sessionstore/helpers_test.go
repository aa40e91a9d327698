package sessionstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/creastat/chatstore/agent"
	"github.com/creastat/chatstore/identity"
	"github.com/stretchr/testify/require"
)

var errNetwork = errors.New("connection refused")

// fakeBackend records calls and answers from canned data.
type fakeBackend struct {
	mu sync.Mutex

	history    []agent.SessionSummary
	historyErr error
	details    map[string]*agent.SessionDetail
	detailErr  error
	claimErrs  map[string]error
	chatFn     func(token string, req agent.ChatRequest) (*agent.ChatResponse, error)
	title      string
	titleErr   error

	historyCalls int
	detailCalls  int
	titleCalls   int
	claimed      []string
	chats        []agent.ChatRequest
	chatTokens   []string
}

func (f *fakeBackend) Chat(ctx context.Context, token string, req agent.ChatRequest) (*agent.ChatResponse, error) {
	f.mu.Lock()
	f.chats = append(f.chats, req)
	f.chatTokens = append(f.chatTokens, token)
	fn := f.chatFn
	f.mu.Unlock()

	if fn == nil {
		return &agent.ChatResponse{AgentResponse: "ok", SessionID: req.SessionID}, nil
	}
	return fn(token, req)
}

func (f *fakeBackend) History(ctx context.Context, token string) ([]agent.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return append([]agent.SessionSummary(nil), f.history...), nil
}

func (f *fakeBackend) SessionDetail(ctx context.Context, token, sessionID string) (*agent.SessionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	d, ok := f.details[sessionID]
	if !ok {
		return nil, &agent.APIError{Operation: agent.OpSession, StatusCode: 404}
	}
	return d, nil
}

func (f *fakeBackend) GenerateTitle(ctx context.Context, token, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleCalls++
	return f.title, f.titleErr
}

func (f *fakeBackend) ClaimSession(ctx context.Context, token, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = append(f.claimed, sessionID)
	return f.claimErrs[sessionID]
}

// tickClock advances one second per reading so timestamps are strictly ordered.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickClock() *tickClock {
	return &tickClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func at(minute int) agent.Timestamp {
	return agent.Timestamp{Time: time.Date(2025, 1, 1, 12, minute, 0, 0, time.UTC)}
}

const testSecret = "store-test-secret"

func newTestStore(t *testing.T, backend *fakeBackend, mutate ...func(*Options)) *Store {
	t.Helper()
	provider, err := identity.NewLocalProvider(testSecret)
	require.NoError(t, err)

	opts := Options{
		Backend:  backend,
		Identity: provider,
		Now:      newTickClock().Now,
	}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

var annCreds = identity.Credentials{Email: "ann@example.com", Password: "pw"}
