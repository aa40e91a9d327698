package mockagent

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/creastat/chatstore"
	"github.com/creastat/chatstore/agent"
	"github.com/creastat/chatstore/identity"
	"github.com/creastat/chatstore/sessionstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "mock-secret"

func newTestServer(t *testing.T) (*Server, *agent.Client) {
	t.Helper()
	srv := New(Config{Secret: secret})
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	client, err := agent.New(agent.Config{BaseURL: httpSrv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return srv, client
}

func tokenFor(t *testing.T, email string) string {
	t.Helper()
	tok, err := identity.Sign(&identity.Claims{
		Email: email,
	}, []byte(secret))
	require.NoError(t, err)
	return tok
}

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	claims := &identity.Claims{}
	claims.Subject = subject
	tok, err := identity.Sign(claims, []byte(secret))
	require.NoError(t, err)
	return tok
}

func TestHealth(t *testing.T) {
	_, client := newTestServer(t)

	status, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthMessage, status.Status)
}

func TestChatAssignsSessionID(t *testing.T) {
	srv, client := newTestServer(t)

	resp, err := client.Chat(context.Background(), "mock_token", agent.ChatRequest{Message: "hi", UserID: "guest_user"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "You said: hi", resp.AgentResponse)
	assert.Equal(t, 1, srv.Sessions())

	owner, ok := srv.Owner(resp.SessionID)
	assert.True(t, ok)
	assert.Empty(t, owner)
}

func TestAuthRequired(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	_, err := client.History(ctx, "mock_token")
	assert.True(t, agent.IsUnauthorized(err))

	_, err = client.History(ctx, "not-a-jwt")
	assert.True(t, agent.IsUnauthorized(err))

	// A token without a subject identifies nobody.
	_, err = client.History(ctx, tokenFor(t, "ann@example.com"))
	assert.True(t, agent.IsUnauthorized(err))

	_, err = client.Chat(ctx, "", agent.ChatRequest{Message: "hi"})
	assert.True(t, agent.IsUnauthorized(err))
}

func TestClaimHistoryAndDetail(t *testing.T) {
	srv, client := newTestServer(t)
	ctx := context.Background()
	ann := signedToken(t, "ann")
	bob := signedToken(t, "bob")

	resp, err := client.Chat(ctx, "mock_token", agent.ChatRequest{Message: "where to buy running shoes cheaply", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.SessionID)

	require.NoError(t, client.ClaimSession(ctx, ann, "s1"))
	owner, _ := srv.Owner("s1")
	assert.Equal(t, "ann", owner)

	err = client.ClaimSession(ctx, bob, "s1")
	assert.True(t, agent.IsUnauthorized(err))
	assert.True(t, agent.IsNotFound(client.ClaimSession(ctx, ann, "missing")))

	history, err := client.History(ctx, ann)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "s1", history[0].SessionID)
	assert.Empty(t, history[0].ID)
	assert.Equal(t, "s1", history[0].Key())
	assert.Equal(t, chatstore.DefaultTitle, history[0].Title)
	assert.False(t, history[0].UpdatedAt.IsZero())

	empty, err := client.History(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, empty)

	detail, err := client.SessionDetail(ctx, ann, "s1")
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "user", detail.Messages[0].Role)
	assert.Equal(t, "assistant", detail.Messages[1].Role)

	_, err = client.SessionDetail(ctx, bob, "s1")
	assert.True(t, agent.IsUnauthorized(err))

	title, err := client.GenerateTitle(ctx, ann, "s1")
	require.NoError(t, err)
	assert.Equal(t, "where to buy running shoes", title)
}

func TestStoreAgainstMockAgent(t *testing.T) {
	srv, client := newTestServer(t)
	ctx := context.Background()

	newStore := func() *sessionstore.Store {
		provider, err := identity.NewLocalProvider(secret)
		require.NoError(t, err)
		s, err := sessionstore.New(ctx, sessionstore.Options{Backend: client, Identity: provider})
		require.NoError(t, err)
		return s
	}
	creds := identity.Credentials{Email: "ann@example.com", Password: "pw"}

	// Anonymous chat on the first device, then sign in.
	laptop := newStore()
	_, err := laptop.SendMessage(ctx, sessionstore.SendRequest{Content: "Hello there"})
	require.NoError(t, err)
	sessionID := laptop.State().CurrentSessionID

	require.NoError(t, laptop.Login(ctx, creds))
	owner, ok := srv.Owner(sessionID)
	require.True(t, ok)
	assert.Equal(t, identity.LocalUserID(creds.Email), owner)
	assert.Equal(t, "Hello there", laptop.GetCurrentSession().Title)

	// A second device sees the claimed session and loads its messages.
	phone := newStore()
	require.NoError(t, phone.Login(ctx, creds))
	st := phone.State()
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, sessionID, st.Sessions[0].ID)
	assert.Empty(t, st.Sessions[0].Messages)

	phone.SetCurrentSession(sessionID)
	require.NoError(t, phone.SyncWithBackend(ctx))
	cur := phone.GetCurrentSession()
	require.NotNil(t, cur)
	require.Len(t, cur.Messages, 2)
	assert.Equal(t, "Hello there", cur.Messages[0].Content)
	assert.Equal(t, "You said: Hello there", cur.Messages[1].Content)

	// Signed-in chats are titled by the backend after the first exchange.
	phone.CreateSession()
	_, err = phone.SendMessage(ctx, sessionstore.SendRequest{Content: "compare two budget phones please"})
	require.NoError(t, err)
	assert.Equal(t, "compare two budget phones please", phone.GetCurrentSession().Title)
}
