// Package supabase signs chat users in through Supabase Auth.
package supabase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creastat/chatstore/identity"
	"github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/supabase-go"
)

// Config holds Supabase connection configuration
type Config struct {
	URL    string
	APIKey string
	// RefreshSkew is how long before expiry the access token is refreshed.
	RefreshSkew time.Duration // Default: 1 minute
}

// authAPI is the part of supabase.Client the provider uses.
type authAPI interface {
	SignInWithEmailPassword(email, password string) (types.Session, error)
	RefreshToken(refreshToken string) (types.Session, error)
	Logout() error
}

// Client implements identity.Provider using Supabase Auth email/password sign-in.
type Client struct {
	auth authAPI
	skew time.Duration
	now  func() time.Time

	mu       sync.Mutex
	session  *types.Session
	identity *identity.Identity
}

// supabaseAuth adapts *supabase.Client to authAPI.
type supabaseAuth struct {
	*supabase.Client
}

func (a supabaseAuth) Logout() error {
	return a.Auth.Logout()
}

// New creates a new Supabase identity provider
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return newClient(supabaseAuth{client}, cfg.RefreshSkew), nil
}

func newClient(auth authAPI, skew time.Duration) *Client {
	if skew <= 0 {
		skew = time.Minute
	}
	return &Client{auth: auth, skew: skew, now: time.Now}
}

// SignIn implements identity.Provider.
func (c *Client) SignIn(ctx context.Context, creds identity.Credentials) (*identity.Identity, error) {
	session, err := callWithContext(ctx, func() (types.Session, error) {
		return c.auth.SignInWithEmailPassword(creds.Email, creds.Password)
	})
	if err != nil {
		return nil, fmt.Errorf("supabase sign-in: %w", err)
	}

	id := identityFromUser(session.User)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &session
	c.identity = id
	out := *id
	return &out, nil
}

// SignOut implements identity.Provider.
// The local identity is dropped even when the remote logout fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	hadSession := c.session != nil
	c.session = nil
	c.identity = nil
	c.mu.Unlock()

	if !hadSession {
		return nil
	}
	_, err := callWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, c.auth.Logout()
	})
	if err != nil {
		return fmt.Errorf("supabase sign-out: %w", err)
	}
	return nil
}

// IDToken implements identity.Provider.
func (c *Client) IDToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return "", identity.ErrNoIdentity
	}
	if !c.expiring() {
		return c.session.AccessToken, nil
	}

	refreshToken := c.session.RefreshToken
	session, err := callWithContext(ctx, func() (types.Session, error) {
		return c.auth.RefreshToken(refreshToken)
	})
	if err != nil {
		return "", fmt.Errorf("supabase token refresh: %w", err)
	}
	c.session = &session
	return session.AccessToken, nil
}

// Current implements identity.Provider.
func (c *Client) Current() *identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil
	}
	out := *c.identity
	return &out
}

// expiring reports whether the held access token is due for refresh.
// ExpiresAt is preferred; the token's own exp claim is the fallback.
func (c *Client) expiring() bool {
	now := c.now()
	if c.session.ExpiresAt > 0 {
		return time.Unix(c.session.ExpiresAt, 0).Before(now.Add(c.skew))
	}
	return identity.ExpiresWithin(c.session.AccessToken, c.skew, now)
}

func identityFromUser(u types.User) *identity.Identity {
	return &identity.Identity{
		UserID: u.ID.String(),
		Email:  u.Email,
		Name:   firstString(u.UserMetadata, "full_name", "name"),
		Avatar: firstString(u.UserMetadata, "avatar_url", "picture"),
	}
}

func firstString(meta map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := meta[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// callWithContext runs a blocking SDK call and returns early when ctx is done.
// The SDK has no context support; an abandoned call finishes in the background.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

var _ identity.Provider = (*Client)(nil)
