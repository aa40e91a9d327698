package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// LocalProvider signs users in against an in-process account list and issues
// HS256 tokens the mock agent can verify with the same secret.
type LocalProvider struct {
	secret   []byte
	ttl      time.Duration
	accounts map[string]string // email -> password; nil accepts any non-empty password
	now      func() time.Time

	mu      sync.Mutex
	current *Identity
	token   string
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithAccounts restricts sign-in to the given email/password pairs.
func WithAccounts(accounts map[string]string) LocalOption {
	return func(p *LocalProvider) {
		p.accounts = accounts
	}
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) LocalOption {
	return func(p *LocalProvider) {
		p.ttl = ttl
	}
}

// WithClock replaces the provider's clock.
func WithClock(now func() time.Time) LocalOption {
	return func(p *LocalProvider) {
		p.now = now
	}
}

// NewLocalProvider creates a provider signing tokens with secret.
func NewLocalProvider(secret string, opts ...LocalOption) (*LocalProvider, error) {
	if secret == "" {
		return nil, fmt.Errorf("local identity secret is required")
	}
	p := &LocalProvider{secret: []byte(secret), ttl: time.Hour, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// LocalUserID is the stable user id the local provider assigns to email.
func LocalUserID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(email))).String()
}

// SignIn implements Provider.
func (p *LocalProvider) SignIn(ctx context.Context, creds Credentials) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, ErrInvalidCredentials
	}
	if p.accounts != nil {
		if pw, ok := p.accounts[email]; !ok || pw != creds.Password {
			return nil, ErrInvalidCredentials
		}
	}

	name := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		name = email[:at]
	}
	id := &Identity{UserID: LocalUserID(email), Email: email, Name: name}

	token, err := p.issue(id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = id
	p.token = token
	out := *id
	return &out, nil
}

// SignOut implements Provider.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
	p.token = ""
	return nil
}

// IDToken implements Provider. Tokens are reissued when less than a tenth of
// their lifetime remains.
func (p *LocalProvider) IDToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return "", ErrNoIdentity
	}
	if ExpiresWithin(p.token, p.ttl/10, p.now()) {
		token, err := p.issue(p.current)
		if err != nil {
			return "", err
		}
		p.token = token
	}
	return p.token, nil
}

// Current implements Provider.
func (p *LocalProvider) Current() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	out := *p.current
	return &out
}

func (p *LocalProvider) issue(id *Identity) (string, error) {
	now := p.now()
	return Sign(&Claims{
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}, p.secret)
}

var _ Provider = (*LocalProvider)(nil)
