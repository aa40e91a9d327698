// Package identity defines the identity provider the chat store signs users in with.
package identity

import (
	"context"
	"errors"
)

var (
	// ErrNoIdentity is returned by IDToken when nobody is signed in.
	ErrNoIdentity = errors.New("no signed-in identity")
	// ErrInvalidCredentials is returned when a provider rejects the credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Credentials are what a user hands to SignIn.
type Credentials struct {
	Email    string
	Password string
}

// Identity is a signed-in user as reported by the provider.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Avatar string
}

// Provider signs users in and hands out bearer tokens for the agent backend.
type Provider interface {
	// SignIn authenticates and makes the identity current.
	SignIn(ctx context.Context, creds Credentials) (*Identity, error)

	// SignOut forgets the current identity.
	SignOut(ctx context.Context) error

	// IDToken returns a bearer token for the current identity, refreshing it
	// if needed. Returns ErrNoIdentity when nobody is signed in.
	IDToken(ctx context.Context) (string, error)

	// Current returns the current identity, or nil.
	Current() *Identity
}
