package chatstore

import "errors"

// Common errors for chat session store operations.
var (
	// ErrAuth is returned when the identity provider rejects or aborts a sign-in.
	ErrAuth = errors.New("authentication failed")

	// ErrNotAuthenticated is returned by operations that need a verified,
	// non-guest identity.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoActiveSession is returned when a message is added while the
	// current session pointer does not resolve to a session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrSessionNotFound is returned when an operation names a chat session
	// the store does not hold.
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrBackendUnavailable is returned when the agent backend cannot be reached.
	ErrBackendUnavailable = errors.New("agent backend unavailable")
)
