// Package id generates identifiers for sessions, messages and guest users.
//
// Session ids are UUIDs because the agent backend stores them as its own
// conversation keys. Message ids are ULIDs so they sort by creation time.
package id

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewSessionID returns a new session id.
func NewSessionID() string {
	return uuid.NewString()
}

// NewMessageID returns a new, time-ordered message id.
func NewMessageID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewGuestID returns an id for a locally generated guest user.
func NewGuestID() string {
	return "guest-" + strings.ToLower(ulid.Make().String()[16:])
}
