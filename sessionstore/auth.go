package sessionstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/creastat/chatstore"
	"github.com/creastat/chatstore/identity"
	"github.com/creastat/chatstore/internal/id"
	"github.com/creastat/chatstore/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Guest user fields.
const (
	GuestEmail = "guest@demo.local"
	GuestName  = "Guest"
)

// guestUserID is sent as user_id with chats that have no user at all.
const guestUserID = "guest_user"

// ClaimResult is the outcome of claiming one session for the signed-in user.
type ClaimResult struct {
	SessionID string
	Err       error
}

// Login signs in through the identity provider, claims every local session
// for the new user and reconciles with the backend. Claim and sync failures
// are logged and do not fail the login.
func (s *Store) Login(ctx context.Context, creds identity.Credentials) error {
	if s.identity == nil {
		return fmt.Errorf("%w: no identity provider configured", chatstore.ErrAuth)
	}

	ident, err := s.identity.SignIn(ctx, creds)
	if err != nil {
		s.logger.Warn("sign-in failed", zap.Error(err))
		return fmt.Errorf("%w: %w", chatstore.ErrAuth, err)
	}

	user := userFromIdentity(ident)
	s.update(func(st *State) bool {
		st.User = user
		st.IsAuthenticated = true
		return true
	})
	s.logger.Info("signed in", zap.String("user_id", user.ID))

	s.ClaimSessions(ctx)

	if err := s.SyncWithBackend(ctx); err != nil {
		s.logger.Warn("sync after login failed", zap.Error(err))
	}
	return nil
}

// ClaimSessions asks the backend to assign every locally held session to the
// signed-in user. Calls run concurrently and fail independently.
func (s *Store) ClaimSessions(ctx context.Context) []ClaimResult {
	if s.identity == nil || s.identity.Current() == nil {
		return nil
	}
	token, err := s.identity.IDToken(ctx)
	if err != nil {
		s.logger.Warn("no token for session claims", zap.Error(err))
		return nil
	}

	s.mu.Lock()
	ids := make([]string, len(s.state.Sessions))
	for i, cs := range s.state.Sessions {
		ids[i] = cs.ID
	}
	s.mu.Unlock()

	results := make([]ClaimResult, len(ids))
	var g errgroup.Group
	g.SetLimit(s.claimConcurrency)
	for i, sessionID := range ids {
		i, sessionID := i, sessionID
		g.Go(func() error {
			cctx, cancel := s.backendContext(ctx)
			defer cancel()

			err := s.backend.ClaimSession(cctx, token, sessionID)
			results[i] = ClaimResult{SessionID: sessionID, Err: err}
			s.metrics.ObserveClaim(err)
			if err != nil {
				s.logger.Warn("failed to claim session",
					zap.String("session_id", sessionID),
					zap.Error(err))
			}
			// Never cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// LoginAsGuest switches to a locally generated guest user. It never fails
// and does not contact the backend.
func (s *Store) LoginAsGuest() session.User {
	user := session.User{
		ID:      id.NewGuestID(),
		Email:   GuestEmail,
		Name:    GuestName,
		IsGuest: true,
	}
	s.update(func(st *State) bool {
		u := user
		st.User = &u
		st.IsAuthenticated = true
		return true
	})
	return user
}

// Logout signs out of the identity provider (best effort) and clears the
// user, every session and the current session pointer.
func (s *Store) Logout(ctx context.Context) {
	if s.identity != nil {
		if err := s.identity.SignOut(ctx); err != nil {
			s.logger.Warn("sign-out failed", zap.Error(err))
		}
	}
	s.update(func(st *State) bool {
		st.User = nil
		st.IsAuthenticated = false
		st.CurrentSessionID = ""
		st.Sessions = []session.ChatSession{}
		return true
	})
}

// verifiedToken returns a bearer token when the current user is a signed-in,
// non-guest identity.
func (s *Store) verifiedToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	user := s.state.User
	s.mu.Unlock()

	if user == nil || user.IsGuest || s.identity == nil || s.identity.Current() == nil {
		return "", chatstore.ErrNotAuthenticated
	}
	token, err := s.identity.IDToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", chatstore.ErrNotAuthenticated, err)
	}
	return token, nil
}

func userFromIdentity(ident *identity.Identity) *session.User {
	name := ident.Name
	if name == "" {
		name = ident.Email
		if at := strings.IndexByte(name, '@'); at > 0 {
			name = name[:at]
		}
	}
	if name == "" {
		name = "User"
	}
	return &session.User{
		ID:     ident.UserID,
		Email:  ident.Email,
		Name:   name,
		Avatar: ident.Avatar,
	}
}
