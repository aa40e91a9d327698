package sessionstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/creastat/chatstore"
	"github.com/creastat/chatstore/agent"
	"github.com/creastat/chatstore/internal/id"
	"github.com/creastat/chatstore/session"
	"go.uber.org/zap"
)

// SyncWithBackend reconciles the local session list with the backend's
// history for the signed-in user, then fills in the active session's
// messages if only its metadata is held locally.
//
// It returns ErrNotAuthenticated without touching the network for guests and
// when the identity provider has no current identity. Network failures are
// logged and returned; the state keeps whatever was applied before the
// failing step.
func (s *Store) SyncWithBackend(ctx context.Context) (err error) {
	defer func() { s.metrics.ObserveSync(err) }()

	token, err := s.verifiedToken(ctx)
	if err != nil {
		return err
	}
	userID := s.currentUserID()

	hctx, cancel := s.backendContext(ctx)
	remote, err := s.backend.History(hctx, token)
	cancel()
	if err != nil {
		s.logger.Warn("failed to fetch session history", zap.Error(err))
		return fmt.Errorf("fetch history: %w", err)
	}

	var hydrateID string
	s.update(func(st *State) bool {
		// The user signed out or switched while the request was in flight.
		if st.User == nil || st.User.ID != userID {
			return false
		}
		st.Sessions = MergeSessions(st.Sessions, remote)
		hydrateID = hydrationTarget(st, remote)
		return true
	})
	s.logger.Debug("merged session history", zap.Int("remote", len(remote)))

	if hydrateID == "" {
		return nil
	}

	dctx, cancel := s.backendContext(ctx)
	detail, err := s.backend.SessionDetail(dctx, token, hydrateID)
	cancel()
	if err != nil {
		s.logger.Warn("failed to fetch session messages",
			zap.String("session_id", hydrateID),
			zap.Error(err))
		return fmt.Errorf("fetch session %s: %w", hydrateID, err)
	}

	messages := HydrateMessages(detail.Messages, s.now())
	s.update(func(st *State) bool {
		i := st.indexOf(hydrateID)
		// Local messages added meanwhile win over the fetched copy.
		if i < 0 || len(st.Sessions[i].Messages) > 0 {
			return false
		}
		st.Sessions[i].Messages = messages
		return true
	})
	return nil
}

func (s *Store) currentUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.User == nil {
		return ""
	}
	return s.state.User.ID
}

// hydrationTarget returns the active session id when it came back from the
// backend and holds no messages locally.
func hydrationTarget(st *State, remote []agent.SessionSummary) string {
	i := st.indexOf(st.CurrentSessionID)
	if i < 0 || len(st.Sessions[i].Messages) > 0 {
		return ""
	}
	for _, r := range remote {
		if r.Key() == st.CurrentSessionID {
			return st.CurrentSessionID
		}
	}
	return ""
}

// MergeSessions folds the backend's session summaries into the local list.
//
// Local sessions are never dropped and keep their messages. A session known
// on both sides takes the remote updated time, and the remote title unless
// that is the placeholder while the local one is not. Sessions only the
// backend knows are added with no messages. The result is ordered by updated
// time, newest first; ties keep local-then-remote order, so merging the same
// summaries twice changes nothing.
func MergeSessions(local []session.ChatSession, remote []agent.SessionSummary) []session.ChatSession {
	merged := make([]session.ChatSession, 0, len(local)+len(remote))
	index := make(map[string]int, len(local)+len(remote))

	for _, cs := range local {
		if _, dup := index[cs.ID]; dup {
			continue
		}
		index[cs.ID] = len(merged)
		merged = append(merged, cs.Clone())
	}

	for _, r := range remote {
		sessionID := r.Key()
		if sessionID == "" {
			continue
		}
		title := r.Title
		if title == "" {
			title = chatstore.DefaultTitle
		}
		updated := r.UpdatedAt.Time
		if updated.IsZero() {
			updated = r.CreatedAt.Time
		}

		if i, ok := index[sessionID]; ok {
			cs := &merged[i]
			cs.Title = chatstore.MergeTitle(cs.Title, title)
			if !updated.IsZero() {
				cs.UpdatedAt = updated
			}
			continue
		}

		created := r.CreatedAt.Time
		if created.IsZero() {
			created = updated
		}
		index[sessionID] = len(merged)
		merged = append(merged, session.ChatSession{
			ID:        sessionID,
			Title:     title,
			Messages:  []session.Message{},
			CreatedAt: created,
			UpdatedAt: updated,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].UpdatedAt.After(merged[j].UpdatedAt)
	})
	return merged
}

// HydrateMessages converts a stored remote conversation into local messages.
// Remote turns carry no ids or times, so each gets a fresh id and now.
func HydrateMessages(remote []agent.RemoteMessage, now time.Time) []session.Message {
	out := make([]session.Message, 0, len(remote))
	for _, rm := range remote {
		sender := session.SenderAssistant
		if rm.Role == string(session.SenderUser) {
			sender = session.SenderUser
		}
		out = append(out, session.Message{
			ID:        id.NewMessageID(),
			Sender:    sender,
			Type:      session.MessageText,
			Content:   rm.Content,
			Timestamp: now,
		})
	}
	return out
}
