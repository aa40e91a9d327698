package sessionstore

import (
	"github.com/creastat/chatstore"
	"github.com/creastat/chatstore/internal/id"
	"github.com/creastat/chatstore/session"
)

// MessageInput is a message about to be appended. ID and Timestamp are assigned by the store.
type MessageInput struct {
	Sender   session.Sender
	Type     session.MessageType
	Content  string
	ImageURL string
	Products []session.Product
}

// CreateSession makes a fresh session active and returns its id. When the
// most recent session has no messages yet it is reused instead.
func (s *Store) CreateSession() string {
	var sessionID string
	s.update(func(st *State) bool {
		if len(st.Sessions) > 0 && len(st.Sessions[0].Messages) == 0 {
			sessionID = st.Sessions[0].ID
			if st.CurrentSessionID == sessionID {
				return false
			}
			st.CurrentSessionID = sessionID
			return true
		}

		now := s.now()
		sessionID = id.NewSessionID()
		created := session.ChatSession{
			ID:        sessionID,
			Title:     chatstore.DefaultTitle,
			Messages:  []session.Message{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		st.Sessions = append([]session.ChatSession{created}, st.Sessions...)
		st.CurrentSessionID = sessionID
		return true
	})
	return sessionID
}

// SetCurrentSession points the store at id. The id is not checked; a pointer
// that matches no session reads as "no active session".
func (s *Store) SetCurrentSession(sessionID string) {
	s.update(func(st *State) bool {
		if st.CurrentSessionID == sessionID {
			return false
		}
		st.CurrentSessionID = sessionID
		return true
	})
}

// GetCurrentSession returns a copy of the active session, or nil.
func (s *Store) GetCurrentSession() *session.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.state.indexOf(s.state.CurrentSessionID)
	if i < 0 {
		return nil
	}
	out := s.state.Sessions[i].Clone()
	return &out
}

// AddMessage appends a message to the active session. It returns
// ErrNoActiveSession, leaving the state untouched, when there is none.
func (s *Store) AddMessage(in MessageInput) (session.Message, error) {
	return s.addMessage(func(st *State) string { return st.CurrentSessionID }, in)
}

// addMessageTo appends to a specific session regardless of which one is active.
func (s *Store) addMessageTo(sessionID string, in MessageInput) (session.Message, error) {
	return s.addMessage(func(*State) string { return sessionID }, in)
}

// addMessage appends to the session target picks under the lock. The first
// text message of a session names it.
func (s *Store) addMessage(target func(st *State) string, in MessageInput) (session.Message, error) {
	if in.Type == "" {
		in.Type = session.MessageText
	}
	msg := session.Message{
		ID:       id.NewMessageID(),
		Sender:   in.Sender,
		Type:     in.Type,
		Content:  in.Content,
		ImageURL: in.ImageURL,
	}
	if len(in.Products) > 0 {
		msg.Products = append([]session.Product(nil), in.Products...)
	}

	var err error
	s.update(func(st *State) bool {
		i := st.indexOf(target(st))
		if i < 0 {
			err = chatstore.ErrNoActiveSession
			return false
		}
		now := s.now()
		msg.Timestamp = now

		cs := &st.Sessions[i]
		if len(cs.Messages) == 0 && msg.Type == session.MessageText {
			cs.Title = chatstore.DeriveTitle(msg.Content)
		}
		cs.Messages = append(cs.Messages, msg)
		cs.UpdatedAt = now
		return true
	})
	if err != nil {
		return session.Message{}, err
	}
	return msg, nil
}
