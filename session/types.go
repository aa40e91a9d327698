package session

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// MessageType distinguishes plain text messages from image uploads.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
)

// User is the signed-in person, or a locally generated guest.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar,omitempty"`
	IsGuest bool   `json:"is_guest"`
}

// Product is a shopping recommendation attached to an assistant reply.
type Product struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	Marketplace string `json:"marketplace"`
	Link        string `json:"link"`
	Image       string `json:"image,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Message is a single conversation turn. Messages are never edited after
// they are appended to a session.
type Message struct {
	ID        string      `json:"id"`
	Sender    Sender      `json:"sender"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	ImageURL  string      `json:"image_url,omitempty"`
	Products  []Product   `json:"products,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ChatSession is one conversation thread.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the session.
func (s ChatSession) Clone() ChatSession {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		if m.Products != nil {
			m.Products = append([]Product(nil), m.Products...)
		}
		out.Messages[i] = m
	}
	return out
}

// Snapshot is the persisted projection of the client store.
//
// Version is maintained by the Store implementations for optimistic locking:
// a Save must carry the version it last observed and the store increments it
// on success. A zero Version means the snapshot has never been saved.
type Snapshot struct {
	Version          int64         `json:"version"`
	SavedAt          time.Time     `json:"saved_at"`
	User             *User         `json:"user,omitempty"`
	IsAuthenticated  bool          `json:"is_authenticated"`
	Sessions         []ChatSession `json:"sessions"`
	CurrentSessionID string        `json:"current_session_id,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	out.Sessions = make([]ChatSession, len(s.Sessions))
	for i, cs := range s.Sessions {
		out.Sessions[i] = cs.Clone()
	}
	return &out
}
