package agent

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Image is an attachment uploaded with a chat message.
type Image struct {
	Filename string
	Data     []byte
}

// ChatRequest is the multipart payload of POST /agent/chat.
type ChatRequest struct {
	Message     string
	UserID      string
	SessionID   string
	ContextLink string
	Image       *Image
}

// Product is a recommendation returned by the agent.
type Product struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	Marketplace string `json:"marketplace"`
	Link        string `json:"link"`
	Image       string `json:"image"`
	Reason      string `json:"reason"`
}

// ChatResponse is the body of a successful POST /agent/chat.
type ChatResponse struct {
	AgentResponse     string    `json:"agent_response"`
	SessionID         string    `json:"session_id"`
	Products          []Product `json:"products"`
	PredictiveInsight string    `json:"predictive_insight,omitempty"`
}

// SessionSummary is one entry of GET /agent/history.
type SessionSummary struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// Key returns the session id, accepting either field name.
func (s SessionSummary) Key() string {
	if s.ID != "" {
		return s.ID
	}
	return s.SessionID
}

// RemoteMessage is one turn of a stored conversation.
type RemoteMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionDetail is the body of GET /agent/session/{id}.
type SessionDetail struct {
	Title    string          `json:"title"`
	Messages []RemoteMessage `json:"messages"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status string `json:"status"`
}

type titleRequest struct {
	SessionID string `json:"session_id"`
}

type titleResponse struct {
	Title string `json:"title"`
}

// Timestamp decodes the timestamp shapes the backend has been seen to emit:
// RFC 3339, naive ISO 8601 (read as UTC), and epoch seconds or milliseconds
// as numbers or numeric strings. null and "" decode to the zero time.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", raw, err)
		}
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			t.Time = time.Time{}
			return nil
		}
	}

	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339Nano))), nil
}

// ParseTimestamp parses one of the accepted timestamp forms.
func ParseTimestamp(raw string) (time.Time, error) {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		// Anything past 1e12 is milliseconds (1e12 s is the year 33658).
		if f > 1e12 {
			return time.UnixMilli(int64(f)).UTC(), nil
		}
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
