// Package mockagent is an in-memory stand-in for the agent backend. It serves
// the same HTTP routes the agent client calls and is used by tests and by the
// mockagent command for local development.
package mockagent

import (
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/creastat/chatstore/agent"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HealthMessage is the status reported by GET /health.
const HealthMessage = "ContextIQ is Online"

const maxUploadBytes = 10 << 20

// Responder produces the agent's answer to one chat turn.
type Responder func(message string, image []byte) agent.ChatResponse

// Config configures a Server.
type Config struct {
	// Secret verifies HS256 bearer tokens. Required.
	Secret string
	// GuestToken is accepted for chat without an identity.
	GuestToken string
	Responder  Responder
	Logger     *zap.Logger
	Now        func() time.Time
}

type conversation struct {
	owner     string
	title     string
	messages  []agent.RemoteMessage
	createdAt time.Time
	updatedAt time.Time
}

// Server holds conversations in memory.
type Server struct {
	secret     []byte
	guestToken string
	respond    Responder
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	convs map[string]*conversation
}

// New creates a server.
func New(cfg Config) *Server {
	if cfg.GuestToken == "" {
		cfg.GuestToken = "mock_token"
	}
	if cfg.Responder == nil {
		cfg.Responder = EchoResponder
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{
		secret:     []byte(cfg.Secret),
		guestToken: cfg.GuestToken,
		respond:    cfg.Responder,
		logger:     cfg.Logger.Named("mockagent"),
		now:        cfg.Now,
		convs:      make(map[string]*conversation),
	}
}

// EchoResponder answers every message by repeating it.
func EchoResponder(message string, image []byte) agent.ChatResponse {
	reply := "You said: " + message
	if len(image) > 0 {
		reply += " (with an image)"
	}
	return agent.ChatResponse{AgentResponse: reply}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Route("/agent", func(r chi.Router) {
		r.With(s.authenticate(true)).Post("/chat", s.handleChat)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate(false))
			r.Get("/history", s.handleHistory)
			r.Get("/session/{id}", s.handleSession)
			r.Post("/session/{id}/claim", s.handleClaim)
			r.Post("/title", s.handleTitle)
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, agent.HealthStatus{Status: HealthMessage})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	message := r.FormValue("message")
	if strings.TrimSpace(message) == "" {
		writeError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}

	var image []byte
	if file, _, err := r.FormFile("image"); err == nil {
		image, err = io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable image")
			return
		}
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	owner := callerFrom(r)

	s.mu.Lock()
	conv, ok := s.convs[sessionID]
	if ok && conv.owner != "" && conv.owner != owner {
		s.mu.Unlock()
		writeError(w, http.StatusForbidden, "session belongs to another user")
		return
	}
	now := s.now()
	if !ok {
		conv = &conversation{title: "New Chat", createdAt: now}
		s.convs[sessionID] = conv
	}
	if conv.owner == "" {
		conv.owner = owner
	}
	s.mu.Unlock()

	resp := s.respond(message, image)
	resp.SessionID = sessionID

	s.mu.Lock()
	conv.messages = append(conv.messages,
		agent.RemoteMessage{Role: "user", Content: message},
		agent.RemoteMessage{Role: "assistant", Content: resp.AgentResponse})
	conv.updatedAt = s.now()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

type historyEntry struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	owner := callerFrom(r)

	s.mu.Lock()
	entries := make([]historyEntry, 0, len(s.convs))
	for id, conv := range s.convs {
		if conv.owner != owner {
			continue
		}
		updated := conv.updatedAt
		if updated.IsZero() {
			updated = conv.createdAt
		}
		entries = append(entries, historyEntry{SessionID: id, Title: conv.title, CreatedAt: conv.createdAt, UpdatedAt: updated})
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].SessionID < entries[j].SessionID
		}
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conv, status := s.owned(r, chi.URLParam(r, "id"))
	if conv == nil {
		writeError(w, status, http.StatusText(status))
		return
	}

	s.mu.Lock()
	detail := agent.SessionDetail{
		Title:    conv.title,
		Messages: append([]agent.RemoteMessage{}, conv.messages...),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	owner := callerFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[sessionID]
	switch {
	case !ok:
		writeError(w, http.StatusNotFound, "session not found")
	case conv.owner != "" && conv.owner != owner:
		writeError(w, http.StatusForbidden, "session belongs to another user")
	default:
		conv.owner = owner
		writeJSON(w, http.StatusOK, map[string]string{"status": "claimed"})
	}
}

type titleRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	conv, status := s.owned(r, req.SessionID)
	if conv == nil {
		writeError(w, status, http.StatusText(status))
		return
	}

	s.mu.Lock()
	conv.title = summarize(conv.messages)
	title := conv.title
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

// owned looks up a session belonging to the caller, returning the HTTP status
// to answer with when there is none.
func (s *Server) owned(r *http.Request, sessionID string) (*conversation, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[sessionID]
	if !ok {
		return nil, http.StatusNotFound
	}
	if conv.owner != callerFrom(r) {
		return nil, http.StatusForbidden
	}
	return conv, http.StatusOK
}

// summarize titles a conversation with the first few words of its opening
// message, or "New Chat" when there is nothing to go on.
func summarize(messages []agent.RemoteMessage) string {
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		words := strings.Fields(m.Content)
		if len(words) == 0 {
			continue
		}
		if len(words) > 5 {
			words = words[:5]
		}
		return strings.Join(words, " ")
	}
	return "New Chat"
}

// Sessions returns the number of stored conversations.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

// Owner returns the owner of a conversation and whether it exists.
func (s *Server) Owner(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[sessionID]
	if !ok {
		return "", false
	}
	return conv.owner, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
