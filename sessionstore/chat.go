package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/creastat/chatstore"
	"github.com/creastat/chatstore/agent"
	"github.com/creastat/chatstore/session"
	"go.uber.org/zap"
)

// ErrorReply is the assistant message shown when the backend could not answer.
const ErrorReply = "Sorry, I encountered an error connecting to the server. Please ensure the backend is running."

// SendRequest is one user turn.
type SendRequest struct {
	Content string
	// Image is uploaded with the message when set.
	Image *agent.Image
	// ImageURL is a local preview reference stored on the user message.
	ImageURL    string
	ContextLink string
}

// SendMessage appends the user's message to the active session (creating
// one if needed), sends it to the agent and appends the reply. When the
// backend fails, an assistant-authored error message is appended and the
// error is returned.
//
// The reply goes to the session the message was sent from even if another
// session became active meanwhile. After the first exchange of a signed-in
// user's session a backend-generated title is requested.
func (s *Store) SendMessage(ctx context.Context, req SendRequest) (session.Message, error) {
	if strings.TrimSpace(req.Content) == "" && req.Image == nil {
		return session.Message{}, errors.New("empty message")
	}

	sessionID := s.activeSessionID()
	if sessionID == "" {
		sessionID = s.CreateSession()
	}

	msgType := session.MessageText
	if req.Image != nil {
		msgType = session.MessageImage
	}
	if _, err := s.addMessageTo(sessionID, MessageInput{
		Sender:   session.SenderUser,
		Type:     msgType,
		Content:  req.Content,
		ImageURL: req.ImageURL,
	}); err != nil {
		return session.Message{}, err
	}

	token, userID := s.chatCredentials(ctx)

	cctx, cancel := s.backendContext(ctx)
	resp, err := s.backend.Chat(cctx, token, agent.ChatRequest{
		Message:     req.Content,
		UserID:      userID,
		SessionID:   sessionID,
		ContextLink: req.ContextLink,
		Image:       req.Image,
	})
	cancel()
	s.metrics.ObserveChat(err)

	if err != nil {
		s.logger.Warn("chat request failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		if _, addErr := s.addMessageTo(sessionID, MessageInput{
			Sender:  session.SenderAssistant,
			Type:    session.MessageText,
			Content: ErrorReply,
		}); addErr != nil {
			s.logger.Debug("session gone before error reply", zap.String("session_id", sessionID))
		}
		return session.Message{}, fmt.Errorf("send message: %w", err)
	}

	if resp.SessionID != "" && resp.SessionID != sessionID {
		s.logger.Warn("backend answered for a different session",
			zap.String("session_id", sessionID),
			zap.String("backend_session_id", resp.SessionID))
	}

	reply, err := s.addMessageTo(sessionID, MessageInput{
		Sender:   session.SenderAssistant,
		Type:     session.MessageText,
		Content:  replyContent(resp),
		Products: productsFromAgent(resp.Products),
	})
	if err != nil {
		return session.Message{}, err
	}

	if s.isFirstExchange(sessionID) {
		if _, err := s.RefreshTitle(ctx, sessionID); err != nil && !errors.Is(err, chatstore.ErrNotAuthenticated) {
			s.logger.Debug("title generation failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return reply, nil
}

// RefreshTitle asks the backend to title a session and applies the result
// under the same rule as a merge: a generic placeholder never replaces a
// real title. It returns the session's title afterwards.
func (s *Store) RefreshTitle(ctx context.Context, sessionID string) (string, error) {
	token, err := s.verifiedToken(ctx)
	if err != nil {
		return "", err
	}

	tctx, cancel := s.backendContext(ctx)
	remote, err := s.backend.GenerateTitle(tctx, token, sessionID)
	cancel()
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	if remote == "" {
		remote = chatstore.DefaultTitle
	}

	var title string
	found := false
	s.update(func(st *State) bool {
		i := st.indexOf(sessionID)
		if i < 0 {
			return false
		}
		found = true
		cs := &st.Sessions[i]
		title = chatstore.MergeTitle(cs.Title, remote)
		if title == cs.Title {
			return false
		}
		cs.Title = title
		return true
	})
	if !found {
		return "", fmt.Errorf("session %s: %w", sessionID, chatstore.ErrSessionNotFound)
	}
	return title, nil
}

func (s *Store) activeSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.indexOf(s.state.CurrentSessionID) < 0 {
		return ""
	}
	return s.state.CurrentSessionID
}

// chatCredentials picks the bearer token and user id for a chat call.
// Without a signed-in identity the configured guest token is used.
func (s *Store) chatCredentials(ctx context.Context) (token, userID string) {
	s.mu.Lock()
	user := s.state.User
	s.mu.Unlock()

	userID = guestUserID
	if user != nil && user.ID != "" {
		userID = user.ID
	}

	if user != nil && !user.IsGuest && s.identity != nil && s.identity.Current() != nil {
		t, err := s.identity.IDToken(ctx)
		if err == nil {
			return t, userID
		}
		s.logger.Warn("falling back to guest token", zap.Error(err))
	}
	return s.guestToken, userID
}

func (s *Store) isFirstExchange(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.state.indexOf(sessionID)
	return i >= 0 && len(s.state.Sessions[i].Messages) == 2
}

func replyContent(resp *agent.ChatResponse) string {
	content := resp.AgentResponse
	if insight := strings.TrimSpace(resp.PredictiveInsight); insight != "" {
		content += "\n\n💡 Insight: " + insight
	}
	return content
}

func productsFromAgent(in []agent.Product) []session.Product {
	if len(in) == 0 {
		return nil
	}
	out := make([]session.Product, len(in))
	for i, p := range in {
		out[i] = session.Product{
			Name:        p.Name,
			Price:       p.Price,
			Marketplace: p.Marketplace,
			Link:        p.Link,
			Image:       p.Image,
			Reason:      p.Reason,
		}
	}
	return out
}
