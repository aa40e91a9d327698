// Package agent is the HTTP client of the agent backend.
//
// Every call carries the caller's bearer token, runs under the context's
// deadline and goes through a rate limiter and a circuit breaker. Nothing is
// retried unless Config.RetryMax is raised.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/creastat/chatstore"
	"github.com/creastat/chatstore/internal/metrics"
	"github.com/creastat/chatstore/internal/resilience"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Operation names used in errors, logs and metrics.
const (
	OpChat    = "chat"
	OpHistory = "history"
	OpSession = "session"
	OpTitle   = "title"
	OpClaim   = "claim"
	OpHealth  = "health"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout bounds a single HTTP exchange. Callers usually also set a
	// context deadline; the shorter one wins.
	Timeout time.Duration
	// RetryMax is the number of transport-level retries. Zero disables retries.
	RetryMax  int
	RetryWait time.Duration
	// RateLimit is the maximum requests per second. Zero means unlimited.
	RateLimit float64
	UserAgent string
	// Transport overrides the base round tripper, mainly for tests.
	Transport http.RoundTripper
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Client talks to the agent backend.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a client for the backend at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("agent base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "chatstore/1.0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("agent")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWait
	retryClient.RetryWaitMax = 10 * cfg.RetryWait
	retryClient.Logger = nil
	// Hand the final response back instead of turning 5xx into a transport error.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.Transport != nil {
		retryClient.HTTPClient.Transport = cfg.Transport
	}

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	breaker := resilience.New("agent", resilience.Settings{
		MaxProbes: 1,
		Window:    time.Minute,
		Cooldown:  15 * time.Second,
		ShouldTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsFailure: isBackendFailure,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// isBackendFailure counts transport errors and 5xx responses against the
// breaker. Client errors and cancellations say nothing about backend health.
func isBackendFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true
}

// Chat sends one user turn to the agent.
func (c *Client) Chat(ctx context.Context, token string, req ChatRequest) (*ChatResponse, error) {
	form := map[string]string{"message": req.Message}
	if req.UserID != "" {
		form["user_id"] = req.UserID
	}
	if req.SessionID != "" {
		form["session_id"] = req.SessionID
	}
	if req.ContextLink != "" {
		form["context_link"] = req.ContextLink
	}

	var contentType string
	if req.Image != nil {
		mt := mimetype.Detect(req.Image.Data)
		if !strings.HasPrefix(mt.String(), "image/") {
			return nil, fmt.Errorf("%w: detected %s", ErrInvalidImage, mt.String())
		}
		contentType = mt.String()
	}

	var out ChatResponse
	err := c.do(ctx, OpChat, &out, func(r *resty.Request) (*resty.Response, error) {
		r.SetAuthToken(token).SetMultipartFormData(form)
		if req.Image != nil {
			name := req.Image.Filename
			if name == "" {
				name = "upload" + mimetype.Detect(req.Image.Data).Extension()
			}
			r.SetMultipartField("image", name, contentType, bytes.NewReader(req.Image.Data))
		}
		return r.Post("/agent/chat")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists the sessions the backend holds for the token's user.
func (c *Client) History(ctx context.Context, token string) ([]SessionSummary, error) {
	var out []SessionSummary
	err := c.do(ctx, OpHistory, &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetAuthToken(token).Get("/agent/history")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SessionDetail fetches the stored conversation of one session.
func (c *Client) SessionDetail(ctx context.Context, token, sessionID string) (*SessionDetail, error) {
	var out SessionDetail
	err := c.do(ctx, OpSession, &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetAuthToken(token).
			SetPathParam("id", sessionID).
			Get("/agent/session/{id}")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateTitle asks the backend to summarize a session into a title.
func (c *Client) GenerateTitle(ctx context.Context, token, sessionID string) (string, error) {
	var out titleResponse
	err := c.do(ctx, OpTitle, &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetAuthToken(token).
			SetHeader("Content-Type", "application/json").
			SetBody(titleRequest{SessionID: sessionID}).
			Post("/agent/title")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Title), nil
}

// ClaimSession assigns a session created anonymously to the token's user.
func (c *Client) ClaimSession(ctx context.Context, token, sessionID string) error {
	return c.do(ctx, OpClaim, nil, func(r *resty.Request) (*resty.Response, error) {
		return r.SetAuthToken(token).
			SetPathParam("id", sessionID).
			Post("/agent/session/{id}/claim")
	})
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	err := c.do(ctx, OpHealth, &out, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/health")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BreakerState exposes the circuit breaker state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// do runs one request through the limiter and breaker and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, op string, out any, send func(*resty.Request) (*resty.Response, error)) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("agent %s: rate limit: %w", op, err)
	}

	start := time.Now()
	resp, err := resilience.Do(c.breaker, func() (*resty.Response, error) {
		resp, err := send(c.resty.R().SetContext(ctx))
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return resp, newAPIError(op, resp)
		}
		return resp, nil
	})

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode())
	}
	c.metrics.ObserveAgent(op, status, time.Since(start))
	c.logger.Debug("agent request",
		zap.String("operation", op),
		zap.String("status", status),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))

	var apiErr *APIError
	switch {
	case err == nil:
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("agent %s: %w", op, err)
	default:
		return fmt.Errorf("agent %s: %w: %w", op, chatstore.ErrBackendUnavailable, err)
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("agent %s: decode response: %w", op, err)
	}
	return nil
}
