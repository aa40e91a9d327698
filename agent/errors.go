package agent

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// ErrInvalidImage is returned when a chat attachment is not an image.
var ErrInvalidImage = errors.New("attachment is not an image")

// APIError is a non-2xx response from the agent backend.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agent %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 or 403 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

func newAPIError(op string, resp *resty.Response) *APIError {
	body := resp.String()
	if len(body) > 512 {
		body = body[:512]
	}
	return &APIError{Operation: op, StatusCode: resp.StatusCode(), Body: body}
}
