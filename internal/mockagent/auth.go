package mockagent

import (
	"context"
	"net/http"
	"strings"

	"github.com/creastat/chatstore/identity"
	"go.uber.org/zap"
)

type callerKey struct{}

// authenticate resolves the bearer token to a caller. The guest token is only
// accepted where allowGuest is set; the caller is then anonymous.
func (s *Server) authenticate(allowGuest bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			if token == s.guestToken {
				if !allowGuest {
					writeError(w, http.StatusUnauthorized, "sign in required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := identity.Verify(token, s.secret)
			if err != nil || claims.Subject == "" {
				s.logger.Debug("rejected token", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), callerKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// callerFrom returns the authenticated user id, or "" for guests.
func callerFrom(r *http.Request) string {
	sub, _ := r.Context().Value(callerKey{}).(string)
	return sub
}
