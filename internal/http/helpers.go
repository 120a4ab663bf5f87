package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type ctxKey int

const ownerKey ctxKey = iota

// readTimeout bounds every store read made on behalf of a request.
const readTimeout = 7 * time.Second

// withOwner stores the authenticated owner id in ctx.
func withOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerID)
}

// OwnerFromContext returns the owner id set by the auth middleware.
func OwnerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ownerKey).(string)
	return id
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// readContext derives the context used for store reads.
func readContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), readTimeout)
}

// queryBool accepts the usual spellings of true.
func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(key)))
	return err == nil && v
}

// sanitizeInput drops control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// requireAuth resolves the bearer token and puts the owner id in the
// request context. Unauthenticated calls get 401 with the session message.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			ErrorResponse(r.Context(), err, s.locale).Write(w)
			return
		}
		next(w, r.WithContext(withOwner(r.Context(), claims.Subject)))
	}
}
