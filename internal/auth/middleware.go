package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	tokenContextKey   contextKey = "token"
)

// SessionVerifier resolves a bearer token to a live session.
type SessionVerifier interface {
	CurrentSession(ctx context.Context, token string) (*models.Session, error)
}

// Middleware guards routes that need a signed-in user. Unauthenticated
// requests are rejected with 401 before reaching next.
func Middleware(v SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := BearerToken(r)
			if tokenStr == "" {
				unauthorized(w, "unauthorized")
				return
			}
			session, err := v.CurrentSession(r.Context(), tokenStr)
			if err != nil || session == nil {
				unauthorized(w, "invalid session")
				return
			}
			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			ctx = context.WithValue(ctx, tokenContextKey, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func GetSession(ctx context.Context) *models.Session {
	s, _ := ctx.Value(sessionContextKey).(*models.Session)
	return s
}

func GetToken(ctx context.Context) string {
	t, _ := ctx.Value(tokenContextKey).(string)
	return t
}

// WithSession returns ctx carrying s, as the middleware would.
func WithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
