package middleware

import (
	"context"
	"net/http"

	"github.com/ayush/peces-catalog/internal/auth"
	"github.com/ayush/peces-catalog/internal/models"
)

// SessionReader resolves a session id into a principal.
type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*auth.Principal, error)
}

// RequireAuth is middleware that validates the session cookie and
// injects the principal into the request context.
func RequireAuth(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}

			p, err := sessions.Get(r.Context(), cookie.Value)
			if err != nil {
				http.Error(w, `{"error":"session store unavailable"}`, http.StatusInternalServerError)
				return
			}
			if p == nil {
				http.Error(w, `{"error":"session expired"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole rejects principals whose role is not listed. It must run
// after RequireAuth.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		})
	}
}
