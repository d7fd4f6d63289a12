package middleware

import (
	"context"
	"net/http"

	"github.com/slidesmith/slidesmith/internal/domain"
	"github.com/slidesmith/slidesmith/internal/http/response"
	"github.com/slidesmith/slidesmith/internal/security"
	"github.com/slidesmith/slidesmith/internal/service"
)

type contextKey string

const userContextKey contextKey = "current_user"

// SessionAuth resolves the session cookie to a user and attaches it to the
// request context. Missing, invalid, and expired sessions all resolve to
// anonymous here; routes that demand identity layer RequireUser on top.
func SessionAuth(auth *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := security.GetCookie(r, security.SessionCookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := auth.GetUserBySession(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects anonymous requests with 401. This is distinct from
// the 400 a malformed request earns.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects non-admin identities with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		if !user.IsAdmin {
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "admin privilege required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userContextKey).(*domain.User)
	return u, ok
}
