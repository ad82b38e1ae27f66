package middleware

import (
	"context"
	"net/http"
	"strings"

	"backstage/shared/go/logging"
	"backstage/shared/go/models"
)

// SessionCookie is the cookie the web client stores the session token in.
const SessionCookie = "backstage_session"

type userKey struct{}

// SessionResolver loads the user behind a session token.
type SessionResolver interface {
	CurrentUser(ctx context.Context, token string) (models.User, error)
}

// Authenticate attaches the session user, when there is one, to the request
// context. Requests without a valid session pass through anonymously; handlers
// decide whether a user is required.
func Authenticate(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := sessions.CurrentUser(r.Context(), token)
			if err != nil {
				logging.WithContext(r.Context()).Debug().Err(err).Msg("session rejected")
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithUser(r.Context(), user)
			ctx = logging.WithUserID(ctx, user.ID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated user attached by Authenticate.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey{}).(models.User)
	return user, ok
}

// WithUser attaches a user to ctx.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// SessionToken reads the bearer token, falling back to the session cookie.
func SessionToken(r *http.Request) string {
	if token := parseBearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func parseBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Chain applies middlewares so the first one listed runs first.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
