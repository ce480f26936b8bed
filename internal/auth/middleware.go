package auth

import (
	"context"
	"net/http"

	"github.com/sakif/time-estimator/internal/model"
	"github.com/sakif/time-estimator/internal/repository"
)

// contextKey is unexported so no other package can read or shadow the
// values this package stores in a context.
type contextKey string

const userKey contextKey = "user"

// SessionUser snapshots the session's current user into the request
// context before the handler runs.
//
// The session can end while a request is in flight (expiry timer, sign-out
// from another tab). Services that read the user from the context see one
// consistent identity for the whole request instead of racing the session.
func SessionUser(session repository.CurrentUser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := session.User(); user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the user stored by SessionUser or WithUser.
//
// Usage in handlers:
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // no session when the request arrived
//	}
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}
