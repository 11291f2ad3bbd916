package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nimbuschat/backend/internal/model/user"
	"github.com/nimbuschat/backend/internal/service/auth"
	"github.com/nimbuschat/backend/pkg/utils"
)

type contextKey string

const userKey = contextKey("user")

// Auth guards routes with a bearer token, storing the authenticated user in
// the request context.
func Auth(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				utils.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
			usr, err := authSvc.Validate(token)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), usr)))
		})
	}
}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, usr user.User) context.Context {
	return context.WithValue(ctx, userKey, usr)
}

// UserFrom extracts the authenticated user placed by Auth.
func UserFrom(ctx context.Context) (user.User, bool) {
	usr, ok := ctx.Value(userKey).(user.User)
	return usr, ok
}
