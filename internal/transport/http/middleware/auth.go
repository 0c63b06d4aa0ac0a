package httpmw

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ngo-portal/event-chat/internal/domain"
	"github.com/ngo-portal/event-chat/pkg/httputil"
	"github.com/ngo-portal/event-chat/pkg/logger"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

type Authenticator interface {
	Resolve(ctx context.Context, credential string) (*domain.User, error)
}

// Auth требует Authorization: Bearer <token> и кладёт пользователя в контекст.
func Auth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if len(h) <= 7 || !strings.EqualFold(h[:7], "bearer ") {
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "No token, authorization denied")
				return
			}

			user, err := auth.Resolve(r.Context(), strings.TrimSpace(h[7:]))
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrUserNotFound):
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "User not found")
				return
			case errors.Is(err, domain.ErrUnauthenticated):
				logger.FromContext(r.Context()).Debug("token rejected", "err", err)
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "Token is not valid")
				return
			default:
				logger.FromContext(r.Context()).Error("resolve credential failed", "err", err)
				httputil.Error(r.Context(), w, http.StatusInternalServerError, "Server error")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, user)
			ctx = logger.WithContext(ctx, logger.FromContext(ctx).With("user_id", user.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserFromCtx(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(*domain.User)
	return u, ok && u != nil
}

// WithUser is used by tests and internal callers that already resolved the user.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}
