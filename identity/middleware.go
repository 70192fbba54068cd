package identity

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/toolstack/toolstack/handler"
	"github.com/toolstack/toolstack/pkg/logger"
)

// UserIDHeader carries the authenticated user's ID, set by the auth
// gateway in front of this service after verifying credentials.
const UserIDHeader = "X-User-ID"

// RequireUser returns middleware that resolves the authenticated user
// from the gateway header and stores it in the request context.
// Requests without a valid, active user are rejected with 401.
func RequireUser(users Store, log *slog.Logger) func(http.Handler) http.Handler {
	if users == nil {
		panic("identity: user store is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := uuid.Parse(r.Header.Get(UserIDHeader))
			if err != nil {
				renderUnauthorized(w, r)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, ErrUserNotFound) {
					log.ErrorContext(r.Context(), "failed to resolve user",
						logger.UserID(userID),
						logger.Error(err))
				}
				renderUnauthorized(w, r)
				return
			}
			if !user.IsActive {
				renderUnauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetUserToContext(r.Context(), user)))
		})
	}
}

func renderUnauthorized(w http.ResponseWriter, r *http.Request) {
	_ = handler.JSONError(handler.ErrUnauthorized).Render(w, r)
}
