package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/httputil"
	"intake/pkg/requestcontext"
)

// BearerAuthenticator resolves an opaque bearer credential to the reviewer
// organization that owns it. Implementations return an error for unknown or
// inactive credentials; they must not distinguish the two to the caller.
type BearerAuthenticator interface {
	Authenticate(ctx context.Context, bearer string) (id.ReviewerID, error)
}

// RequireReviewer authenticates every request of the reviewer REST surface and
// stores the caller organization in the context.
func RequireReviewer(authenticator BearerAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing bearer token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			reviewerID, err := authenticator.Authenticate(ctx, token)
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeInternal) {
					logger.ErrorContext(ctx, "failed to authenticate reviewer",
						"error", err,
						"request_id", requestID,
					)
					httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to validate token"))
					return
				}
				logger.WarnContext(ctx, "unauthorized access - invalid bearer token",
					"request_id", requestID,
					"client_ip", requestcontext.ClientIP(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
				return
			}

			ctx = requestcontext.WithReviewerID(ctx, reviewerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
