package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/vitaliisemenov/svc-facilitator/internal/api/problem"
	"github.com/vitaliisemenov/svc-facilitator/internal/facilitator"
)

// RecoveryMiddleware recovers from panics in any downstream handler and
// renders the facilitator's standard 500 envelope instead of letting
// net/http reset the connection. Mounted first in the stack so a panic in
// any later middleware is also caught.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := GetRequestID(r.Context())
					logger.Error("panic recovered",
						"request_id", requestID,
						"error", rec,
						"stack", string(debug.Stack()),
						"method", r.Method,
						"path", r.URL.Path,
					)

					problem.WriteError(w, requestID, &facilitator.Error{
						Kind:   facilitator.KindInternal,
						Detail: "an internal error occurred",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
