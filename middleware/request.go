package middleware

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"

	"pushupChallengeAPI/internal/logger"
)

const RequestIDKey contextKey = "requestID"

const HeaderRequestID = "X-Request-ID"

// RequestID tags every request with an id, reusing a valid incoming one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Recover turns handler panics into 500s.
func Recover(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.With("request_id", GetRequestID(r.Context()), "path", r.URL.Path).
						Errorf("panic: %v\n%s", rec, debug.Stack())
					respondWithError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
