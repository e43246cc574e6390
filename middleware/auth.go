package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/user"
)

type contextKey string

const InitialsKey contextKey = "initials"

const (
	HeaderInitials = "X-User-Initials"
	HeaderPin      = "X-User-Pin"
)

type Authenticator interface {
	Authenticate(ctx context.Context, initials, pin string) (*user.User, error)
}

// UserAuth checks the initials and PIN headers and stores the user's
// initials in the request context. isUnauthorized decides which
// Authenticate errors are the caller's fault.
func UserAuth(auth Authenticator, isUnauthorized func(error) bool, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initials := r.Header.Get(HeaderInitials)
			pin := r.Header.Get(HeaderPin)
			if initials == "" || pin == "" {
				respondWithError(w, http.StatusUnauthorized, "X-User-Initials and X-User-Pin headers required")
				return
			}

			u, err := auth.Authenticate(r.Context(), initials, pin)
			if err != nil {
				if isUnauthorized(err) {
					respondWithError(w, http.StatusUnauthorized, "Invalid initials or PIN")
					return
				}
				log.Errorf("Auth: failed to authenticate %s: %v", initials, err)
				respondWithError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			ctx := context.WithValue(r.Context(), InitialsKey, u.Initials)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetInitials extracts the authenticated user's initials from context.
func GetInitials(ctx context.Context) (string, bool) {
	initials, ok := ctx.Value(InitialsKey).(string)
	return initials, ok
}

// BasicAuth guards a handler with a single user/password pair. An empty
// password locks the handler entirely.
func BasicAuth(realm, username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || password == "" ||
				subtle.ConstantTimeCompare([]byte(u), []byte(username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(p), []byte(password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
				respondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
