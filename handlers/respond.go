package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"pushupChallengeAPI/internal/challenge"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/store"
	"pushupChallengeAPI/internal/timezone"
	"pushupChallengeAPI/services"
)

var validate = validator.New()

const maxBodyBytes = 1 << 16

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid field %s: failed %s", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, challenge.ErrInvalidStartDate),
		errors.Is(err, timezone.ErrInvalidTimezone),
		errors.Is(err, challenge.ErrInvalidCount),
		errors.Is(err, challenge.ErrDayInFuture),
		errors.Is(err, services.ErrInvalidMonth):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidPin):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrChallengeStarted):
		return http.StatusForbidden
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, challenge.ErrLogNotFound):
		return http.StatusNotFound
	case errors.Is(err, challenge.ErrChallengeNotConfigured),
		errors.Is(err, challenge.ErrDayOnBreak),
		errors.Is(err, challenge.ErrBreakNotAllowed),
		errors.Is(err, challenge.ErrStatusRegression),
		errors.Is(err, store.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError hides internal errors from clients and logs them.
func respondWithServiceError(w http.ResponseWriter, log logger.Logger, op string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Errorf("%s: %v", op, err)
		respondWithError(w, code, "Internal server error")
		return
	}
	respondWithError(w, code, err.Error())
}
