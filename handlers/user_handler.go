package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pushupChallengeAPI/internal/challenge"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/user"
	"pushupChallengeAPI/middleware"
	"pushupChallengeAPI/services"
)

type UserHandler struct {
	userService *services.UserService
	log         logger.Logger
}

func NewUserHandler(userService *services.UserService, log logger.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		log:         log,
	}
}

// Login signs a user in, creating the account on first use.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req user.LoginRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, created, err := h.userService.Login(ctx, &req)
	if err != nil {
		respondWithServiceError(w, h.log, "Login", err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	respondWithJSON(w, code, u)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	initials, ok := middleware.GetInitials(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	u, err := h.userService.GetUserWithLogs(ctx, initials)
	if err != nil {
		respondWithServiceError(w, h.log, "GetUser", err)
		return
	}
	respondWithJSON(w, http.StatusOK, u)
}

func (h *UserHandler) LogPushups(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	initials, ok := middleware.GetInitials(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req user.LogPushupsRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.userService.LogPushups(ctx, initials, &req)
	if err != nil {
		respondWithServiceError(w, h.log, "LogPushups", err)
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}

// UseBreakDay answers 200 with success=false when the month's allowance is
// gone; clients treat that as a normal outcome.
func (h *UserHandler) UseBreakDay(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	initials, ok := middleware.GetInitials(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req user.BreakDayRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.userService.UseBreakDay(ctx, initials, &req)
	if errors.Is(err, challenge.ErrBreakDayExhausted) {
		respondWithJSON(w, http.StatusOK, user.BreakDayResponse{Success: false, Reason: err.Error()})
		return
	}
	if err != nil {
		respondWithServiceError(w, h.log, "UseBreakDay", err)
		return
	}
	respondWithJSON(w, http.StatusOK, user.BreakDayResponse{Success: true, Log: &entry})
}

func (h *UserHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	initials, ok := middleware.GetInitials(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	st, err := h.userService.Stats(ctx, initials)
	if err != nil {
		respondWithServiceError(w, h.log, "GetUserStats", err)
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

func (h *UserHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	initials, ok := middleware.GetInitials(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	year, err := optionalInt(r, "year")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid year parameter")
		return
	}
	month, err := optionalInt(r, "month")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid month parameter")
		return
	}

	cal, err := h.userService.Calendar(ctx, initials, year, month)
	if err != nil {
		respondWithServiceError(w, h.log, "GetCalendar", err)
		return
	}
	respondWithJSON(w, http.StatusOK, cal)
}

func optionalInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
