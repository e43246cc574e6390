package handlers

import (
	"context"
	"net/http"
	"time"

	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/services"
)

type ChallengeHandler struct {
	challengeService *services.ChallengeService
	log              logger.Logger
}

func NewChallengeHandler(challengeService *services.ChallengeService, log logger.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService: challengeService,
		log:              log,
	}
}

func (h *ChallengeHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.challengeService.Ping(ctx); err != nil {
		h.log.Warnf("Health: %v", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pushup-challenge-api",
	})
}

// GetData returns everything a client needs on startup.
func (h *ChallengeHandler) GetData(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	data, err := h.challengeService.Data(ctx)
	if err != nil {
		respondWithServiceError(w, h.log, "GetData", err)
		return
	}
	respondWithJSON(w, http.StatusOK, data)
}

func (h *ChallengeHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	state, err := h.challengeService.State(ctx)
	if err != nil {
		respondWithServiceError(w, h.log, "GetChallenge", err)
		return
	}
	respondWithJSON(w, http.StatusOK, state)
}

// Configure replaces the challenge start date and timezone. Every user's
// log is regenerated.
func (h *ChallengeHandler) Configure(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req services.ConfigureRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.challengeService.Configure(ctx, req)
	if err != nil {
		respondWithServiceError(w, h.log, "Configure", err)
		return
	}
	h.log.Infof("Configure: challenge reset to start %s", req.StartDate)
	respondWithJSON(w, http.StatusOK, state)
}
