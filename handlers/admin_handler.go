package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/user"
	"pushupChallengeAPI/services"
)

type AdminHandler struct {
	userService *services.UserService
	log         logger.Logger
}

func NewAdminHandler(userService *services.UserService, log logger.Logger) *AdminHandler {
	return &AdminHandler{
		userService: userService,
		log:         log,
	}
}

func (h *AdminHandler) ResetUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	initials := mux.Vars(r)["initials"]
	if err := h.userService.ResetUser(ctx, initials); err != nil {
		respondWithServiceError(w, h.log, "ResetUser", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	initials := mux.Vars(r)["initials"]
	if err := h.userService.DeleteUser(ctx, initials); err != nil {
		respondWithServiceError(w, h.log, "DeleteUser", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) UpdatePin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req user.UpdatePinRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	initials := mux.Vars(r)["initials"]
	if err := h.userService.UpdatePin(ctx, initials, &req); err != nil {
		respondWithServiceError(w, h.log, "UpdatePin", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) CorrectProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req user.CorrectProgressRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.userService.CorrectProgress(ctx, mux.Vars(r)["initials"], &req)
	if err != nil {
		respondWithServiceError(w, h.log, "CorrectProgress", err)
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}
