package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/fluentcoach/internal/challenge"
)

// ChallengeHandler exposes the challenge state machine over HTTP.
type ChallengeHandler struct {
	machine *challenge.Machine
}

// NewChallengeHandler creates a challenge handler.
func NewChallengeHandler(machine *challenge.Machine) *ChallengeHandler {
	return &ChallengeHandler{machine: machine}
}

// RegisterRoutes registers challenge routes.
func (h *ChallengeHandler) RegisterRoutes(r chi.Router) {
	r.Post("/challenge/start", h.Start)
	r.Post("/challenge/tick", h.Tick)
	r.Post("/challenge/stop", h.Stop)
}

type challengeRequest struct {
	UserID     string `json:"userId"`
	Transcript string `json:"transcript"`
}

// Start begins a challenge.
func (h *ChallengeHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(w, err, "challenge start")
		return
	}
	c, err := h.machine.Start(r.Context(), req.UserID)
	if err != nil {
		ServiceError(w, err, "challenge start")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":    "started",
		"startTime": c.StartTime,
	})
}

// Tick evaluates one transcript snapshot.
func (h *ChallengeHandler) Tick(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(w, err, "challenge tick")
		return
	}
	res, err := h.machine.Tick(r.Context(), req.UserID, req.Transcript)
	if err != nil {
		ServiceError(w, err, "challenge tick")
		return
	}
	JSON(w, http.StatusOK, res)
}

// Stop abandons a challenge.
func (h *ChallengeHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(w, err, "challenge stop")
		return
	}
	stopped, err := h.machine.Stop(r.Context(), req.UserID)
	if err != nil {
		ServiceError(w, err, "challenge stop")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}
