package api

import (
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/fluentcoach/internal/coach"
	"github.com/ashureev/fluentcoach/internal/domain"
)

// CoachHandler serves coaching exchanges and the session ledger.
type CoachHandler struct {
	*Handler
	orch *coach.Orchestrator
}

// NewCoachHandler creates a coach handler.
func NewCoachHandler(base *Handler, orch *coach.Orchestrator) *CoachHandler {
	return &CoachHandler{Handler: base, orch: orch}
}

// RegisterRoutes registers coaching routes.
func (h *CoachHandler) RegisterRoutes(r chi.Router) {
	r.Post("/coach", h.Coach)
	r.Get("/sessions/{userId}", h.ListSessions)
}

type coachRequest struct {
	Transcript string   `json:"transcript"`
	Mode       string   `json:"mode"`
	UserID     string   `json:"userId"`
	Duration   *float64 `json:"duration"`
	Language   string   `json:"language"`
}

// Coach runs one coaching exchange.
func (h *CoachHandler) Coach(w http.ResponseWriter, r *http.Request) {
	var req coachRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(w, err, "coach")
		return
	}

	resp, err := h.orch.Coach(r.Context(), coach.Request{
		UserID:          req.UserID,
		Transcript:      req.Transcript,
		Mode:            req.Mode,
		Language:        req.Language,
		DurationSeconds: wholeSeconds(req.Duration),
	})
	if err != nil {
		ServiceError(w, err, "coach")
		return
	}
	JSON(w, http.StatusOK, resp)
}

// ListSessions returns a user's ledger entries, newest first.
func (h *CoachHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	sessions, err := h.repo.ListSessions(r.Context(), userID)
	if err != nil {
		ServiceError(w, err, "list sessions")
		return
	}
	if sessions == nil {
		sessions = []*domain.CoachingSession{}
	}
	JSON(w, http.StatusOK, sessions)
}

// maxSessionSeconds caps a single reported session at one hour.
const maxSessionSeconds = 3600

// wholeSeconds floors a client-reported duration; absent, negative and
// non-finite values count as zero, longer ones as maxSessionSeconds.
func wholeSeconds(d *float64) int {
	if d == nil || math.IsNaN(*d) || math.IsInf(*d, 0) || *d <= 0 {
		return 0
	}
	if *d > maxSessionSeconds {
		return maxSessionSeconds
	}
	return int(math.Floor(*d))
}
