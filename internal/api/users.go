package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/fluentcoach/internal/auth"
	"github.com/ashureev/fluentcoach/internal/domain"
	"github.com/ashureev/fluentcoach/internal/shared"
)

// UserHandler handles registration, login and profile lookups.
type UserHandler struct {
	*Handler
	verifier auth.Verifier
	locks    *shared.KeyedMutex
}

// NewUserHandler creates a user handler. locks must be the per-username
// lock shared with the coaching orchestrator.
func NewUserHandler(base *Handler, verifier auth.Verifier, locks *shared.KeyedMutex) *UserHandler {
	return &UserHandler{Handler: base, verifier: verifier, locks: locks}
}

// RegisterRoutes registers user routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/users", h.ListUsers)
	r.Post("/users", h.CreateUser)
	r.Get("/user/{username}", h.GetUser)
	r.Post("/login", h.Login)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ListUsers returns all usernames.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	names, err := h.repo.ListUsernames(r.Context())
	if err != nil {
		ServiceError(w, err, "list users")
		return
	}
	if names == nil {
		names = []string{}
	}
	JSON(w, http.StatusOK, map[string][]string{"users": names})
}

// GetUser returns a profile without its password hash.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	profile, err := h.repo.GetProfile(r.Context(), username)
	if err != nil {
		ServiceError(w, err, "get user")
		return
	}
	if profile == nil {
		Error(w, http.StatusNotFound, "user not found")
		return
	}
	JSON(w, http.StatusOK, profile)
}

// CreateUser registers a new profile.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(w, err, "create user")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := h.verifier.Hash(req.Password)
	if err != nil {
		ServiceError(w, err, "create user")
		return
	}
	profile := domain.NewUserProfile(req.Username, time.Now())
	profile.PasswordHash = hash

	unlock := h.locks.Lock(req.Username)
	err = h.repo.CreateProfile(r.Context(), profile)
	unlock()
	if errors.Is(err, domain.ErrDuplicate) {
		Error(w, http.StatusBadRequest, "username already exists")
		return
	}
	if err != nil {
		ServiceError(w, err, "create user")
		return
	}

	slog.Info("User registered", "username", req.Username)
	JSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"user":    profile,
	})
}

// Login checks a username and password.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(w, err, "login")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	profile, err := h.repo.GetProfile(r.Context(), req.Username)
	if err != nil {
		ServiceError(w, err, "login")
		return
	}
	if profile == nil {
		Error(w, http.StatusNotFound, "user not found")
		return
	}
	if !profile.HasPassword() {
		// Profiles created lazily by coaching have no credential.
		ServiceError(w, domain.ErrAuth, "login")
		return
	}
	if err := h.verifier.Verify(profile.PasswordHash, req.Password); err != nil {
		slog.Info("Login rejected", "username", req.Username)
		ServiceError(w, err, "login")
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
