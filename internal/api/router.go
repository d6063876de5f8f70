package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/fluentcoach/internal/auth"
	"github.com/ashureev/fluentcoach/internal/challenge"
	"github.com/ashureev/fluentcoach/internal/coach"
	"github.com/ashureev/fluentcoach/internal/identity"
	"github.com/ashureev/fluentcoach/internal/middleware"
	"github.com/ashureev/fluentcoach/internal/observe"
	"github.com/ashureev/fluentcoach/internal/repair"
	"github.com/ashureev/fluentcoach/internal/store"
)

// Deps are the services behind the HTTP surface. Live, Metrics and
// MetricsHandler are optional.
type Deps struct {
	Repo           store.Repository
	Machine        *challenge.Machine
	Orchestrator   *coach.Orchestrator
	Verifier       auth.Verifier
	Repair         *repair.Service
	MaxUploadBytes int64
	CORSOrigins    []string
	Live           http.Handler
	Metrics        *observe.Metrics
	MetricsHandler http.Handler
}

// NewRouter builds the chi router with global middleware and all routes.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(d.CORSOrigins))
	if d.Metrics != nil {
		r.Use(observe.Middleware(d.Metrics))
	}

	base := NewHandler(d.Repo)
	base.RegisterRoutes(r)
	NewUserHandler(base, d.Verifier, d.Orchestrator.Locks()).RegisterRoutes(r)
	NewChallengeHandler(d.Machine).RegisterRoutes(r)
	NewCoachHandler(base, d.Orchestrator).RegisterRoutes(r)
	NewRepairHandler(d.Repair, d.MaxUploadBytes).RegisterRoutes(r)

	if d.Live != nil {
		r.With(identity.Middleware).Get("/challenge/ws", d.Live.ServeHTTP)
	}
	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler)
	}

	return r
}
