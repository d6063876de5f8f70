// FluentCoach - speech coaching server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashureev/fluentcoach/internal/api"
	"github.com/ashureev/fluentcoach/internal/auth"
	"github.com/ashureev/fluentcoach/internal/challenge"
	"github.com/ashureev/fluentcoach/internal/coach"
	"github.com/ashureev/fluentcoach/internal/config"
	"github.com/ashureev/fluentcoach/internal/live"
	"github.com/ashureev/fluentcoach/internal/observe"
	"github.com/ashureev/fluentcoach/internal/progress"
	"github.com/ashureev/fluentcoach/internal/provider/llm/gemini"
	"github.com/ashureev/fluentcoach/internal/provider/llm/openai"
	"github.com/ashureev/fluentcoach/internal/provider/voice/elevenlabs"
	"github.com/ashureev/fluentcoach/internal/repair"
	"github.com/ashureev/fluentcoach/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live challenges always stay in process memory; the repository holds
	// profiles and the ledger.
	challenges := store.NewMemory()
	repo, err := openRepository(cfg, challenges)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store connected")

	var (
		metrics        *observe.Metrics
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		var shutdownMetrics func(context.Context) error
		metrics, metricsHandler, shutdownMetrics, err = observe.InitProvider(ctx, "fluentcoach")
		if err != nil {
			slog.Error("Failed to initialize metrics", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := shutdownMetrics(context.Background()); err != nil {
				slog.Warn("Failed to shut down metrics provider", "error", err)
			}
		}()
		slog.Info("Metrics enabled", "path", "/metrics")
	}

	// Initialize services.
	machineOpts := []challenge.Option{challenge.WithSilenceTimeout(cfg.Challenge.SilenceTimeout)}
	coachOpts := []coach.Option{coach.WithTimeout(cfg.LLM.Timeout)}
	repairOpts := []repair.Option{
		repair.WithTimeout(cfg.Voice.Timeout),
		repair.WithMaxBytes(cfg.Voice.MaxUploadBytes),
	}
	if metrics != nil {
		machineOpts = append(machineOpts, challenge.WithRecorder(metrics))
		coachOpts = append(coachOpts, coach.WithRecorder(metrics))
		repairOpts = append(repairOpts, repair.WithRecorder(metrics))
	}

	machine := challenge.NewMachine(challenges, machineOpts...)
	orch := coach.NewOrchestrator(repo, repo, newSuggester(ctx, cfg), progress.NewEngine(), coachOpts...)
	repairSvc := repair.NewService(newVoiceCloner(cfg), cfg.Voice.UploadDir, repairOpts...)

	sm := live.NewSessionManager()
	defer sm.CloseAll()

	router := api.NewRouter(api.Deps{
		Repo:           repo,
		Machine:        machine,
		Orchestrator:   orch,
		Verifier:       auth.NewBcryptVerifier(0),
		Repair:         repairSvc,
		MaxUploadBytes: cfg.Voice.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
		Live:           live.NewHandler(machine, sm, cfg.CORSOrigins, cfg.IsDevelopment()),
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})

	// No WriteTimeout: repair audio and the live stream are long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	challenge.StartSweeper(ctx, machine, cfg.Challenge.SweepInterval, cfg.Challenge.IdleTTL)
	slog.Info("Challenge sweeper started", "interval", cfg.Challenge.SweepInterval, "idle_ttl", cfg.Challenge.IdleTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func openRepository(cfg *config.Config, mem *store.MemoryStore) (store.Repository, error) {
	if cfg.StoreDriver == config.StoreSQLite {
		return store.NewSQLite(cfg.DBPath)
	}
	return mem, nil
}

// newSuggester returns nil when no credential is configured; coaching then
// fails with an upstream error.
func newSuggester(ctx context.Context, cfg *config.Config) coach.Suggester {
	key := cfg.LLMAPIKey()
	if key == "" {
		slog.Warn("No language service credential configured, /coach will fail", "provider", cfg.LLM.Provider)
		return nil
	}

	switch cfg.LLM.Provider {
	case config.LLMGemini:
		p, err := gemini.New(ctx, key, cfg.LLM.Model)
		if err != nil {
			slog.Error("Failed to initialize Gemini provider", "error", err)
			return nil
		}
		slog.Info("Language service ready", "provider", "gemini")
		return p
	default:
		var opts []openai.Option
		if cfg.LLM.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.OpenAIBaseURL))
		}
		p, err := openai.New(key, cfg.LLM.Model, opts...)
		if err != nil {
			slog.Error("Failed to initialize OpenAI provider", "error", err)
			return nil
		}
		slog.Info("Language service ready", "provider", "openai")
		return p
	}
}

// newVoiceCloner returns a nil interface when ElevenLabs is not configured.
func newVoiceCloner(cfg *config.Config) repair.VoiceCloner {
	if cfg.Voice.APIKey == "" {
		slog.Warn("ELEVENLABS_API_KEY not set, /repair is disabled")
		return nil
	}
	c, err := elevenlabs.New(cfg.Voice.APIKey, elevenlabs.WithModel(cfg.Voice.Model))
	if err != nil {
		slog.Error("Failed to initialize ElevenLabs client", "error", err)
		return nil
	}
	return c
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
