// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// LLM providers.
const (
	LLMOpenAI = "openai"
	LLMGemini = "gemini"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	CORSOrigins []string
	LogLevel    string

	StoreDriver string // "memory" (default) or "sqlite"
	DBPath      string

	LLM       LLMConfig
	Voice     VoiceConfig
	Challenge ChallengeConfig

	MetricsEnabled bool
}

// LLMConfig selects and configures the language-generation collaborator.
type LLMConfig struct {
	Provider      string
	Model         string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
	Timeout       time.Duration
}

// VoiceConfig configures the voice-cloning collaborator and uploads.
type VoiceConfig struct {
	APIKey         string
	Model          string
	Timeout        time.Duration
	UploadDir      string
	MaxUploadBytes int64
}

// ChallengeConfig tunes the live challenge.
type ChallengeConfig struct {
	SilenceTimeout time.Duration
	IdleTTL        time.Duration
	SweepInterval  time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	frontendURL := getEnv("FRONTEND_URL", "")

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: frontendURL,
		CORSOrigins: getEnvList("CORS_ORIGINS", defaultOrigins(frontendURL)),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		DBPath:      getEnv("DB_PATH", "./data/fluentcoach.db"),
		LLM: LLMConfig{
			Provider:      strings.ToLower(getEnv("LLM_PROVIDER", LLMOpenAI)),
			Model:         getEnv("LLM_MODEL", ""),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			Timeout:       getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		},
		Voice: VoiceConfig{
			APIKey:         getEnv("ELEVENLABS_API_KEY", ""),
			Model:          getEnv("ELEVENLABS_MODEL", ""),
			Timeout:        getEnvDuration("VOICE_TIMEOUT", 60*time.Second),
			UploadDir:      getEnv("UPLOAD_DIR", "./data/uploads"),
			MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Challenge: ChallengeConfig{
			SilenceTimeout: getEnvDuration("CHALLENGE_SILENCE_TIMEOUT", 3*time.Second),
			IdleTTL:        getEnvDuration("CHALLENGE_IDLE_TTL", 10*time.Minute),
			SweepInterval:  getEnvDuration("CHALLENGE_SWEEP_INTERVAL", time.Minute),
		},
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty with STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMemory, StoreSQLite, c.StoreDriver)
	}
	switch c.LLM.Provider {
	case LLMOpenAI, LLMGemini:
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", LLMOpenAI, LLMGemini, c.LLM.Provider)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.Voice.Timeout <= 0 {
		return fmt.Errorf("VOICE_TIMEOUT must be > 0")
	}
	if c.Voice.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR cannot be empty")
	}
	if c.Voice.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.Challenge.SilenceTimeout <= 0 {
		return fmt.Errorf("CHALLENGE_SILENCE_TIMEOUT must be > 0")
	}
	if c.Challenge.IdleTTL <= c.Challenge.SilenceTimeout {
		return fmt.Errorf("CHALLENGE_IDLE_TTL must exceed CHALLENGE_SILENCE_TIMEOUT")
	}
	if c.Challenge.SweepInterval <= 0 {
		return fmt.Errorf("CHALLENGE_SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// LLMAPIKey returns the credential of the selected provider.
func (c *Config) LLMAPIKey() string {
	if c.LLM.Provider == LLMGemini {
		return c.LLM.GeminiAPIKey
	}
	return c.LLM.OpenAIAPIKey
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func defaultOrigins(frontendURL string) []string {
	if frontendURL == "" {
		return []string{"*"}
	}
	return []string{frontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings ("3s") or bare milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
