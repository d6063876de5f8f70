package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FRONTEND_URL", "")
	t.Setenv("CORS_ORIGINS", "")
	t.Setenv("CHALLENGE_SILENCE_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Challenge.SilenceTimeout != 3*time.Second {
		t.Errorf("SilenceTimeout = %v", cfg.Challenge.SilenceTimeout)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, want [*]", cfg.CORSOrigins)
	}
	if !cfg.IsDevelopment() {
		t.Error("empty FRONTEND_URL should be development")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("LLM_TIMEOUT", "1500")
	t.Setenv("CORS_ORIGINS", "https://a.test, https://b.test ,")
	t.Setenv("FRONTEND_URL", "https://app.test")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDriver != StoreSQLite || cfg.DBPath != "/tmp/x.db" {
		t.Errorf("store = %q %q", cfg.StoreDriver, cfg.DBPath)
	}
	if cfg.LLMAPIKey() != "g-key" {
		t.Errorf("LLMAPIKey() = %q", cfg.LLMAPIKey())
	}
	if cfg.LLM.Timeout != 1500*time.Millisecond {
		t.Errorf("LLM timeout = %v, want 1.5s", cfg.LLM.Timeout)
	}
	if strings.Join(cfg.CORSOrigins, "|") != "https://a.test|https://b.test" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.LogLevel != "debug" || cfg.IsDevelopment() {
		t.Errorf("LogLevel = %q, dev = %v", cfg.LogLevel, cfg.IsDevelopment())
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:        "8080",
			LogLevel:    "info",
			StoreDriver: StoreMemory,
			LLM:         LLMConfig{Provider: LLMOpenAI, Timeout: time.Second},
			Voice:       VoiceConfig{Timeout: time.Second, UploadDir: "/tmp", MaxUploadBytes: 1},
			Challenge: ChallengeConfig{
				SilenceTimeout: 3 * time.Second,
				IdleTTL:        time.Minute,
				SweepInterval:  time.Second,
			},
		}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"bad driver", func(c *Config) { c.StoreDriver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.StoreDriver = StoreSQLite; c.DBPath = "" }},
		{"bad provider", func(c *Config) { c.LLM.Provider = "claude" }},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }},
		{"ttl below silence", func(c *Config) { c.Challenge.IdleTTL = time.Second }},
		{"zero upload cap", func(c *Config) { c.Voice.MaxUploadBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("D_GO", "250ms")
	t.Setenv("D_MS", "3000")
	t.Setenv("D_BAD", "soon")

	if got := getEnvDuration("D_GO", time.Hour); got != 250*time.Millisecond {
		t.Errorf("D_GO = %v", got)
	}
	if got := getEnvDuration("D_MS", time.Hour); got != 3*time.Second {
		t.Errorf("D_MS = %v", got)
	}
	if got := getEnvDuration("D_BAD", time.Hour); got != time.Hour {
		t.Errorf("D_BAD = %v", got)
	}
	if got := getEnvDuration("D_UNSET_KEY", time.Minute); got != time.Minute {
		t.Errorf("unset = %v", got)
	}
}
