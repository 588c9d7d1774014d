package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
port: "8080"
databaseURL: postgres://u:p@localhost:5432/letters
redisAddr: localhost:6379
firebaseProjectID: letters-prod
sessionSecret: 0123456789abcdef0123
allowedOrigins:
  - https://letters.example.com
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.UserStore != "postgres" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.AuthRateLimitPerMinute != defaultAuthRateLimitPerMinute || cfg.GenerateRateLimitPerMinute != defaultGenerateRateLimitPerMinute {
		t.Fatalf("rate limit defaults not applied: %+v", cfg)
	}
	if cfg.MaxUploadBytes != defaultMaxUploadBytes {
		t.Fatalf("max upload = %d", cfg.MaxUploadBytes)
	}
	if got := cfg.DraftTTLOrDefault(); got != 1800*time.Second {
		t.Fatalf("draft ttl = %v", got)
	}
	if len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("REDIS_URL", "redis://:pw@cache:6379/0")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GENERATION_API_KEY", "sk-generic")
	t.Setenv("GENERATE_RATE_LIMIT_PER_MINUTE", "3")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("DRAFT_TTL", "10m")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env" || cfg.RedisURL != "redis://:pw@cache:6379/0" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.GenerationAPIKey != "sk-generic" {
		t.Fatalf("GENERATION_API_KEY should win, got %q", cfg.GenerationAPIKey)
	}
	if cfg.GenerateRateLimitPerMinute != 3 {
		t.Fatalf("generate limit = %d", cfg.GenerateRateLimitPerMinute)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if got := cfg.DraftTTLOrDefault(); got != 10*time.Minute {
		t.Fatalf("draft ttl = %v", got)
	}
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("USER_STORE", "memory")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SERVICE_ACCOUNT_KEY_JSON", `{"project_id":"p"}`)
	t.Setenv("SESSION_SECRET", "0123456789abcdef")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != defaultPort {
		t.Fatalf("port = %q", cfg.Port)
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() FileConfig {
		return FileConfig{
			Port:              "8080",
			UserStore:         "postgres",
			DatabaseURL:       "postgres://x",
			RedisAddr:         "localhost:6379",
			FirebaseProjectID: "p",
			SessionSecret:     "0123456789abcdef",
		}
	}
	tests := []struct {
		name   string
		mutate func(*FileConfig)
		want   string
	}{
		{name: "missing database", mutate: func(c *FileConfig) { c.DatabaseURL = "" }, want: "databaseURL"},
		{name: "unknown store", mutate: func(c *FileConfig) { c.UserStore = "mongo" }, want: "userStore"},
		{name: "missing redis", mutate: func(c *FileConfig) { c.RedisAddr = "" }, want: "redis"},
		{name: "missing firebase", mutate: func(c *FileConfig) { c.FirebaseProjectID = "" }, want: "firebase"},
		{name: "short secret", mutate: func(c *FileConfig) { c.SessionSecret = "short" }, want: "sessionSecret"},
		{name: "bad ttl", mutate: func(c *FileConfig) { c.DraftTTL = "soon" }, want: "draftTTL"},
		{name: "negative limit", mutate: func(c *FileConfig) { c.AuthRateLimitPerMinute = -1 }, want: "rate limits"},
	}
	if err := validateConfig(base()); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := validateConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
