package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

const (
	defaultPort                       = "5000"
	defaultDraftTTL                   = 1800 * time.Second
	defaultMaxUploadBytes             = 10 << 20
	defaultAuthRateLimitPerMinute     = 20
	defaultGenerateRateLimitPerMinute = 10
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                       string   `yaml:"port"`
	LogLevel                   string   `yaml:"logLevel"`
	DatabaseURL                string   `yaml:"databaseURL"`
	UserStore                  string   `yaml:"userStore"`
	RedisURL                   string   `yaml:"redisURL"`
	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	DraftTTL                   string   `yaml:"draftTTL"`
	FirebaseProjectID          string   `yaml:"firebaseProjectID"`
	ServiceAccountKeyJSON      string   `yaml:"serviceAccountKeyJSON"`
	ServiceAccountKeyPath      string   `yaml:"serviceAccountKeyPath"`
	JWKSURL                    string   `yaml:"jwksURL"`
	JWTLeeway                  string   `yaml:"jwtLeeway"`
	GenerationProvider         string   `yaml:"generationProvider"`
	GenerationBaseURL          string   `yaml:"generationBaseURL"`
	GenerationAPIKey           string   `yaml:"generationAPIKey"`
	GenerationModel            string   `yaml:"generationModel"`
	GenerationTimeout          string   `yaml:"generationTimeout"`
	SessionSecret              string   `yaml:"sessionSecret"`
	SessionCookieSecure        bool     `yaml:"sessionCookieSecure"`
	MaxUploadBytes             int64    `yaml:"maxUploadBytes"`
	AuthRateLimitPerMinute     int      `yaml:"authRateLimitPerMinute"`
	GenerateRateLimitPerMinute int      `yaml:"generateRateLimitPerMinute"`
	AllowedOrigins             []string `yaml:"allowedOrigins"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCidrs"`
}

// Load reads config from path (defaults to config.yaml). A missing file is
// not an error: the service can be configured entirely from the environment.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	// Order matters: GENERATION_API_KEY wins over OPENAI_API_KEY when both are set.
	strs := []struct {
		name string
		dst  *string
	}{
		{"PORT", &cfg.Port},
		{"LOG_LEVEL", &cfg.LogLevel},
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"USER_STORE", &cfg.UserStore},
		{"REDIS_URL", &cfg.RedisURL},
		{"REDIS_ADDR", &cfg.RedisAddr},
		{"REDIS_PASSWORD", &cfg.RedisPassword},
		{"DRAFT_TTL", &cfg.DraftTTL},
		{"FIREBASE_PROJECT_ID", &cfg.FirebaseProjectID},
		{"SERVICE_ACCOUNT_KEY_JSON", &cfg.ServiceAccountKeyJSON},
		{"SERVICE_ACCOUNT_KEY_PATH", &cfg.ServiceAccountKeyPath},
		{"JWKS_URL", &cfg.JWKSURL},
		{"JWT_LEEWAY", &cfg.JWTLeeway},
		{"GENERATION_PROVIDER", &cfg.GenerationProvider},
		{"GENERATION_BASE_URL", &cfg.GenerationBaseURL},
		{"OPENAI_API_KEY", &cfg.GenerationAPIKey},
		{"GENERATION_API_KEY", &cfg.GenerationAPIKey},
		{"GENERATION_MODEL", &cfg.GenerationModel},
		{"GENERATION_TIMEOUT", &cfg.GenerationTimeout},
		{"SESSION_SECRET", &cfg.SessionSecret},
	}
	for _, e := range strs {
		if v := os.Getenv(e.name); v != "" {
			*e.dst = v
		}
	}

	ints := map[string]*int{
		"AUTH_RATE_LIMIT_PER_MINUTE":     &cfg.AuthRateLimitPerMinute,
		"GENERATE_RATE_LIMIT_PER_MINUTE": &cfg.GenerateRateLimitPerMinute,
	}
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("SESSION_COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SessionCookieSecure = b
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitList(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.UserStore) == "" {
		cfg.UserStore = "postgres"
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.AuthRateLimitPerMinute == 0 {
		cfg.AuthRateLimitPerMinute = defaultAuthRateLimitPerMinute
	}
	if cfg.GenerateRateLimitPerMinute == 0 {
		cfg.GenerateRateLimitPerMinute = defaultGenerateRateLimitPerMinute
	}
}

func validateConfig(cfg FileConfig) error {
	switch cfg.UserStore {
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required (set DATABASE_URL)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown userStore %q (want postgres or memory)", cfg.UserStore)
	}
	if strings.TrimSpace(cfg.RedisURL) == "" && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisURL or redisAddr is required (set REDIS_URL)")
	}
	if strings.TrimSpace(cfg.FirebaseProjectID) == "" &&
		strings.TrimSpace(cfg.ServiceAccountKeyJSON) == "" &&
		strings.TrimSpace(cfg.ServiceAccountKeyPath) == "" {
		return errors.New("config: firebase project is required (set FIREBASE_PROJECT_ID or SERVICE_ACCOUNT_KEY_JSON)")
	}
	if len(strings.TrimSpace(cfg.SessionSecret)) < 16 {
		return errors.New("config: sessionSecret must be at least 16 bytes (set SESSION_SECRET)")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if cfg.AuthRateLimitPerMinute < 0 || cfg.GenerateRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	for _, raw := range []struct{ name, value string }{
		{"draftTTL", cfg.DraftTTL},
		{"jwtLeeway", cfg.JWTLeeway},
		{"generationTimeout", cfg.GenerationTimeout},
	} {
		if _, err := ParseDuration(raw.name, raw.value); err != nil {
			return err
		}
	}
	return nil
}

// ParseDuration parses an optional duration string; empty means zero.
func ParseDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("config: %s must be >= 0", name)
	}
	return dur, nil
}

// DraftTTLOrDefault returns the configured draft TTL or 1800s.
func (c FileConfig) DraftTTLOrDefault() time.Duration {
	d, err := ParseDuration("draftTTL", c.DraftTTL)
	if err != nil || d == 0 {
		return defaultDraftTTL
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
