package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"coverletterai/internal/idtoken"
	"coverletterai/internal/metrics"
	"coverletterai/pkg/ai"
	"coverletterai/pkg/drafts"
	"coverletterai/pkg/pdftext"
	"coverletterai/pkg/store"
)

// IdentityVerifier checks identity-provider assertions.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (idtoken.Identity, error)
}

// TextExtractor reads text out of an uploaded PDF.
type TextExtractor interface {
	ExtractPDF(ctx context.Context, r io.Reader) (string, error)
}

// Config holds runtime configuration for the core application.
// Any collaborator left nil is built from the connection settings.
type Config struct {
	DatabaseURL   string
	UserStore     string // "postgres" or "memory"
	RedisURL      string
	RedisAddr     string
	RedisPassword string
	DraftTTL      time.Duration

	FirebaseProjectID     string
	ServiceAccountKeyJSON string
	ServiceAccountKeyPath string
	JWKSURL               string
	JWTLeeway             time.Duration

	Generation ai.GeneratorConfig

	SessionSecret string

	Redis     *redis.Client
	Users     store.UserDirectory
	Drafts    drafts.Store
	Verifier  IdentityVerifier
	Generator ai.TextGenerator
	Extractor TextExtractor
	Metrics   metrics.Recorder
}

// App is the application context: every long-lived client the request
// handlers need, created once in New and released in Close.
type App struct {
	redis     *redis.Client
	ownsRedis bool
	users     store.UserDirectory
	drafts    drafts.Store
	verifier  IdentityVerifier
	generator ai.TextGenerator
	extractor TextExtractor
	metrics   metrics.Recorder
	sessions  *SessionCodec
	now       func() time.Time
}

// New builds the application. On error every client opened so far is closed.
func New(ctx context.Context, cfg Config) (*App, error) {
	a := &App{
		redis:     cfg.Redis,
		users:     cfg.Users,
		drafts:    cfg.Drafts,
		verifier:  cfg.Verifier,
		generator: cfg.Generator,
		extractor: cfg.Extractor,
		metrics:   cfg.Metrics,
		now:       time.Now,
	}
	if err := a.init(ctx, cfg); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, cfg Config) error {
	var err error
	if a.metrics == nil {
		a.metrics = metrics.Nop{}
	}
	a.sessions, err = NewSessionCodec([]byte(cfg.SessionSecret))
	if err != nil {
		return err
	}

	if a.redis == nil && (a.drafts == nil || needsRedisURL(cfg)) {
		a.redis, err = NewRedisClient(cfg.RedisURL, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		a.ownsRedis = true
	}
	if a.drafts == nil {
		a.drafts = drafts.NewRedisStore(a.redis, cfg.DraftTTL)
	}

	if a.users == nil {
		switch strings.ToLower(strings.TrimSpace(cfg.UserStore)) {
		case "memory":
			a.users = store.NewMemoryStore()
		case "", "postgres":
			if cfg.DatabaseURL == "" {
				return errors.New("database URL required")
			}
			gormStore, err := store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("init postgres store: %w", err)
			}
			a.users = gormStore
		default:
			return fmt.Errorf("unknown user store %q", cfg.UserStore)
		}
	}

	if a.verifier == nil {
		projectID, err := idtoken.ResolveProjectID(cfg.FirebaseProjectID, cfg.ServiceAccountKeyJSON, cfg.ServiceAccountKeyPath)
		if err != nil {
			return err
		}
		verifier, err := idtoken.NewVerifier(ctx, idtoken.Config{
			ProjectID: projectID,
			JWKSURL:   cfg.JWKSURL,
			Leeway:    cfg.JWTLeeway,
		})
		if err != nil {
			return fmt.Errorf("init id token verifier: %w", err)
		}
		a.verifier = verifier
	}

	if a.generator == nil {
		generator, err := ai.NewTextGenerator(cfg.Generation)
		if err != nil {
			return fmt.Errorf("init generator: %w", err)
		}
		a.generator = generator
	}

	if a.extractor == nil {
		a.extractor = pdftext.New()
	}
	return nil
}

// Redis-backed rate limiting needs a client even when drafts are injected.
func needsRedisURL(cfg Config) bool {
	return strings.TrimSpace(cfg.RedisURL) != "" || strings.TrimSpace(cfg.RedisAddr) != ""
}

// NewRedisClient builds a client from a redis:// URL, or from addr/password
// when no URL is given.
func NewRedisClient(url, addr, password string) (*redis.Client, error) {
	if url = strings.TrimSpace(url); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	if addr = strings.TrimSpace(addr); addr == "" {
		return nil, errors.New("redis url or addr required")
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password}), nil
}

// Redis returns the shared client, nil when none is configured.
func (a *App) Redis() *redis.Client { return a.redis }

// Sessions returns the session cookie codec.
func (a *App) Sessions() *SessionCodec { return a.sessions }

// Ping checks that the draft store's Redis is reachable.
func (a *App) Ping(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.redis.Ping(ctx).Err()
}

// Close releases the user directory and, when owned, the Redis client.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.users != nil {
		if err := a.users.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close user store: %w", err))
		}
	}
	if a.ownsRedis && a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
