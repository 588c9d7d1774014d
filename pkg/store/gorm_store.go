package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"coverletterai/pkg/domain"
)

const migrateLockID int64 = 48151623

// GormStore implements UserDirectory using GORM + Postgres.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, now: time.Now}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// FindByEmail looks up a user by email. Emails are not unique in storage;
// the oldest record wins.
func (s *GormStore) FindByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	return s.first(ctx, "email = ?", normalizeEmail(email))
}

// FindByToken resolves an access token to its user.
func (s *GormStore) FindByToken(ctx context.Context, token string) (domain.User, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, false, nil
	}
	return s.first(ctx, "token = ?", token)
}

func (s *GormStore) first(ctx context.Context, query string, arg string) (domain.User, bool, error) {
	var model UserModel
	err := s.db.WithContext(ctx).Where(query, arg).Order("date_created ASC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// Create registers a new user with a fresh id and access token.
func (s *GormStore) Create(ctx context.Context, u domain.NewUser) (domain.User, error) {
	if _, exists, err := s.FindByEmail(ctx, u.Email); err != nil {
		return domain.User{}, fmt.Errorf("check existing user: %w", err)
	} else if exists {
		return domain.User{}, ErrDuplicateUser
	}
	user := newUserRecord(u, s.now())
	model := userToModel(user)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.User{}, fmt.Errorf("create user: identifier collision: %w", err)
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newUserRecord(u domain.NewUser, now time.Time) domain.User {
	created := now.UTC()
	return domain.User{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(u.Email),
		Token:     uuid.NewString(),
		Verified:  u.Verified,
		GoogleID:  strings.TrimSpace(u.GoogleID),
		Name:      strings.TrimSpace(u.Name),
		Claims:    u.Claims,
		LastLogin: &created,
		CreatedAt: created,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:             u.ID,
		Email:          u.Email,
		Verified:       u.Verified,
		Token:          u.Token,
		GoogleID:       u.GoogleID,
		Name:           u.Name,
		ProviderClaims: u.Claims,
		LastLogin:      u.LastLogin,
		CreatedAt:      u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		Email:     m.Email,
		Token:     m.Token,
		Verified:  m.Verified,
		GoogleID:  m.GoogleID,
		Name:      m.Name,
		Claims:    m.ProviderClaims,
		LastLogin: m.LastLogin,
		CreatedAt: m.CreatedAt,
	}
}
