package store

import (
	"context"
	"errors"

	"coverletterai/pkg/domain"
)

// ErrDuplicateUser is returned by Create when the email is already registered.
var ErrDuplicateUser = errors.New("user already exists")

// UserDirectory persists registered users. There are no update or delete
// operations: a record is immutable once created.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (domain.User, bool, error)
	FindByToken(ctx context.Context, token string) (domain.User, bool, error)
	// Create assigns a fresh id and access token. The email lookup that
	// guards against duplicates is not atomic with the insert.
	Create(ctx context.Context, u domain.NewUser) (domain.User, error)
	Close() error
}
