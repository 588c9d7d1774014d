package store

import (
	"context"
	"sync"
	"time"

	"coverletterai/pkg/domain"
)

// MemoryStore keeps users in-process. Used for local runs without a
// database and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User // key: user ID
	email map[string]string      // email -> user ID
	token map[string]string      // token -> user ID
	now   func() time.Time
}

// NewMemoryStore initializes an empty in-memory directory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		email: make(map[string]string),
		token: make(map[string]string),
		now:   time.Now,
	}
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[normalizeEmail(email)]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

func (m *MemoryStore) FindByToken(_ context.Context, token string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.token[token]
	if !ok || token == "" {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

// Create mirrors GormStore: the existence check and the insert happen
// under separate lock acquisitions.
func (m *MemoryStore) Create(ctx context.Context, u domain.NewUser) (domain.User, error) {
	if _, exists, _ := m.FindByEmail(ctx, u.Email); exists {
		return domain.User{}, ErrDuplicateUser
	}
	user := newUserRecord(u, m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	if _, taken := m.email[user.Email]; !taken {
		m.email[user.Email] = user.ID
	}
	m.token[user.Token] = user.ID
	return user, nil
}

// Len reports how many users are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

func (m *MemoryStore) Close() error { return nil }
