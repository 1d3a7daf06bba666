package credstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/password"
	"github.com/google/uuid"
)

// Memory is a process-local CredentialStore.
type Memory struct {
	mu      sync.RWMutex
	hasher  password.Hasher
	now     func() time.Time
	byID    map[string]authgate.User
	byEmail map[string]string
}

var _ authgate.CredentialStore = (*Memory)(nil)

// NewMemory returns an empty store that verifies passwords with hasher.
func NewMemory(hasher password.Hasher) *Memory {
	return &Memory{
		hasher:  hasher,
		now:     time.Now,
		byID:    make(map[string]authgate.User),
		byEmail: make(map[string]string),
	}
}

func (m *Memory) GetUserByID(_ context.Context, id string) (authgate.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return authgate.User{}, authgate.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (authgate.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return authgate.User{}, authgate.ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *Memory) VerifyPassword(_ context.Context, user authgate.User, pw string) (bool, error) {
	return m.hasher.Verify(pw, user.HashedPassword)
}

func (m *Memory) CreateUser(_ context.Context, email, passwordHash, plan string) (authgate.User, error) {
	key := strings.ToLower(email)
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[key]; ok {
		return authgate.User{}, authgate.ErrUserExists
	}
	u := authgate.User{
		ID:             uuid.NewString(),
		Email:          email,
		HashedPassword: passwordHash,
		Plan:           plan,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.byID[u.ID] = u
	m.byEmail[key] = u.ID
	return u, nil
}

func (m *Memory) UpdateUser(_ context.Context, id string, upd authgate.UserUpdate) (authgate.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return authgate.User{}, authgate.ErrUserNotFound
	}

	if upd.Email != nil {
		key := strings.ToLower(*upd.Email)
		if owner, taken := m.byEmail[key]; taken && owner != id {
			return authgate.User{}, authgate.ErrUserExists
		}
		delete(m.byEmail, strings.ToLower(u.Email))
		m.byEmail[key] = id
		u.Email = *upd.Email
	}
	if upd.HashedPassword != nil {
		u.HashedPassword = *upd.HashedPassword
	}
	if upd.Plan != nil {
		u.Plan = *upd.Plan
	}
	if upd.Credits != nil {
		u.Credits = *upd.Credits
	}
	if upd.APIKey != nil {
		u.APIKey = *upd.APIKey
	}
	u.UpdatedAt = m.now().UTC()

	m.byID[id] = u
	return u, nil
}
