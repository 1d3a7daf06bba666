package credstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemory(t *testing.T) (*Memory, *password.Argon2) {
	t.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	require.NoError(t, err)
	return NewMemory(h), h
}

func TestMemory_CreateAndLookup(t *testing.T) {
	m, h := newMemory(t)
	ctx := context.Background()

	hash, err := h.Hash("correct-horse")
	require.NoError(t, err)
	u, err := m.CreateUser(ctx, "alice@example.com", hash, "free")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	byID, err := m.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, byID)

	byEmail, err := m.GetUserByEmail(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	ok, err := m.VerifyPassword(ctx, u, "correct-horse")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.VerifyPassword(ctx, u, "wrong-horse")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_Errors(t *testing.T) {
	m, _ := newMemory(t)
	ctx := context.Background()

	_, err := m.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, authgate.ErrUserNotFound)
	_, err = m.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, authgate.ErrUserNotFound)
	_, err = m.UpdateUser(ctx, "missing", authgate.UserUpdate{})
	assert.ErrorIs(t, err, authgate.ErrUserNotFound)

	_, err = m.CreateUser(ctx, "a@example.com", "h", "free")
	require.NoError(t, err)
	_, err = m.CreateUser(ctx, "A@example.com", "h", "free")
	assert.ErrorIs(t, err, authgate.ErrUserExists)
}

func TestMemory_UpdateUser(t *testing.T) {
	m, _ := newMemory(t)
	ctx := context.Background()

	a, _ := m.CreateUser(ctx, "a@example.com", "h", "free")
	b, _ := m.CreateUser(ctx, "b@example.com", "h", "free")

	plan, key, credits := "pro", "ak_x", int64(50)
	got, err := m.UpdateUser(ctx, a.ID, authgate.UserUpdate{Plan: &plan, APIKey: &key, Credits: &credits})
	require.NoError(t, err)
	assert.Equal(t, "pro", got.Plan)
	assert.Equal(t, "ak_x", got.APIKey)
	assert.Equal(t, int64(50), got.Credits)
	assert.Equal(t, "h", got.HashedPassword)

	taken := "b@example.com"
	_, err = m.UpdateUser(ctx, a.ID, authgate.UserUpdate{Email: &taken})
	assert.ErrorIs(t, err, authgate.ErrUserExists)

	moved := "a2@example.com"
	_, err = m.UpdateUser(ctx, a.ID, authgate.UserUpdate{Email: &moved})
	require.NoError(t, err)
	_, err = m.GetUserByEmail(ctx, "a@example.com")
	assert.ErrorIs(t, err, authgate.ErrUserNotFound)
	got, err = m.GetUserByEmail(ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = m.GetUserByID(ctx, b.ID)
	require.NoError(t, err)
}

func TestMemory_ConcurrentCreateSameEmail(t *testing.T) {
	m, _ := newMemory(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreateUser(context.Background(), "race@example.com", "h", "free")
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, authgate.ErrUserExists) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestMemory_WithEngine(t *testing.T) {
	m, h := newMemory(t)
	cfg := authgate.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	engine, err := authgate.New().WithConfig(cfg).WithPasswordHasher(h).WithCredentialStore(m).Build()
	require.NoError(t, err)

	ctx := context.Background()
	reg, err := engine.Register(ctx, authgate.RegisterRequest{Email: "dave@example.com", Password: "password-123"})
	require.NoError(t, err)

	login, err := engine.Login(ctx, "dave@example.com", "password-123")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)
	assert.Equal(t, reg.APIKey, login.User.APIKey)
}
