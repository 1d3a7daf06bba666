package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// State is the token pair a client holds between requests.
type State struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Empty reports whether s carries no refresh token.
func (s State) Empty() bool {
	return s.RefreshToken == ""
}

// Session persists the current State. Implementations must be safe for
// concurrent use.
type Session interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
	Clear(ctx context.Context) error
}

// MemorySession keeps State in process memory.
type MemorySession struct {
	mu    sync.RWMutex
	state State
}

// NewMemorySession returns a MemorySession seeded with initial.
func NewMemorySession(initial State) *MemorySession {
	return &MemorySession{state: initial}
}

// Load returns the held state.
func (s *MemorySession) Load(context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

// Save replaces the held state.
func (s *MemorySession) Save(_ context.Context, state State) error {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return nil
}

// Clear drops the held state.
func (s *MemorySession) Clear(context.Context) error {
	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()
	return nil
}

const (
	boltDirPerm     = fs.FileMode(0o700)
	boltFilePerm    = fs.FileMode(0o600)
	boltOpenTimeout = 5 * time.Second
)

var (
	sessionBucket = []byte("session")
	stateKey      = []byte("state")
)

// BoltSession keeps State in a bbolt file so a CLI survives restarts.
type BoltSession struct {
	db *bolt.DB
}

// OpenBoltSession opens or creates the session database at path.
func OpenBoltSession(path string) (*BoltSession, error) {
	if err := os.MkdirAll(filepath.Dir(path), boltDirPerm); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	db, err := bolt.Open(path, boltFilePerm, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing session db: %w", err)
	}

	return &BoltSession{db: db}, nil
}

// Close releases the database file.
func (s *BoltSession) Close() error {
	return s.db.Close()
}

// Load reads the persisted state. A missing record yields an empty State.
func (s *BoltSession) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	var state State
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionBucket).Get(stateKey)
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &state)
	})
	if err != nil {
		return State{}, fmt.Errorf("loading session: %w", err)
	}
	return state, nil
}

// Save persists state in a single write transaction.
func (s *BoltSession) Save(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Put(stateKey, data)
	})
}

// Clear deletes the persisted state.
func (s *BoltSession) Clear(context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete(stateKey)
	})
}
