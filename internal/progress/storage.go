package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/voicelab/internal/shared"
	"github.com/ashureev/voicelab/internal/store"
)

// Storage persists a single progress blob. Load returns nil, nil when nothing
// has been saved yet.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
}

// RepositoryStorage stores one user's progress in the repository.
type RepositoryStorage struct {
	repo       store.Repository
	userID     string
	maxRetries int
	baseDelay  time.Duration
}

// NewRepositoryStorage binds a repository to a user id.
func NewRepositoryStorage(repo store.Repository, userID string) *RepositoryStorage {
	return &RepositoryStorage{
		repo:       repo,
		userID:     userID,
		maxRetries: 3,
		baseDelay:  50 * time.Millisecond,
	}
}

// Load returns the user's saved blob.
func (s *RepositoryStorage) Load(ctx context.Context) ([]byte, error) {
	return s.repo.GetProgress(ctx, s.userID)
}

// Save writes the blob, retrying with exponential backoff on SQLite lock contention.
func (s *RepositoryStorage) Save(ctx context.Context, blob []byte) error {
	var err error
	for i := 0; i < s.maxRetries; i++ {
		err = s.repo.SaveProgress(ctx, s.userID, blob)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == s.maxRetries-1 {
			break
		}
		delay := s.baseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
		slog.Debug("Database locked during progress save, retrying",
			"user_id", s.userID,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("save progress for %s: %w", s.userID, err)
}

// MemoryStorage keeps the blob in memory. Used when no repository is configured.
type MemoryStorage struct {
	mu   sync.Mutex
	blob []byte
}

// NewMemoryStorage returns storage pre-seeded with blob (which may be nil).
func NewMemoryStorage(blob []byte) *MemoryStorage {
	return &MemoryStorage{blob: blob}
}

// Load returns a copy of the stored blob.
func (m *MemoryStorage) Load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blob == nil {
		return nil, nil
	}
	return append([]byte(nil), m.blob...), nil
}

// Save replaces the stored blob.
func (m *MemoryStorage) Save(_ context.Context, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = append([]byte(nil), blob...)
	return nil
}
