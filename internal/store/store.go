// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/voicelab/internal/domain"
)

// Repository defines the interface for persisting players and their progress.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetProgress returns the raw progress blob for a user, or nil if none was saved.
	GetProgress(ctx context.Context, userID string) ([]byte, error)

	// SaveProgress stores the raw progress blob for a user.
	SaveProgress(ctx context.Context, userID string, record []byte) error

	// DeleteProgress removes a user's progress blob.
	DeleteProgress(ctx context.Context, userID string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
