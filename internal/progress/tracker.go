// Package progress tracks which challenge levels a player has completed and
// unlocked, and persists every change.
package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ashureev/voicelab/internal/domain"
)

// Tracker is the progress store for one player.
//
// CompleteLevel always succeeds: completion is asserted by the voice agent
// and trusted without server-side verification.
type Tracker struct {
	mu      sync.Mutex
	record  domain.ProgressRecord
	maxID   domain.LevelID
	storage Storage
	logger  *slog.Logger
}

// NewTracker restores progress from storage. Read or parse failures fall back
// to the initial record and are logged, never returned.
func NewTracker(ctx context.Context, storage Storage, maxID domain.LevelID, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		record:  domain.NewProgressRecord(),
		maxID:   maxID,
		storage: storage,
		logger:  logger,
	}
	t.restore(ctx)
	return t
}

func (t *Tracker) restore(ctx context.Context) {
	if t.storage == nil {
		return
	}
	blob, err := t.storage.Load(ctx)
	if err != nil {
		t.logger.Error("Failed to load progress, using defaults", "error", err)
		return
	}
	if len(blob) == 0 {
		return
	}
	var record domain.ProgressRecord
	if err := json.Unmarshal(blob, &record); err != nil {
		t.logger.Error("Failed to parse saved progress, using defaults", "error", err)
		return
	}
	record.Normalize(t.maxID)
	t.record = record
}

// IsCompleted reports whether the level has been completed.
func (t *Tracker) IsCompleted(id domain.LevelID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.IsCompleted(id)
}

// IsUnlocked reports whether the level can be played.
func (t *Tracker) IsUnlocked(id domain.LevelID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.IsUnlocked(id)
}

// CompleteLevel marks id completed and unlocks the next level if there is one.
func (t *Tracker) CompleteLevel(ctx context.Context, id domain.LevelID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.record.Completed[id] = struct{}{}
	if id < t.maxID {
		t.record.Unlocked[id+1] = struct{}{}
	}
	t.logger.Info("Level completed", "level", int(id))
	t.persistLocked(ctx)
	return true
}

// Reset restores the initial record.
func (t *Tracker) Reset(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.record = domain.NewProgressRecord()
	t.logger.Info("Progress reset")
	t.persistLocked(ctx)
}

// Snapshot returns a copy of the current record.
func (t *Tracker) Snapshot() domain.ProgressRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.Clone()
}

// persistLocked writes the record while t.mu is held so saves land in order.
func (t *Tracker) persistLocked(ctx context.Context) {
	if t.storage == nil {
		return
	}
	blob, err := json.Marshal(t.record)
	if err != nil {
		t.logger.Error("Failed to encode progress", "error", err)
		return
	}
	if err := t.storage.Save(ctx, blob); err != nil {
		t.logger.Error("Failed to save progress", "error", err)
	}
}
