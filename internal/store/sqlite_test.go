package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/voicelab/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "voicelab.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUserRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetUser(ctx, "anon_missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil user for missing id, got %v err=%v", got, err)
	}

	now := time.Unix(1_700_000_000, 0)
	if err := repo.UpsertUser(ctx, &domain.User{
		UserID: "anon_1", Username: "anon-1", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	later := now.Add(time.Hour)
	if err := repo.UpdateLastSeen(ctx, "anon_1", later); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}

	got, err = repo.GetUser(ctx, "anon_1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil || got.Username != "anon-1" {
		t.Fatalf("unexpected user %+v", got)
	}
	if !got.LastSeenAt.Equal(later) {
		t.Fatalf("expected last seen %v, got %v", later, got.LastSeenAt)
	}
}

func TestProgressRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	blob, err := repo.GetProgress(ctx, "anon_1")
	if err != nil || blob != nil {
		t.Fatalf("expected no progress, got %q err=%v", blob, err)
	}

	if err := repo.SaveProgress(ctx, "anon_1", []byte(`{"completedLevels":[0],"unlockedLevels":[0,1]}`)); err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}
	if err := repo.SaveProgress(ctx, "anon_1", []byte(`{"completedLevels":[0,1],"unlockedLevels":[0,1,2]}`)); err != nil {
		t.Fatalf("SaveProgress overwrite failed: %v", err)
	}

	blob, err = repo.GetProgress(ctx, "anon_1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if string(blob) != `{"completedLevels":[0,1],"unlockedLevels":[0,1,2]}` {
		t.Fatalf("unexpected blob %s", blob)
	}

	if err := repo.DeleteProgress(ctx, "anon_1"); err != nil {
		t.Fatalf("DeleteProgress failed: %v", err)
	}
	blob, err = repo.GetProgress(ctx, "anon_1")
	if err != nil || blob != nil {
		t.Fatalf("expected progress deleted, got %q err=%v", blob, err)
	}
}
