package repository

import (
	"context"

	"github.com/notifyhub/changewatch/internal/domain"
)

// WatchRepository persists watches so the registry survives restarts.
// The registry stays the source of truth while the process runs; the
// repository only receives its mutations and hands them back at start-up.
// The pgx implementation is in pg_watch_repo.go, the SQLite one in
// sqlite_watch_repo.go. Tests use a hand-written mock (mock_watch_repo.go).
type WatchRepository interface {
	// Save inserts or replaces the watch.
	Save(ctx context.Context, w domain.Watch) error
	// Delete removes the watch. Deleting a missing watch is not an error.
	Delete(ctx context.Context, id string) error
	// List returns every stored watch ordered by creation time.
	List(ctx context.Context) ([]domain.Watch, error)
}
