package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/changewatch/internal/domain"
)

type pgWatchRepository struct {
	pool *pgxpool.Pool
}

// NewPgWatchRepository returns a WatchRepository backed by PostgreSQL.
func NewPgWatchRepository(pool *pgxpool.Pool) WatchRepository {
	return &pgWatchRepository{pool: pool}
}

func (r *pgWatchRepository) Save(ctx context.Context, w domain.Watch) error {
	tags := w.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO watches
			(id, url, title, tags, proxy, paused, muted, check_interval_seconds,
			 last_checked, last_changed, last_error, checksum, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			tags = EXCLUDED.tags,
			proxy = EXCLUDED.proxy,
			paused = EXCLUDED.paused,
			muted = EXCLUDED.muted,
			check_interval_seconds = EXCLUDED.check_interval_seconds,
			last_checked = EXCLUDED.last_checked,
			last_changed = EXCLUDED.last_changed,
			last_error = EXCLUDED.last_error,
			checksum = EXCLUDED.checksum,
			updated_at = EXCLUDED.updated_at`,
		w.ID, w.URL, w.Title, tags, w.Proxy, w.Paused, w.Muted, w.CheckIntervalSeconds,
		nullTime(w.LastChecked), nullTime(w.LastChanged), w.LastError, w.Checksum,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert watch: %w", err)
	}
	return nil
}

func (r *pgWatchRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM watches WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete watch: %w", err)
	}
	return nil
}

func (r *pgWatchRepository) List(ctx context.Context) ([]domain.Watch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, url, title, tags, proxy, paused, muted, check_interval_seconds,
		       last_checked, last_changed, last_error, checksum, created_at, updated_at
		FROM watches
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list watches: %w", err)
	}
	defer rows.Close()

	var watches []domain.Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

func scanWatch(row pgx.Row) (domain.Watch, error) {
	var (
		w                        domain.Watch
		lastChecked, lastChanged *time.Time
	)
	err := row.Scan(
		&w.ID, &w.URL, &w.Title, &w.Tags, &w.Proxy, &w.Paused, &w.Muted, &w.CheckIntervalSeconds,
		&lastChecked, &lastChanged, &w.LastError, &w.Checksum, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return domain.Watch{}, fmt.Errorf("scan watch: %w", err)
	}
	if lastChecked != nil {
		w.LastChecked = lastChecked.UTC()
	}
	if lastChanged != nil {
		w.LastChanged = lastChanged.UTC()
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	if len(w.Tags) == 0 {
		w.Tags = nil
	}
	return w, nil
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
