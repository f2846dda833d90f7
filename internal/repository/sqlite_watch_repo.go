package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/notifyhub/changewatch/internal/domain"
)

type sqliteWatchRepository struct {
	db *sql.DB
}

// NewSqliteWatchRepository returns a WatchRepository backed by SQLite.
// The schema is created by db.OpenSQLite.
func NewSqliteWatchRepository(db *sql.DB) WatchRepository {
	return &sqliteWatchRepository{db: db}
}

func (r *sqliteWatchRepository) Save(ctx context.Context, w domain.Watch) error {
	tags, err := json.Marshal(w.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO watches
			(id, url, title, tags, proxy, paused, muted, check_interval_seconds,
			 last_checked, last_changed, last_error, checksum, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			tags = excluded.tags,
			proxy = excluded.proxy,
			paused = excluded.paused,
			muted = excluded.muted,
			check_interval_seconds = excluded.check_interval_seconds,
			last_checked = excluded.last_checked,
			last_changed = excluded.last_changed,
			last_error = excluded.last_error,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at`,
		w.ID, w.URL, w.Title, string(tags), w.Proxy, w.Paused, w.Muted, w.CheckIntervalSeconds,
		unixMilli(w.LastChecked), unixMilli(w.LastChanged), w.LastError, w.Checksum,
		w.CreatedAt.UnixMilli(), w.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert watch: %w", err)
	}
	return nil
}

func (r *sqliteWatchRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM watches WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete watch: %w", err)
	}
	return nil
}

func (r *sqliteWatchRepository) List(ctx context.Context) ([]domain.Watch, error) {
	rows, err := r.db.QueryContext(ctx, `
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
		var (
			w                        domain.Watch
			tags                     string
			lastChecked, lastChanged sql.NullInt64
			created, updated         int64
		)
		if err := rows.Scan(
			&w.ID, &w.URL, &w.Title, &tags, &w.Proxy, &w.Paused, &w.Muted, &w.CheckIntervalSeconds,
			&lastChecked, &lastChanged, &w.LastError, &w.Checksum, &created, &updated,
		); err != nil {
			return nil, fmt.Errorf("scan watch: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &w.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", w.ID, err)
		}
		if lastChecked.Valid {
			w.LastChecked = time.UnixMilli(lastChecked.Int64).UTC()
		}
		if lastChanged.Valid {
			w.LastChanged = time.UnixMilli(lastChanged.Int64).UTC()
		}
		w.CreatedAt = time.UnixMilli(created).UTC()
		w.UpdatedAt = time.UnixMilli(updated).UTC()
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

func unixMilli(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
