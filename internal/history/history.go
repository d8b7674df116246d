// Package history persists usage samples so pace calculation survives a
// restart. Storage is a local SQLite database; one row is written per
// normalized window each time a fetch succeeds, and series are rebuilt from
// the retained horizon on startup.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/usagedeck/usagedeck/internal/usage"
)

// DB wraps the SQL database connection with usage-history methods.
type DB struct {
	*sql.DB
	path string
}

// New creates a new database connection and initializes the schema.
func New(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.PingContext(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.configure(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := db.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (db *DB) createSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS usage_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		account TEXT NOT NULL DEFAULT '',
		window_label TEXT NOT NULL,
		raw_used REAL NOT NULL,
		window_limit REAL NOT NULL DEFAULT 0,
		fetched_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_samples_series
		ON usage_samples(provider, account, window_label, fetched_at);
	`
	_, err := db.ExecContext(context.Background(), query)
	return err
}

// RecordSnapshot writes one sample row per window in the snapshot. RawUsed
// is persisted, not the clamped display figure, so pace math stays honest.
func (db *DB) RecordSnapshot(ctx context.Context, snap *usage.Snapshot) error {
	if snap == nil || len(snap.Windows) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_samples (provider, account, window_label, raw_used, window_limit, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, w := range snap.Windows {
		if _, err := stmt.ExecContext(ctx,
			snap.ProviderKey, snap.AccountLabel, w.Label,
			w.RawUsed, w.Limit, snap.FetchedAt.UTC().Unix()); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// Samples returns the retained samples for one series in time order.
func (db *DB) Samples(ctx context.Context, provider, account, windowLabel string, since time.Time) ([]usage.PaceSample, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT raw_used, fetched_at FROM usage_samples
		WHERE provider = ? AND account = ? AND window_label = ? AND fetched_at >= ?
		ORDER BY fetched_at ASC`,
		provider, account, windowLabel, since.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []usage.PaceSample
	for rows.Next() {
		var used float64
		var fetchedAt int64
		if err := rows.Scan(&used, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, usage.PaceSample{
			At:   time.Unix(fetchedAt, 0).UTC(),
			Used: used,
		})
	}
	return samples, rows.Err()
}

// LoadSeries rebuilds a pace series from persisted samples within the
// horizon. Rows with duplicate timestamps collapse to the first seen; the
// series rejects non-increasing timestamps by contract.
func (db *DB) LoadSeries(ctx context.Context, provider, account, windowLabel string, horizon time.Duration, now time.Time) (*usage.PaceSeries, error) {
	if horizon <= 0 {
		horizon = usage.DefaultPaceHorizon
	}
	samples, err := db.Samples(ctx, provider, account, windowLabel, now.Add(-horizon))
	if err != nil {
		return nil, err
	}

	series := usage.NewPaceSeries(horizon)
	for _, sample := range samples {
		if err := series.Add(sample); err != nil {
			continue
		}
	}
	return series, nil
}

// Prune removes samples fetched before the cutoff and reports how many rows
// were deleted.
func (db *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM usage_samples WHERE fetched_at < ?`, before.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune samples: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection gracefully.
func (db *DB) Close() error {
	_, _ = db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	return db.DB.Close()
}
