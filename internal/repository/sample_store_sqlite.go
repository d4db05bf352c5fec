package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS samples (
	asset  TEXT    NOT NULL,
	ts     INTEGER NOT NULL,
	price  REAL    NOT NULL,
	volume REAL    NOT NULL,
	PRIMARY KEY (asset, ts)
);`

// SQLiteSampleStore implements SampleStore in a single SQLite file.
// Timestamps are stored as unix nanoseconds.
type SQLiteSampleStore struct {
	db *sql.DB
}

// OpenSQLiteSampleStore opens (creating when needed) the database at path.
func OpenSQLiteSampleStore(ctx context.Context, path string) (*SQLiteSampleStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// one writer; avoids SQLITE_BUSY under concurrent inserts
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode = WAL;", "PRAGMA synchronous = NORMAL;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteSampleStore{db: db}, nil
}

func (s *SQLiteSampleStore) Store(ctx context.Context, smp models.Sample) error {
	return s.StoreBatch(ctx, []models.Sample{smp})
}

// StoreBatch ignores rows whose (asset, ts) already exists.
func (s *SQLiteSampleStore) StoreBatch(ctx context.Context, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	return insertSamples(ctx, s.db, "INSERT OR IGNORE INTO samples (asset, ts, price, volume)", samples,
		func(smp models.Sample) []any {
			return []any{smp.AssetID, smp.Timestamp.UnixNano(), smp.Price, smp.Volume}
		})
}

func (s *SQLiteSampleStore) LoadRecent(ctx context.Context, asset string, n int) ([]models.Sample, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT asset, ts, price, volume FROM samples WHERE asset = ? ORDER BY ts DESC LIMIT ?", asset, n)
	if err != nil {
		return nil, fmt.Errorf("load recent %s: %w", asset, err)
	}
	defer rows.Close()

	out := make([]models.Sample, 0, n)
	for rows.Next() {
		var smp models.Sample
		var ts int64
		if err := rows.Scan(&smp.AssetID, &ts, &smp.Price, &smp.Volume); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (s *SQLiteSampleStore) Assets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT asset FROM samples ORDER BY asset")
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return scanAssets(rows)
}

func (s *SQLiteSampleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteSampleStore) Close() error {
	return s.db.Close()
}

var _ domrepo.SampleStore = (*SQLiteSampleStore)(nil)
