package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	pkgch "MarketPulse/pkg/clickhouse"
	applogger "MarketPulse/pkg/logger"
)

// ClickHouseSampleStore implements SampleStore on a ReplacingMergeTree table.
type ClickHouseSampleStore struct {
	client *pkgch.Client
	db     *sql.DB
	name   string
	table  string
	l      *applogger.Logger
}

func NewClickHouseSampleStore(client *pkgch.Client, table string, l *applogger.Logger) *ClickHouseSampleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseSampleStore{
		client: client,
		db:     client.DB(),
		name:   table,
		table:  client.Database() + "." + table,
		l:      l,
	}
}

// Init creates the database and table when missing.
func (s *ClickHouseSampleStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, pkgch.SampleSchema(s.client.Database(), s.name))
}

func (s *ClickHouseSampleStore) Store(ctx context.Context, smp models.Sample) error {
	return s.StoreBatch(ctx, []models.Sample{smp})
}

func (s *ClickHouseSampleStore) StoreBatch(ctx context.Context, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	start := time.Now()
	head := fmt.Sprintf("INSERT INTO %s (asset, ts, price, volume)", s.table)
	err := insertSamples(ctx, s.db, head, samples, func(smp models.Sample) []any {
		return []any{smp.AssetID, smp.Timestamp.UTC(), smp.Price, smp.Volume}
	})
	if err != nil {
		s.l.Error("clickhouse insert samples",
			applogger.String("table", s.table),
			applogger.Int("rows", len(samples)),
			applogger.Error(err))
		return err
	}
	s.l.Debug("clickhouse insert samples",
		applogger.Int("rows", len(samples)),
		applogger.Duration("took_ms", time.Since(start)))
	return nil
}

func (s *ClickHouseSampleStore) LoadRecent(ctx context.Context, asset string, n int) ([]models.Sample, error) {
	if n <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf("SELECT asset, ts, price, volume FROM %s FINAL WHERE asset = ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, asset, n)
	if err != nil {
		return nil, fmt.Errorf("load recent %s: %w", asset, err)
	}
	defer rows.Close()

	out := make([]models.Sample, 0, n)
	for rows.Next() {
		var smp models.Sample
		if err := rows.Scan(&smp.AssetID, &smp.Timestamp, &smp.Price, &smp.Volume); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.Timestamp = smp.Timestamp.UTC()
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (s *ClickHouseSampleStore) Assets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT asset FROM %s ORDER BY asset", s.table))
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return scanAssets(rows)
}

func (s *ClickHouseSampleStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op; the pool belongs to the client.
func (s *ClickHouseSampleStore) Close() error { return nil }

var _ domrepo.SampleStore = (*ClickHouseSampleStore)(nil)
