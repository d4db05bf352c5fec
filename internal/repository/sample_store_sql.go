package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"MarketPulse/internal/domain/models"
)

// insertChunk bounds the rows per multi-row INSERT.
const insertChunk = 2000

// insertSamples writes samples with multi-row VALUES statements. args
// renders one row; every row must produce the same number of placeholders.
func insertSamples(ctx context.Context, db *sql.DB, head string, samples []models.Sample, args func(models.Sample) []any) error {
	for start := 0; start < len(samples); start += insertChunk {
		end := min(start+insertChunk, len(samples))

		values := make([]string, 0, end-start)
		params := make([]any, 0, (end-start)*4)
		for _, s := range samples[start:end] {
			if err := s.Validate(); err != nil {
				return err
			}
			row := args(s)
			values = append(values, "("+strings.TrimSuffix(strings.Repeat("?, ", len(row)), ", ")+")")
			params = append(params, row...)
		}
		q := head + " VALUES " + strings.Join(values, ", ")
		if _, err := db.ExecContext(ctx, q, params...); err != nil {
			return fmt.Errorf("insert samples: %w", err)
		}
	}
	return nil
}

// reverse flips newest-first query results into buffer order.
func reverse(samples []models.Sample) {
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
}

func scanAssets(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
