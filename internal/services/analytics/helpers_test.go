package analytics

import (
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/services/series"
)

var base = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

// feed records prices and volumes for asset at a fixed step starting at base.
func feed(t *testing.T, r *series.Registry, asset string, step time.Duration, prices, vols []float64) {
	t.Helper()
	if len(prices) != len(vols) {
		t.Fatalf("prices and volumes differ in length: %d vs %d", len(prices), len(vols))
	}
	for i := range prices {
		s := models.Sample{AssetID: asset, Timestamp: base.Add(time.Duration(i) * step), Price: prices[i], Volume: vols[i]}
		if err := r.Record(s); err != nil {
			t.Fatalf("record %s[%d]: %v", asset, i, err)
		}
	}
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// pricesFromReturns compounds returns starting at 100.
func pricesFromReturns(returns []float64) []float64 {
	out := make([]float64, len(returns)+1)
	out[0] = 100
	for i, r := range returns {
		out[i+1] = out[i] * (1 + r)
	}
	return out
}

func kinds(sigs []models.Signal) map[models.SignalKind]int {
	m := make(map[models.SignalKind]int)
	for _, s := range sigs {
		m[s.Kind]++
	}
	return m
}
