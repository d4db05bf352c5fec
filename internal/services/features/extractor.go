package features

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"MarketPulse/internal/domain/models"
)

// MeanStd returns the mean and sample standard deviation (n-1) of xs.
// Fewer than two values yield a zero deviation.
func MeanStd(xs []float64) (mean, std float64) {
	n := len(xs)
	if n == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(n)
	if n < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(n-1))
}

// Mean of xs, zero when empty.
func Mean(xs []float64) float64 {
	m, _ := MeanStd(xs)
	return m
}

// SimpleReturns computes r_t = P_t / P_{t-1} - 1.
// It returns a slice of length len(prices)-1, or nil if insufficient data.
func SimpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		cur := prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, cur/prev-1)
	}
	return out
}

// Pearson computes the correlation coefficient of two equal-length series.
// Zero variance on either side is reported as ErrDegenerateDistribution.
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("pearson: length mismatch %d != %d", len(x), len(y))
	}
	if len(x) < 2 {
		return 0, fmt.Errorf("pearson: %w", models.ErrInsufficientOverlap)
	}
	mx, my := Mean(x), Mean(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, fmt.Errorf("pearson: %w", models.ErrDegenerateDistribution)
	}
	r := sxy / math.Sqrt(sxx*syy)
	// clamp float noise
	return math.Max(-1, math.Min(1, r)), nil
}

// PercentChange returns (last-first)/first*100 using decimal arithmetic.
// A non-positive first price yields 0.
func PercentChange(first, last float64) float64 {
	if first <= 0 {
		return 0
	}
	f := decimal.NewFromFloat(first)
	l := decimal.NewFromFloat(last)
	pct, _ := l.Sub(f).Div(f).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// WindowChangePct is the percent change from the first to the last sample.
func WindowChangePct(samples []models.Sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	return PercentChange(samples[0].Price, samples[len(samples)-1].Price)
}

// HourlyDistribution sums volume per UTC hour of day.
func HourlyDistribution(samples []models.Sample) [24]float64 {
	var h [24]float64
	for _, s := range samples {
		h[s.Timestamp.UTC().Hour()] += s.Volume
	}
	return h
}

// Align keeps only the samples whose timestamps appear in both series.
// Both inputs must be sorted by time, as buffer windows are.
func Align(a, b []models.Sample) ([]models.Sample, []models.Sample) {
	outA := make([]models.Sample, 0, min(len(a), len(b)))
	outB := make([]models.Sample, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Timestamp.Equal(b[j].Timestamp):
			outA = append(outA, a[i])
			outB = append(outB, b[j])
			i++
			j++
		case a[i].Timestamp.Before(b[j].Timestamp):
			i++
		default:
			j++
		}
	}
	return outA, outB
}
