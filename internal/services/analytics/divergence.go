package analytics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/services/features"
)

type DivergenceConfig struct {
	Window     int
	MinSamples int

	Stealth     bool
	UnusualHour bool
	Clustering  bool

	// FlatPricePct bounds |window price change %| for a move to count as flat.
	FlatPricePct        float64
	UnusualHourMultiple float64
	MinActiveHours      int
	ClusterMultiple     float64
	MinClusterLength    int
}

func DefaultDivergenceConfig() DivergenceConfig {
	return DivergenceConfig{
		Window:              48,
		MinSamples:          24,
		Stealth:             true,
		UnusualHour:         true,
		Clustering:          true,
		FlatPricePct:        2,
		UnusualHourMultiple: 2,
		MinActiveHours:      6,
		ClusterMultiple:     1.3,
		MinClusterLength:    3,
	}
}

// DivergenceDetector looks for price/volume relationships that price alone hides.
// Its three checks run independently and are not deduplicated against each other.
type DivergenceDetector struct {
	cfg    DivergenceConfig
	volume *VolumeAnomalyDetector
}

func NewDivergenceDetector(cfg DivergenceConfig, volume *VolumeAnomalyDetector) *DivergenceDetector {
	if volume == nil {
		volume = NewVolumeAnomalyDetector(DefaultVolumeConfig())
	}
	if cfg.MinSamples < 3 {
		cfg.MinSamples = 3
	}
	if cfg.Window < cfg.MinSamples {
		cfg.Window = cfg.MinSamples
	}
	if cfg.MinClusterLength < 2 {
		cfg.MinClusterLength = 2
	}
	return &DivergenceDetector{cfg: cfg, volume: volume}
}

func (d *DivergenceDetector) Name() string { return "divergence" }

func (d *DivergenceDetector) Detect(src WindowSource, asset string, now time.Time) ([]models.Signal, error) {
	window := src.Window(asset, d.cfg.Window)
	if len(window) < d.cfg.MinSamples {
		return nil, fmt.Errorf("divergence: have %d samples, need %d: %w",
			len(window), d.cfg.MinSamples, models.ErrInsufficientHistory)
	}

	var (
		out  []models.Signal
		errs []error
	)
	if d.cfg.Stealth {
		sig, err := d.stealth(src.Window(asset, d.volume.Config().Window), asset, now)
		if err != nil {
			errs = append(errs, err)
		} else if sig != nil {
			out = append(out, *sig)
		}
	}
	if d.cfg.UnusualHour {
		sigs, err := d.unusualHours(window, asset, now)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, sigs...)
	}
	if d.cfg.Clustering {
		sigs, err := d.clusters(window, asset, now)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, sigs...)
	}
	return out, errors.Join(errs...)
}

// stealth fires when volume surges while price stays inside the flat band.
// A flat-to-up window whose newest sample moved down reads as distribution.
func (d *DivergenceDetector) stealth(window []models.Sample, asset string, now time.Time) (*models.Signal, error) {
	a, err := d.volume.Assess(window)
	if err != nil {
		return nil, fmt.Errorf("stealth: %w", err)
	}
	if a.Band == BandNone || a.Direction != models.DirectionUp {
		return nil, nil
	}

	change := features.WindowChangePct(window)
	if math.Abs(change) >= d.cfg.FlatPricePct {
		return nil, nil
	}

	n := len(window)
	lastMove := features.PercentChange(window[n-2].Price, window[n-1].Price)

	kind, dir := models.KindSmartMoneyAccumulation, models.DirectionUp
	if change > 0 && lastMove < 0 {
		kind, dir = models.KindSmartMoneyDistribution, models.DirectionDown
	}

	ev := models.Evidence{
		"price_change_pct": change,
		"last_move_pct":    lastMove,
		"z":                a.Z,
		"band":             string(a.Band),
		"mean_volume":      a.Mean,
		"latest_volume":    a.Latest,
		"flat_price_pct":   d.cfg.FlatPricePct,
	}
	sig := newSignal(kind, asset, math.Abs(a.Z), dir, ev, now)
	return &sig, nil
}

func (d *DivergenceDetector) unusualHours(window []models.Sample, asset string, now time.Time) ([]models.Signal, error) {
	hist := features.HourlyDistribution(window)

	total, active := 0.0, 0
	for _, v := range hist {
		total += v
		if v > 0 {
			active++
		}
	}
	if total <= 0 {
		return nil, fmt.Errorf("unusual hour: no volume: %w", models.ErrDegenerateDistribution)
	}
	if active < d.cfg.MinActiveHours {
		return nil, fmt.Errorf("unusual hour: %d active hours, need %d: %w",
			active, d.cfg.MinActiveHours, models.ErrInsufficientHistory)
	}

	expected := 1 / float64(active)
	var out []models.Signal
	for hour, v := range hist {
		share := v / total
		ratio := share / expected
		if !atLeast(ratio, d.cfg.UnusualHourMultiple) {
			continue
		}
		ev := models.Evidence{
			"hour":           hour,
			"share":          share,
			"expected_share": expected,
			"ratio":          ratio,
			"active_hours":   active,
		}
		out = append(out, newSignal(models.KindUnusualHourActivity, asset, ratio, models.DirectionUp, ev, now))
	}
	return out, nil
}

func (d *DivergenceDetector) clusters(window []models.Sample, asset string, now time.Time) ([]models.Signal, error) {
	mean := features.Mean(models.Volumes(window))
	if mean <= 0 {
		return nil, fmt.Errorf("clustering: no volume: %w", models.ErrDegenerateDistribution)
	}
	baseline := d.cfg.ClusterMultiple * mean

	var out []models.Signal
	emit := func(start, end int) {
		length := end - start
		if length < d.cfg.MinClusterLength {
			return
		}
		run := features.Mean(models.Volumes(window[start:end]))
		ev := models.Evidence{
			"length":      length,
			"mean_volume": run,
			"baseline":    baseline,
			"start":       window[start].Timestamp,
			"end":         window[end-1].Timestamp,
			"ongoing":     end == len(window),
		}
		out = append(out, newSignal(models.KindVolumeClustering, asset, run/mean, models.DirectionUp, ev, now))
	}

	start := -1
	for i, s := range window {
		if s.Volume > baseline {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			emit(start, i)
			start = -1
		}
	}
	if start >= 0 {
		emit(start, len(window))
	}
	return out, nil
}
