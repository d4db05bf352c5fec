package analytics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/services/features"
)

type CorrelationConfig struct {
	Window     int
	MinOverlap int

	CorrelationCheck      bool
	RelativeStrengthCheck bool

	// CorrelationFloor: |corr| below it counts as decoupling.
	CorrelationFloor float64
	// RelativeStrengthSpread: |focal% - reference%| above it counts as divergence.
	RelativeStrengthSpread float64

	References []string
}

func DefaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{
		Window:                 48,
		MinOverlap:             10,
		CorrelationCheck:       true,
		RelativeStrengthCheck:  true,
		CorrelationFloor:       0.3,
		RelativeStrengthSpread: 5,
	}
}

// PairStats are the comparison metrics of a focal asset against one reference.
type PairStats struct {
	Reference           string
	Correlation         float64
	RelativeStrengthPct float64
	Aligned             int
}

// CorrelationEngine compares a focal asset with each configured reference asset.
type CorrelationEngine struct {
	cfg CorrelationConfig
}

func NewCorrelationEngine(cfg CorrelationConfig) *CorrelationEngine {
	if cfg.MinOverlap < 3 {
		cfg.MinOverlap = 3
	}
	if cfg.Window < cfg.MinOverlap {
		cfg.Window = cfg.MinOverlap
	}
	return &CorrelationEngine{cfg: cfg}
}

func (e *CorrelationEngine) Name() string { return "correlation" }

// Compare aligns the two windows on identical timestamps and computes the
// return correlation and relative strength over the shared samples.
func (e *CorrelationEngine) Compare(focal, reference []models.Sample) (PairStats, error) {
	a, b := features.Align(focal, reference)
	if len(a) < e.cfg.MinOverlap {
		return PairStats{}, fmt.Errorf("%d aligned samples, need %d: %w", len(a), e.cfg.MinOverlap, models.ErrInsufficientOverlap)
	}

	corr, err := features.Pearson(
		features.SimpleReturns(models.Prices(a)),
		features.SimpleReturns(models.Prices(b)),
	)
	if err != nil {
		return PairStats{}, err
	}

	return PairStats{
		Correlation:         corr,
		RelativeStrengthPct: features.WindowChangePct(a) - features.WindowChangePct(b),
		Aligned:             len(a),
	}, nil
}

// Detect emits at most one CrossAssetDivergence signal per reference asset.
// Pairs that cannot be computed are skipped and reported in the returned error.
func (e *CorrelationEngine) Detect(src WindowSource, asset string, now time.Time) ([]models.Signal, error) {
	focal := src.Window(asset, e.cfg.Window)

	var (
		out  []models.Signal
		errs []error
	)
	for _, ref := range e.cfg.References {
		if ref == asset {
			continue
		}
		st, err := e.Compare(focal, src.Window(ref, e.cfg.Window))
		if err != nil {
			errs = append(errs, fmt.Errorf("correlation %s/%s: %w", asset, ref, err))
			continue
		}
		st.Reference = ref
		if sig, ok := e.evaluate(st, asset, now); ok {
			out = append(out, sig)
		}
	}
	return out, errors.Join(errs...)
}

func (e *CorrelationEngine) evaluate(st PairStats, asset string, now time.Time) (models.Signal, bool) {
	var (
		severity float64
		triggers []string
	)
	absCorr := math.Abs(st.Correlation)
	if e.cfg.CorrelationCheck && absCorr < e.cfg.CorrelationFloor {
		severity = math.Max(severity, 1+(e.cfg.CorrelationFloor-absCorr)/e.cfg.CorrelationFloor)
		triggers = append(triggers, "decoupling")
	}
	absRS := math.Abs(st.RelativeStrengthPct)
	if e.cfg.RelativeStrengthCheck && absRS > e.cfg.RelativeStrengthSpread {
		severity = math.Max(severity, absRS/e.cfg.RelativeStrengthSpread)
		triggers = append(triggers, "relative_strength")
	}
	if len(triggers) == 0 {
		return models.Signal{}, false
	}

	trigger := triggers[0]
	if len(triggers) > 1 {
		trigger = "both"
	}
	ev := models.Evidence{
		"correlation":           st.Correlation,
		"relative_strength_pct": st.RelativeStrengthPct,
		"reference_asset":       st.Reference,
		"aligned_samples":       st.Aligned,
		"trigger":               trigger,
	}
	return newSignal(models.KindCrossAssetDivergence, asset, severity, models.DirectionOf(st.RelativeStrengthPct), ev, now), true
}
