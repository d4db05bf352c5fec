package analytics

import (
	"fmt"
	"math"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/services/features"
)

// Band is the magnitude class of a volume deviation.
type Band string

const (
	BandNone        Band = "none"
	BandModerate    Band = "moderate"
	BandSignificant Band = "significant"
)

type VolumeConfig struct {
	Window      int
	MinSamples  int
	Moderate    float64
	Significant float64
}

func DefaultVolumeConfig() VolumeConfig {
	return VolumeConfig{Window: 24, MinSamples: 12, Moderate: 2, Significant: 3}
}

// VolumeAssessment is the z-score breakdown of the latest volume.
type VolumeAssessment struct {
	Z         float64
	Mean      float64
	Std       float64
	Latest    float64
	Band      Band
	Direction models.Direction
	Samples   int
}

// VolumeAnomalyDetector scores the newest volume against the rest of its window.
type VolumeAnomalyDetector struct {
	cfg VolumeConfig
}

func NewVolumeAnomalyDetector(cfg VolumeConfig) *VolumeAnomalyDetector {
	def := DefaultVolumeConfig()
	if cfg.Window < 3 {
		cfg.Window = def.Window
	}
	if cfg.MinSamples < 3 {
		cfg.MinSamples = 3
	}
	if cfg.Moderate <= 0 {
		cfg.Moderate = def.Moderate
	}
	if cfg.Significant <= 0 {
		cfg.Significant = def.Significant
	}
	return &VolumeAnomalyDetector{cfg: cfg}
}

func (d *VolumeAnomalyDetector) Name() string { return "volume_anomaly" }

func (d *VolumeAnomalyDetector) Config() VolumeConfig { return d.cfg }

// Classify maps a z-score onto a band. Exact threshold values go to the higher band.
func (d *VolumeAnomalyDetector) Classify(z float64) Band {
	abs := math.Abs(z)
	switch {
	case atLeast(abs, d.cfg.Significant):
		return BandSignificant
	case atLeast(abs, d.cfg.Moderate):
		return BandModerate
	default:
		return BandNone
	}
}

// Assess computes mean and sample deviation over all but the newest sample
// of window and scores the newest one against them.
func (d *VolumeAnomalyDetector) Assess(window []models.Sample) (VolumeAssessment, error) {
	if len(window) < d.cfg.MinSamples {
		return VolumeAssessment{}, fmt.Errorf("volume: have %d samples, need %d: %w",
			len(window), d.cfg.MinSamples, models.ErrInsufficientHistory)
	}

	vols := models.Volumes(window)
	latest := vols[len(vols)-1]
	mean, std := features.MeanStd(vols[:len(vols)-1])
	if std == 0 {
		return VolumeAssessment{}, fmt.Errorf("volume: flat history: %w", models.ErrDegenerateDistribution)
	}

	z := (latest - mean) / std
	return VolumeAssessment{
		Z:         z,
		Mean:      mean,
		Std:       std,
		Latest:    latest,
		Band:      d.Classify(z),
		Direction: models.DirectionOf(latest - mean),
		Samples:   len(window),
	}, nil
}

// Detect emits one VolumeAnomaly signal when the newest volume is moderate or significant.
func (d *VolumeAnomalyDetector) Detect(src WindowSource, asset string, now time.Time) ([]models.Signal, error) {
	a, err := d.Assess(src.Window(asset, d.cfg.Window))
	if err != nil {
		return nil, err
	}
	if a.Band == BandNone {
		return nil, nil
	}

	ev := models.Evidence{
		"z":             a.Z,
		"mean":          a.Mean,
		"std":           a.Std,
		"latest_volume": a.Latest,
		"band":          string(a.Band),
		"samples":       a.Samples,
	}
	return []models.Signal{newSignal(models.KindVolumeAnomaly, asset, math.Abs(a.Z), a.Direction, ev, now)}, nil
}

// HourlyDistribution returns volume summed per UTC hour over the detector window.
// Recomputed on every call from the buffer contents.
func (d *VolumeAnomalyDetector) HourlyDistribution(src WindowSource, asset string) [24]float64 {
	return features.HourlyDistribution(src.Window(asset, d.cfg.Window))
}
