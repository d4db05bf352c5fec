package analytics

import (
	"time"

	"github.com/google/uuid"

	"MarketPulse/internal/domain/models"
)

// WindowSource gives detectors read access to buffered history.
// series.Registry implements it.
type WindowSource interface {
	Window(asset string, n int) []models.Sample
}

// Detector evaluates one asset and emits zero or more candidate signals.
// A non-nil error alongside signals means some sub-checks were skipped;
// use models.IsDecline to tell declines from failures.
type Detector interface {
	Name() string
	Detect(src WindowSource, asset string, now time.Time) ([]models.Signal, error)
}

func newSignal(kind models.SignalKind, asset string, severity float64, dir models.Direction, ev models.Evidence, now time.Time) models.Signal {
	return models.Signal{
		ID:        uuid.NewString(),
		Kind:      kind,
		AssetID:   asset,
		Severity:  severity,
		Direction: dir,
		Evidence:  ev,
		Timestamp: now,
	}
}

// bandEpsilon absorbs float noise so values exactly on a threshold land in the higher band.
const bandEpsilon = 1e-9

func atLeast(v, threshold float64) bool {
	return v >= threshold-bandEpsilon
}
