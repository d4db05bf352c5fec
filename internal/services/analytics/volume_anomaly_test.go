package analytics

import (
	"errors"
	"math"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/services/series"
)

// history has mean 100 and sample deviation exactly 10.
var history = []float64{90, 90, 100, 110, 110}

func newVolume() *VolumeAnomalyDetector {
	return NewVolumeAnomalyDetector(VolumeConfig{Window: 6, MinSamples: 6, Moderate: 2, Significant: 3})
}

func TestVolumeBands(t *testing.T) {
	tests := []struct {
		name   string
		latest float64
		band   Band
		dir    models.Direction
	}{
		{"exactly three sigma", 130, BandSignificant, models.DirectionUp},
		{"two and a half sigma", 125, BandModerate, models.DirectionUp},
		{"exactly two sigma", 120, BandModerate, models.DirectionUp},
		{"one sigma", 110, BandNone, models.DirectionUp},
		{"three sigma below", 70, BandSignificant, models.DirectionDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := series.NewRegistry(16)
			vols := append(append([]float64{}, history...), tt.latest)
			feed(t, r, "KAITO", time.Minute, constant(len(vols), 1), vols)

			d := newVolume()
			a, err := d.Assess(r.Window("KAITO", 6))
			if err != nil {
				t.Fatalf("Assess: %v", err)
			}
			if a.Band != tt.band || a.Direction != tt.dir {
				t.Fatalf("band=%s dir=%s z=%v, want %s %s", a.Band, a.Direction, a.Z, tt.band, tt.dir)
			}
			if a.Mean != 100 || a.Std != 10 {
				t.Fatalf("mean=%v std=%v", a.Mean, a.Std)
			}

			sigs, err := d.Detect(r, "KAITO", base)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if tt.band == BandNone {
				if len(sigs) != 0 {
					t.Fatalf("expected no signal, got %+v", sigs)
				}
				return
			}
			if len(sigs) != 1 || sigs[0].Kind != models.KindVolumeAnomaly {
				t.Fatalf("signals = %+v", sigs)
			}
			s := sigs[0]
			if math.Abs(s.Severity-math.Abs(a.Z)) > 1e-12 || s.Direction != tt.dir {
				t.Fatalf("severity=%v direction=%s", s.Severity, s.Direction)
			}
			for _, k := range []string{"z", "mean", "std", "latest_volume"} {
				if _, ok := s.Evidence[k]; !ok {
					t.Errorf("evidence missing %q", k)
				}
			}
			if s.ID == "" {
				t.Error("signal id not set")
			}
		})
	}
}

func TestVolumeFlatHistoryNeverFires(t *testing.T) {
	for _, latest := range []float64{0, 50, 50, 1e9} {
		r := series.NewRegistry(16)
		vols := append(constant(5, 50), latest)
		feed(t, r, "KAITO", time.Minute, constant(6, 1), vols)

		sigs, err := newVolume().Detect(r, "KAITO", base)
		if !errors.Is(err, models.ErrDegenerateDistribution) {
			t.Fatalf("latest=%v err = %v, want ErrDegenerateDistribution", latest, err)
		}
		if len(sigs) != 0 {
			t.Fatalf("latest=%v produced %d signals", latest, len(sigs))
		}
	}
}

func TestVolumeDeclinesOnShortHistory(t *testing.T) {
	r := series.NewRegistry(16)
	feed(t, r, "KAITO", time.Minute, constant(4, 1), []float64{1, 2, 3, 100})

	_, err := newVolume().Detect(r, "KAITO", base)
	if !errors.Is(err, models.ErrInsufficientHistory) || !models.IsDecline(err) {
		t.Fatalf("err = %v", err)
	}
	if _, err := newVolume().Detect(r, "MISSING", base); !errors.Is(err, models.ErrInsufficientHistory) {
		t.Fatalf("unknown asset err = %v", err)
	}
}

func TestVolumeHourlyDistribution(t *testing.T) {
	r := series.NewRegistry(16)
	feed(t, r, "KAITO", 30*time.Minute, constant(6, 1), []float64{1, 2, 3, 4, 5, 6})

	h := newVolume().HourlyDistribution(r, "KAITO")
	if h[0] != 3 || h[1] != 7 || h[2] != 11 {
		t.Fatalf("histogram = %v", h[:3])
	}
}
