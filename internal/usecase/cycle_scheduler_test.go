package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/services/analytics"
	"MarketPulse/pkg/cache"
)

func TestCycleSchedulerRunsAndStops(t *testing.T) {
	vol := emitting("volume_anomaly", models.KindVolumeAnomaly, 3)
	r, _ := newRunner([]analytics.Detector{vol}, []string{"KAITO"})

	reports := make(chan *models.CycleReport, 16)
	s := NewCycleScheduler(r, 5*time.Millisecond, nil, func(_ context.Context, rep *models.CycleReport) {
		select {
		case reports <- rep:
		default:
		}
	})
	s.Start(context.Background())
	s.Start(context.Background())

	select {
	case rep := <-reports:
		if _, ok := rep.Assets["KAITO"]; !ok {
			t.Fatalf("report missing asset: %+v", rep)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	calls := vol.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if vol.calls.Load() != calls {
		t.Fatal("cycles kept running after shutdown")
	}
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestCycleSchedulerWaitsForLock(t *testing.T) {
	vol := emitting("volume_anomaly", models.KindVolumeAnomaly, 3)
	r, _ := newRunner([]analytics.Detector{vol}, []string{"KAITO"})
	ran := make(chan struct{}, 16)
	s := NewCycleScheduler(r, 5*time.Millisecond, nil, func(context.Context, *models.CycleReport) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})

	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	if ok, _ := mc.TryLock(ctx, cycleLockKey, time.Hour); !ok {
		t.Fatal("could not take lock")
	}
	shared := &countingRestore{}
	s.SetLock(mc, shared)
	s.Start(ctx)
	defer func() { _ = s.Shutdown(ctx) }()

	time.Sleep(30 * time.Millisecond)
	if n := vol.calls.Load(); n != 0 {
		t.Fatalf("ran %d cycles while another instance held the lock", n)
	}
	_ = mc.Unlock(ctx, cycleLockKey)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle after the lock was released")
	}
	if shared.calls.Load() == 0 {
		t.Fatal("shared state not reloaded before the locked cycle")
	}
}

type countingRestore struct{ calls atomic.Int32 }

func (c *countingRestore) Restore(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}
