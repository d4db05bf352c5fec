package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	internalrepo "MarketPulse/internal/repository"
	"MarketPulse/pkg/cache"
)

type mapCooldownStore struct {
	stamps  map[models.CooldownKey]time.Time
	saves   int
	saveErr error
	loadErr error
}

func (s *mapCooldownStore) Save(_ context.Context, stamps map[models.CooldownKey]time.Time) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.stamps = stamps
	return nil
}

func (s *mapCooldownStore) Load(context.Context) (map[models.CooldownKey]time.Time, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.stamps, nil
}

func TestCooldownPersisterRestoreSuppresses(t *testing.T) {
	key := models.CooldownKey{AssetID: "KAITO", Kind: models.KindVolumeAnomaly}
	store := &mapCooldownStore{stamps: map[models.CooldownKey]time.Time{key: t0.Add(-time.Minute)}}
	agg := NewSignalAggregator(CooldownPolicy{Default: time.Hour}, newCountingMetrics())
	p := NewCooldownPersister(agg, store, newCountingMetrics(), nil)

	n, err := p.Restore(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("restored %d, err %v", n, err)
	}
	sig := models.Signal{ID: "a", Kind: models.KindVolumeAnomaly, AssetID: "KAITO", Severity: 3, Timestamp: t0}
	if got := agg.Aggregate(t0, []models.Signal{sig}); len(got) != 0 {
		t.Fatalf("restored cooldown ignored: %+v", got)
	}
}

func TestCooldownPersisterSavesAfterApproval(t *testing.T) {
	store := &mapCooldownStore{}
	m := newCountingMetrics()
	agg := NewSignalAggregator(CooldownPolicy{Default: time.Hour}, m)
	p := NewCooldownPersister(agg, store, m, nil)
	ctx := context.Background()

	p.HandleReport(ctx, &models.CycleReport{Timestamp: t0, Assets: map[string]*models.AssetOutcome{"KAITO": {AssetID: "KAITO"}}})
	if store.saves != 0 {
		t.Fatalf("saved without approvals")
	}

	sig := models.Signal{ID: "a", Kind: models.KindVolumeAnomaly, AssetID: "KAITO", Severity: 3, Timestamp: t0}
	approved := agg.Aggregate(t0, []models.Signal{sig})
	report := &models.CycleReport{Timestamp: t0, Assets: map[string]*models.AssetOutcome{"KAITO": {AssetID: "KAITO", Approved: approved}}}
	p.HandleReport(ctx, report)
	if store.saves != 1 || !store.stamps[sig.Key()].Equal(t0) {
		t.Fatalf("saves=%d stamps=%v", store.saves, store.stamps)
	}

	store.saveErr = errors.New("redis down")
	p.HandleReport(ctx, report)
	if m.errors["cooldown_save"] != 1 {
		t.Fatalf("errors = %v", m.errors)
	}
}

func TestCooldownPersisterSkipsSaveWhenStoreUnreadable(t *testing.T) {
	store := &mapCooldownStore{loadErr: errors.New("redis down")}
	m := newCountingMetrics()
	agg := NewSignalAggregator(CooldownPolicy{Default: time.Hour}, m)
	p := NewCooldownPersister(agg, store, m, nil)

	sig := models.Signal{ID: "a", Kind: models.KindVolumeAnomaly, AssetID: "KAITO", Severity: 3, Timestamp: t0}
	approved := agg.Aggregate(t0, []models.Signal{sig})
	p.HandleReport(context.Background(), &models.CycleReport{Timestamp: t0, Assets: map[string]*models.AssetOutcome{"KAITO": {AssetID: "KAITO", Approved: approved}}})
	if store.saves != 0 || m.errors["cooldown_save"] != 1 {
		t.Fatalf("saves=%d errors=%v", store.saves, m.errors)
	}
}

// Two instances taking turns over one cache must honour each other's cooldowns.
func TestCooldownsSharedBetweenInstances(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	store := internalrepo.NewCacheCooldownStore(mc, 2*time.Hour)
	ctx := context.Background()
	policy := CooldownPolicy{Default: time.Hour}

	newInstance := func() (*SignalAggregator, *CooldownPersister) {
		agg := NewSignalAggregator(policy, newCountingMetrics())
		return agg, NewCooldownPersister(agg, store, newCountingMetrics(), nil)
	}
	aggA, persistA := newInstance()
	aggB, persistB := newInstance()
	cycle := func(agg *SignalAggregator, p *CooldownPersister, at time.Time, reload bool, sigs ...models.Signal) int {
		if reload {
			if _, err := p.Restore(ctx); err != nil {
				t.Fatal(err)
			}
		}
		approved := agg.Aggregate(at, sigs)
		rep := &models.CycleReport{Timestamp: at, Assets: map[string]*models.AssetOutcome{}}
		for _, s := range approved {
			out, ok := rep.Assets[s.AssetID]
			if !ok {
				out = &models.AssetOutcome{AssetID: s.AssetID}
				rep.Assets[s.AssetID] = out
			}
			out.Approved = append(out.Approved, s)
		}
		p.HandleReport(ctx, rep)
		return len(approved)
	}

	kaito := models.Signal{ID: "k", Kind: models.KindVolumeAnomaly, AssetID: "KAITO", Severity: 3, Timestamp: t0}
	sol := models.Signal{ID: "s", Kind: models.KindVolumeAnomaly, AssetID: "SOL", Severity: 3, Timestamp: t0}
	eth := models.Signal{ID: "e", Kind: models.KindVolumeAnomaly, AssetID: "ETH", Severity: 3, Timestamp: t0}

	if n := cycle(aggA, persistA, t0, true, kaito); n != 1 {
		t.Fatalf("instance A approved %d", n)
	}
	if n := cycle(aggB, persistB, t0.Add(time.Minute), true, kaito, sol); n != 1 {
		t.Fatalf("instance B approved %d, want only SOL", n)
	}
	// A saves again without having reloaded; B's SOL stamp must survive the merge
	if n := cycle(aggA, persistA, t0.Add(2*time.Minute), false, kaito, eth); n != 1 {
		t.Fatalf("instance A approved %d, want only ETH", n)
	}
	stamps, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stamps) != 3 {
		t.Fatalf("stored stamps = %v", stamps)
	}
}
