package usecase

import (
	"sort"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	appmetrics "MarketPulse/pkg/metrics"
)

// kindPriority breaks severity ties; higher ranks first.
var kindPriority = map[models.SignalKind]int{
	models.KindSmartMoneyAccumulation: 5,
	models.KindSmartMoneyDistribution: 5,
	models.KindVolumeAnomaly:          4,
	models.KindCrossAssetDivergence:   3,
	models.KindUnusualHourActivity:    2,
	models.KindVolumeClustering:       1,
}

// KindPriority exposes the tie-break rank of a kind.
func KindPriority(k models.SignalKind) int { return kindPriority[k] }

type CooldownPolicy struct {
	Default     time.Duration
	PerKind     map[models.SignalKind]time.Duration
	MinSeverity float64
}

func (p CooldownPolicy) interval(k models.SignalKind) time.Duration {
	if d, ok := p.PerKind[k]; ok {
		return d
	}
	return p.Default
}

// SignalAggregator owns the cooldown state per (asset, kind). It is the only
// writer of that state; Aggregate is safe for concurrent callers.
type SignalAggregator struct {
	mu        sync.Mutex
	policy    CooldownPolicy
	lastFired map[models.CooldownKey]time.Time
	metrics   domrepo.Metrics
}

func NewSignalAggregator(policy CooldownPolicy, metrics domrepo.Metrics) *SignalAggregator {
	return &SignalAggregator{
		policy:    policy,
		lastFired: make(map[models.CooldownKey]time.Time),
		metrics:   nopIfNil(metrics),
	}
}

func nopIfNil(m domrepo.Metrics) domrepo.Metrics {
	if m == nil {
		return appmetrics.Nop{}
	}
	return m
}

// Aggregate filters candidate signals through the cooldown policy and returns
// the approved ones, ranked. Approved kinds have their cooldown stamped with now.
func (a *SignalAggregator) Aggregate(now time.Time, candidates []models.Signal) []models.Signal {
	collapsed := collapse(candidates)

	a.mu.Lock()
	approved := make([]models.Signal, 0, len(collapsed))
	for _, s := range collapsed {
		a.record(string(s.Kind), "candidate")
		if s.Severity < a.policy.MinSeverity {
			a.record(string(s.Kind), "below_threshold")
			continue
		}
		key := s.Key()
		if last, ok := a.lastFired[key]; ok && now.Sub(last) < a.policy.interval(s.Kind) {
			a.record(string(s.Kind), "suppressed")
			continue
		}
		a.lastFired[key] = now
		a.record(string(s.Kind), "approved")
		approved = append(approved, s)
	}
	a.mu.Unlock()

	Rank(approved)
	return approved
}

// LastFired returns a copy of the cooldown stamps for asset, or for every asset when empty.
func (a *SignalAggregator) LastFired(asset string) map[models.CooldownKey]time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[models.CooldownKey]time.Time)
	for k, v := range a.lastFired {
		if asset == "" || k.AssetID == asset {
			out[k] = v
		}
	}
	return out
}

// Restore loads cooldown stamps persisted elsewhere; newer stamps win.
func (a *SignalAggregator) Restore(stamps map[models.CooldownKey]time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range stamps {
		if cur, ok := a.lastFired[k]; !ok || v.After(cur) {
			a.lastFired[k] = v
		}
	}
}

func (a *SignalAggregator) record(kind, outcome string) {
	a.metrics.RecordSignal(kind, outcome)
}

// collapse keeps the strongest candidate per (asset, kind) so the result
// does not depend on the order detectors reported in.
func collapse(in []models.Signal) []models.Signal {
	best := make(map[models.CooldownKey]models.Signal, len(in))
	for _, s := range in {
		cur, ok := best[s.Key()]
		if !ok || stronger(s, cur) {
			best[s.Key()] = s
		}
	}
	out := make([]models.Signal, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	Rank(out)
	return out
}

func stronger(a, b models.Signal) bool {
	if a.Severity != b.Severity {
		return a.Severity > b.Severity
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.Fingerprint() < b.Fingerprint()
}

// Rank orders signals by severity, then kind priority, kind name, asset and
// evidence fingerprint. The order is total for distinct signals.
func Rank(sigs []models.Signal) {
	sort.SliceStable(sigs, func(i, j int) bool {
		a, b := sigs[i], sigs[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if pa, pb := kindPriority[a.Kind], kindPriority[b.Kind]; pa != pb {
			return pa > pb
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.AssetID != b.AssetID {
			return a.AssetID < b.AssetID
		}
		return a.Fingerprint() < b.Fingerprint()
	})
}
