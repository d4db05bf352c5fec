package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SignalKind classifies a detected market event.
type SignalKind string

const (
	KindVolumeAnomaly          SignalKind = "volume_anomaly"
	KindSmartMoneyAccumulation SignalKind = "smart_money_accumulation"
	KindSmartMoneyDistribution SignalKind = "smart_money_distribution"
	KindUnusualHourActivity    SignalKind = "unusual_hour_activity"
	KindVolumeClustering       SignalKind = "volume_clustering"
	KindCrossAssetDivergence   SignalKind = "cross_asset_divergence"
)

// AllKinds lists every signal kind in declaration order.
var AllKinds = []SignalKind{
	KindVolumeAnomaly,
	KindSmartMoneyAccumulation,
	KindSmartMoneyDistribution,
	KindUnusualHourActivity,
	KindVolumeClustering,
	KindCrossAssetDivergence,
}

// ParseSignalKind converts a raw name into a known kind.
func ParseSignalKind(s string) (SignalKind, bool) {
	k := SignalKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Direction is the sign of the deviation behind a signal.
type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionNeutral Direction = "neutral"
)

// DirectionOf maps the sign of v to a Direction.
func DirectionOf(v float64) Direction {
	switch {
	case v > 0:
		return DirectionUp
	case v < 0:
		return DirectionDown
	default:
		return DirectionNeutral
	}
}

// Evidence holds the numeric inputs that produced a classification.
type Evidence map[string]any

// Signal is an immutable detector output.
type Signal struct {
	ID        string     `json:"id"`
	Kind      SignalKind `json:"kind"`
	AssetID   string     `json:"asset_id"`
	Severity  float64    `json:"severity"`
	Direction Direction  `json:"direction"`
	Evidence  Evidence   `json:"evidence"`
	Timestamp time.Time  `json:"timestamp"`
}

// Key identifies the cooldown slot of the signal.
func (s Signal) Key() CooldownKey {
	return CooldownKey{AssetID: s.AssetID, Kind: s.Kind}
}

// Fingerprint renders the evidence in sorted key order. Used as the last
// tie break when ordering otherwise equal signals.
func (s Signal) Fingerprint() string {
	keys := make([]string, 0, len(s.Evidence))
	for k := range s.Evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, s.Evidence[k])
	}
	return b.String()
}

// CooldownKey is the (asset, kind) pair cooldowns are tracked by.
type CooldownKey struct {
	AssetID string
	Kind    SignalKind
}

func (k CooldownKey) String() string {
	return k.AssetID + "/" + string(k.Kind)
}
