package repository

import (
	"context"
	"errors"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"
)

type cooldownStamp struct {
	Asset string            `json:"asset"`
	Kind  models.SignalKind `json:"kind"`
	At    time.Time         `json:"at"`
}

// CacheCooldownStore keeps cooldown stamps as one JSON value in the cache.
// The value expires after ttl, which should cover the longest cooldown.
type CacheCooldownStore struct {
	cache cache.Service
	key   string
	ttl   time.Duration
}

func NewCacheCooldownStore(c cache.Service, ttl time.Duration) *CacheCooldownStore {
	return &CacheCooldownStore{cache: c, key: cache.Key("aggregator", "cooldowns"), ttl: ttl}
}

// Save replaces the stored stamps. An empty map clears the key.
func (s *CacheCooldownStore) Save(ctx context.Context, stamps map[models.CooldownKey]time.Time) error {
	if len(stamps) == 0 {
		return s.cache.Delete(ctx, s.key)
	}
	out := make([]cooldownStamp, 0, len(stamps))
	for k, at := range stamps {
		out = append(out, cooldownStamp{Asset: k.AssetID, Kind: k.Kind, At: at})
	}
	return s.cache.Set(ctx, s.key, out, s.ttl)
}

// Load returns an empty map when nothing was saved.
func (s *CacheCooldownStore) Load(ctx context.Context) (map[models.CooldownKey]time.Time, error) {
	var in []cooldownStamp
	if err := s.cache.Get(ctx, s.key, &in); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return map[models.CooldownKey]time.Time{}, nil
		}
		return nil, err
	}
	out := make(map[models.CooldownKey]time.Time, len(in))
	for _, st := range in {
		out[models.CooldownKey{AssetID: st.Asset, Kind: st.Kind}] = st.At
	}
	return out, nil
}

var _ domrepo.CooldownStore = (*CacheCooldownStore)(nil)
