package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"

	"github.com/redis/go-redis/v9"
)

// RedisContentHistory stores accepted texts in a sorted set scored by
// publish time in unix nanoseconds.
type RedisContentHistory struct {
	client *redis.Client
	key    string
}

func NewRedisContentHistory(rc *cache.RedisCache) *RedisContentHistory {
	return &RedisContentHistory{client: rc.Client(), key: rc.Prefixed(cache.Key("content", "history"))}
}

func (h *RedisContentHistory) Append(ctx context.Context, rec models.PublishedContentRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return h.client.ZAdd(ctx, h.key, redis.Z{Score: float64(rec.Timestamp.UnixNano()), Member: b}).Err()
}

// Since returns records at or after t, oldest first.
func (h *RedisContentHistory) Since(ctx context.Context, t time.Time) ([]models.PublishedContentRecord, error) {
	members, err := h.client.ZRangeByScore(ctx, h.key, &redis.ZRangeBy{
		Min: strconv.FormatInt(t.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("content history since: %w", err)
	}
	out := make([]models.PublishedContentRecord, 0, len(members))
	for _, m := range members {
		var rec models.PublishedContentRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			return nil, fmt.Errorf("decode content record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Trim removes records strictly older than before.
func (h *RedisContentHistory) Trim(ctx context.Context, before time.Time) error {
	return h.client.ZRemRangeByScore(ctx, h.key, "-inf", "("+strconv.FormatInt(before.UnixNano(), 10)).Err()
}

// Close is a no-op; the client is shared.
func (h *RedisContentHistory) Close() error { return nil }

// MemoryContentHistory is the in-process ContentHistory used without Redis.
type MemoryContentHistory struct {
	mu      sync.Mutex
	records []models.PublishedContentRecord
}

func NewMemoryContentHistory() *MemoryContentHistory { return &MemoryContentHistory{} }

func (h *MemoryContentHistory) Append(_ context.Context, rec models.PublishedContentRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := sort.Search(len(h.records), func(i int) bool { return h.records[i].Timestamp.After(rec.Timestamp) })
	h.records = append(h.records, models.PublishedContentRecord{})
	copy(h.records[i+1:], h.records[i:])
	h.records[i] = rec
	return nil
}

func (h *MemoryContentHistory) Since(_ context.Context, t time.Time) ([]models.PublishedContentRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := sort.Search(len(h.records), func(i int) bool { return !h.records[i].Timestamp.Before(t) })
	return append([]models.PublishedContentRecord(nil), h.records[i:]...), nil
}

func (h *MemoryContentHistory) Trim(_ context.Context, before time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := sort.Search(len(h.records), func(i int) bool { return !h.records[i].Timestamp.Before(before) })
	h.records = append(h.records[:0:0], h.records[i:]...)
	return nil
}

func (h *MemoryContentHistory) Close() error { return nil }

var (
	_ domrepo.ContentHistory = (*RedisContentHistory)(nil)
	_ domrepo.ContentHistory = (*MemoryContentHistory)(nil)
)
