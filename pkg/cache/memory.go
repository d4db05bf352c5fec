package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time // zero means no expiry
	access   time.Time
}

func (m *memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && !now.Before(m.expireAt)
}

// MemoryCache implements Service in process, evicting the least recently
// used key when full.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	maxSize int
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
		Now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		now:     cfg.Now,
		stop:    make(chan struct{}),
	}
	go mc.cleanup(cfg.CleanupInterval)
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	now := mc.now()
	item := &memoryItem{data: b, access: now}
	if expiration > 0 {
		item.expireAt = now.Add(expiration)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.data[key]; !ok && len(mc.data) >= mc.maxSize {
		mc.evictLocked()
	}
	mc.data[key] = item
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest any) error {
	mc.mu.Lock()
	item, ok := mc.liveLocked(key)
	var data []byte
	if ok {
		item.access = mc.now()
		data = item.data
	}
	mc.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.data, k)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	_, ok := mc.liveLocked(key)
	return ok, nil
}

// TryLock sets key only when it is absent or expired.
func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.liveLocked(key); ok {
		return false, nil
	}
	now := mc.now()
	mc.data[key] = &memoryItem{data: []byte(`"locked"`), expireAt: now.Add(ttl), access: now}
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Close stops the background cleanup.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() { close(mc.stop) })
	return nil
}

// Len counts entries including ones that expired but were not swept yet.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) liveLocked(key string) (*memoryItem, bool) {
	item, ok := mc.data[key]
	if !ok {
		return nil, false
	}
	if item.expired(mc.now()) {
		delete(mc.data, key)
		return nil, false
	}
	return item, true
}

func (mc *MemoryCache) evictLocked() {
	var oldestKey string
	var oldest time.Time
	for k, item := range mc.data {
		if oldestKey == "" || item.access.Before(oldest) {
			oldestKey, oldest = k, item.access
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}

func (mc *MemoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-ticker.C:
			mc.mu.Lock()
			now := mc.now()
			for k, item := range mc.data {
				if item.expired(now) {
					delete(mc.data, k)
				}
			}
			mc.mu.Unlock()
		}
	}
}

var _ Service = (*MemoryCache)(nil)
