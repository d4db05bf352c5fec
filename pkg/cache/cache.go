package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the key/value surface shared by the memory and Redis caches.
// Values are JSON encoded; Get decodes into dest.
type Service interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

// Key joins parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
