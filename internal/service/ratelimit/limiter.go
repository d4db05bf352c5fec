package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Limiter keeps one token bucket per key. Keys idle for longer than the
// idle timeout are dropped on the next sweep.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*entry
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithIdleTimeout changes how long an unused key is kept.
func WithIdleTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.idle = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a limiter allowing perSecond events per key with the given burst.
func New(perSecond float64, burst int, opts ...Option) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		m:     make(map[string]*entry),
		limit: rate.Limit(perSecond),
		burst: burst,
		idle:  10 * time.Minute,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = e
	}
	e.seen = now
	l.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// Sweep drops keys not used within the idle timeout and returns how many remain.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.m {
		if e.seen.Before(cutoff) {
			delete(l.m, k)
		}
	}
	return len(l.m)
}
