package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotRunning is returned by Enqueue before Start or after Stop.
	ErrNotRunning = errors.New("queue not running")
	// ErrQueueFull is returned by bounded backends that cannot accept more messages.
	ErrQueueFull = errors.New("queue full")
)

// Publisher enqueues typed messages.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload any) error
}

// Config tunes workers and retries.
type Config struct {
	Workers     int           // number of workers
	RetryLimit  int           // retries before a message is dead-lettered
	RetryDelay  time.Duration // delay before a failed message is retried
	RetryTick   time.Duration // how often due retries are promoted
	PollTimeout time.Duration // how long a worker blocks waiting for a message
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.RetryTick <= 0 {
		c.RetryTick = 5 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
}

// Message is the envelope stored by a Backend.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode unmarshals a payload into T.
func Decode[T any](payload json.RawMessage) (*T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}

// Backend stores encoded messages. Pop returns (nil, nil) when nothing
// arrived within timeout.
type Backend interface {
	Ping(ctx context.Context) error
	Push(ctx context.Context, data []byte) error
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Schedule(ctx context.Context, data []byte, at time.Time) error
	// Promote moves retries due at or before now back onto the queue.
	Promote(ctx context.Context, now time.Time) (int, error)
	DeadLetter(ctx context.Context, data []byte) error
	Name() string
}
