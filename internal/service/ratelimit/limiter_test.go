package ratelimit

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestAllowPerKey(t *testing.T) {
	clk := &clock{t: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
	l := New(1, 2, WithClock(clk.now))

	if !l.Allow("KAITO") || !l.Allow("KAITO") {
		t.Fatal("burst of two should pass")
	}
	if l.Allow("KAITO") {
		t.Fatal("third request inside the same instant should be limited")
	}
	if !l.Allow("SOL") {
		t.Fatal("other keys have their own bucket")
	}
	clk.t = clk.t.Add(time.Second)
	if !l.Allow("KAITO") {
		t.Fatal("one token should refill after a second")
	}
}

func TestSweepDropsIdleKeys(t *testing.T) {
	clk := &clock{t: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
	l := New(5, 5, WithClock(clk.now), WithIdleTimeout(time.Minute))
	l.Allow("KAITO")
	clk.t = clk.t.Add(30 * time.Second)
	l.Allow("SOL")
	clk.t = clk.t.Add(45 * time.Second)

	if n := l.Sweep(); n != 1 {
		t.Fatalf("remaining = %d, want 1", n)
	}
}
