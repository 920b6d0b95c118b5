// Package testutil provides fakes for the ports used in tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
)

var _ ports.Logger = (*NoopLogger)(nil)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (l *NoopLogger) Info(string, ...any)  {}
func (l *NoopLogger) Warn(string, ...any)  {}
func (l *NoopLogger) Error(string, ...any) {}
func (l *NoopLogger) Debug(string, ...any) {}

var _ ports.Logger = (*RecordingLogger)(nil)

// RecordingLogger keeps every message with its level prefix, e.g. "WARN msg".
type RecordingLogger struct {
	mu       sync.Mutex
	Messages []string
}

func (l *RecordingLogger) Info(msg string, _ ...any)  { l.add("INFO", msg) }
func (l *RecordingLogger) Warn(msg string, _ ...any)  { l.add("WARN", msg) }
func (l *RecordingLogger) Error(msg string, _ ...any) { l.add("ERROR", msg) }
func (l *RecordingLogger) Debug(msg string, _ ...any) { l.add("DEBUG", msg) }

func (l *RecordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, fmt.Sprintf("%s %s", level, msg))
}

// Has reports whether a message was logged at level.
func (l *RecordingLogger) Has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	want := level + " " + msg
	for _, m := range l.Messages {
		if m == want {
			return true
		}
	}
	return false
}

var _ ports.Clock = (*ManualClock)(nil)

// ManualClock only moves when advanced. SleepContext returns at once and
// records the requested duration.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewManualClock starts the clock at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *ManualClock) SleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	return nil
}

// Sleeps returns every duration passed to SleepContext.
func (c *ManualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

var _ ports.RateLimiter = (*StubRateLimiter)(nil)

// StubRateLimiter returns a configurable Allow result and counts calls.
type StubRateLimiter struct {
	AllowAll bool

	mu    sync.Mutex
	Calls []string
}

func (r *StubRateLimiter) Allow(_ context.Context, key string, _ float64, _ int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, key)
	return r.AllowAll
}
