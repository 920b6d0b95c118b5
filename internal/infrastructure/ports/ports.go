// Package ports declares the capabilities the use cases depend on.
package ports

import (
	"context"
	"time"
)

// Clock provides the current time and interruptible sleeps.
type Clock interface {
	Now() time.Time
	// SleepContext blocks for d or until ctx is cancelled. Returns ctx.Err() if cancelled.
	SleepContext(ctx context.Context, d time.Duration) error
}

// Logger provides structured logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// RateLimiter checks whether a request is allowed under rate limits.
type RateLimiter interface {
	// Allow reports whether one more request identified by key fits the
	// bucket. rate is tokens per second, burst is the max burst size.
	Allow(ctx context.Context, key string, rate float64, burst int) bool
}

// ScenarioStore is the writable side of scenario storage used by the recorder.
// Paths are slash-separated and relative to the store root.
type ScenarioStore interface {
	// ReadFile returns fs.ErrNotExist when the file is absent.
	ReadFile(name string) ([]byte, error)
	// ClaimBodyFile exclusively creates the smallest unused
	// "<base>_body_<n><ext>" file next to scenarioPath, writes body into it
	// and syncs it. It returns the claimed file name relative to the
	// scenario directory.
	ClaimBodyFile(scenarioPath, ext string, body []byte) (string, error)
	// WriteAtomic replaces name with data so that readers only ever observe
	// the old or the new content.
	WriteAtomic(name string, data []byte) error
	// Remove deletes a file; a missing file is not an error.
	Remove(name string) error
	// Lock serializes writers of one scenario path and returns the unlock func.
	Lock(name string) func()
}

// Watcher reports changes under a scenario root.
type Watcher interface {
	Start(ctx context.Context) error
	Stop()
}
