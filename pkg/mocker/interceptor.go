// Package mocker intercepts HTTP client requests and answers them from
// scenario files, dynamic mocks or the real network, optionally recording
// real traffic for later replay.
package mocker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/sophialabs/httpmocker/internal/domain/trace"
	"github.com/sophialabs/httpmocker/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
	"github.com/sophialabs/httpmocker/internal/infrastructure/usecases"
	"github.com/sophialabs/httpmocker/internal/infrastructure/wiring"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// Action tells the client adapter what to do with an intercepted request.
type Action int

const (
	// Respond hands Outcome.Response back to the client.
	Respond Action = iota
	// Forward sends the request to the real network.
	Forward
	// ForwardAndRecord sends the request to the real network and passes the
	// exchange to Record or RecordFailure.
	ForwardAndRecord
)

func (a Action) String() string {
	switch a {
	case Respond:
		return "respond"
	case Forward:
		return "forward"
	case ForwardAndRecord:
		return "forward-and-record"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Outcome is the decision taken for one request.
type Outcome struct {
	Action   Action
	Response *scenario.Response
}

// Interceptor decides, per request, between mocked responses, the real
// network and recording. It is safe for concurrent use.
type Interceptor struct {
	mode          atomic.Int32
	recordInMixed bool
	next          http.RoundTripper
	container     *wiring.Container
	logger        ports.Logger
}

// New builds an Interceptor and starts its scenario watcher when
// cfg.Cache is CacheWatch. Call Close to release it.
func New(cfg Config) (*Interceptor, error) {
	if !cfg.Mode.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int32(cfg.Mode))
	}
	logger := logging.New(cfg.Logger)

	watchDir := ""
	if cfg.Cache == CacheWatch {
		watchDir = cfg.WatchDir
		if watchDir == "" {
			watchDir = cfg.Recording.Dir
		}
		if watchDir == "" {
			return nil, errors.New("watch cache requires WatchDir or Recording.Dir")
		}
	}

	c, err := wiring.New(wiring.Params{
		FilingPolicy:       cfg.FilingPolicy,
		Source:             cfg.Source,
		Mapper:             cfg.Mapper,
		DynamicMocks:       cfg.DynamicMocks,
		Order:              cfg.Order,
		RecordDir:          cfg.Recording.Dir,
		RecordFilingPolicy: cfg.Recording.FilingPolicy,
		RecordMapper:       cfg.Recording.Mapper,
		IgnoreRecordErrors: cfg.Recording.IgnoreErrors,
		DelayFactor:        cfg.DelayFactor,
		DefaultDelay:       cfg.DefaultDelay,
		Cache:              cfg.Cache != CachePerRequest,
		WatchDir:           watchDir,
		TraceSize:          cfg.TraceSize,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	it := &Interceptor{
		recordInMixed: cfg.RecordInMixed,
		next:          cfg.Next,
		container:     c,
		logger:        logger,
	}
	if err := it.checkMode(cfg.Mode); err != nil {
		c.Close()
		return nil, err
	}
	it.mode.Store(int32(cfg.Mode))
	if err := c.Start(context.Background()); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("interceptor ready", "mode", cfg.Mode, "recording", cfg.Recording.Dir != "", "cache", cfg.Cache)
	return it, nil
}

// Mode returns the active mode.
func (it *Interceptor) Mode() Mode {
	return Mode(it.mode.Load())
}

// SetMode switches the active mode. In-flight requests keep the mode they
// started with. Modes that record fail with ErrRecorderNotConfigured when
// no recording directory was configured.
func (it *Interceptor) SetMode(m Mode) error {
	if err := it.checkMode(m); err != nil {
		return err
	}
	old := Mode(it.mode.Swap(int32(m)))
	if old != m {
		it.logger.Info("mode changed", "from", old, "to", m)
	}
	return nil
}

func (it *Interceptor) checkMode(m Mode) error {
	if !m.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int32(m))
	}
	if m.records(it.recordInMixed) && it.container.Recorder() == nil {
		return fmt.Errorf("mode %s: %w", m, ErrRecorderNotConfigured)
	}
	return nil
}

// Intercept decides how to handle req under the current mode.
//
// A malformed scenario, a missing body file or a replayed network failure
// is returned as an error. In Enabled mode a request no source can answer
// fails with *scenario.NoMatchError.
func (it *Interceptor) Intercept(ctx context.Context, req *scenario.Request) (Outcome, error) {
	return it.intercept(ctx, it.Mode(), req)
}

func (it *Interceptor) intercept(ctx context.Context, mode Mode, req *scenario.Request) (Outcome, error) {
	b := mode.behavior()
	forward := Outcome{Action: Forward}
	if mode.records(it.recordInMixed) {
		forward.Action = ForwardAndRecord
	}

	if !b.resolve {
		entry := usecases.NewTraceEntry(it.container.Clock(), req)
		entry.Source = trace.SourceNetwork
		it.trace(mode, entry)
		return forward, nil
	}

	result, err := it.container.Handler().Execute(ctx, req)
	entry := result.TraceEntry
	if err != nil {
		it.trace(mode, entry)
		return Outcome{}, err
	}
	if result.Matched {
		it.trace(mode, entry)
		return Outcome{Action: Respond, Response: result.Response}, nil
	}

	if !b.forwardOnMiss {
		nerr := &scenario.NoMatchError{Request: req, Path: entry.ScenarioPath, Rejections: rejections(entry.Candidates)}
		entry.Error = nerr.Error()
		it.trace(mode, entry)
		it.logger.Warn("unmatched request", "method", req.Method, "path", req.Path, "scenario", entry.ScenarioPath)
		return Outcome{}, nerr
	}

	entry.Source = trace.SourceNetwork
	it.trace(mode, entry)
	return forward, nil
}

// Record appends a real exchange to its scenario file.
func (it *Interceptor) Record(ctx context.Context, req *scenario.Request, resp *scenario.Response) error {
	return it.record(ctx, usecases.Exchange{Request: req, Response: resp})
}

// RecordFailure records a failed network call so that it can be replayed
// as a *scenario.SimulatedError.
func (it *Interceptor) RecordFailure(ctx context.Context, req *scenario.Request, cause error) error {
	return it.record(ctx, usecases.Exchange{Request: req, Err: cause})
}

func (it *Interceptor) record(ctx context.Context, ex usecases.Exchange) error {
	recorder := it.container.Recorder()
	if recorder == nil {
		return ErrRecorderNotConfigured
	}
	_, err := recorder.Execute(ctx, ex)
	return err
}

// Trace returns the last n decisions, oldest first. n <= 0 returns all
// retained decisions.
func (it *Interceptor) Trace(n int) []TraceEntry {
	return it.container.TraceBuf().Last(n)
}

// ResetCache drops cached scenarios and rate-limit state.
func (it *Interceptor) ResetCache() {
	it.container.ResetCache()
	it.logger.Info("cache reset")
}

// Transport returns an http.RoundTripper that routes requests through it.
func (it *Interceptor) Transport() *Transport {
	return &Transport{interceptor: it, next: it.next}
}

// Client returns an http.Client using Transport.
func (it *Interceptor) Client() *http.Client {
	return &http.Client{Transport: it.Transport()}
}

// Close stops the scenario watcher. It is idempotent.
func (it *Interceptor) Close() error {
	it.container.Close()
	return nil
}

func (it *Interceptor) trace(mode Mode, e TraceEntry) {
	e.Mode = mode.String()
	it.container.TraceBuf().Add(e)
}

func rejections(candidates []trace.CandidateResult) []scenario.Rejection {
	var out []scenario.Rejection
	for _, c := range candidates {
		if c.Matched {
			continue
		}
		out = append(out, scenario.Rejection{Index: c.Index, Field: c.FailedField, Reason: c.FailedReason})
	}
	return out
}
