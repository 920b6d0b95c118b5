package wiring

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/sophialabs/httpmocker/internal/domain/match"
	"github.com/sophialabs/httpmocker/internal/domain/trace"
	"github.com/sophialabs/httpmocker/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/httpmocker/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/httpmocker/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/httpmocker/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
	"github.com/sophialabs/httpmocker/internal/infrastructure/services"
	"github.com/sophialabs/httpmocker/internal/infrastructure/usecases"
	"github.com/sophialabs/httpmocker/pkg/mapper"
	"github.com/sophialabs/httpmocker/pkg/policy"
)

// Params holds everything needed to construct the interception engine.
type Params struct {
	FilingPolicy policy.FilingPolicy
	// Source is the scenario byte source. When nil and RecordDir is set the
	// recording directory is used; when both are empty only dynamic mocks run.
	Source       fs.FS
	Mapper       mapper.Mapper
	DynamicMocks []usecases.DynamicMock
	Order        usecases.Order

	RecordDir          string
	RecordFilingPolicy policy.FilingPolicy
	RecordMapper       mapper.Mapper
	IgnoreRecordErrors bool

	DelayFactor  float64
	DefaultDelay time.Duration

	Cache         bool
	WatchDir      string
	WatchDebounce time.Duration

	TraceSize      int
	RateLimiterTTL time.Duration
	Clock          ports.Clock
	Logger         ports.Logger
}

// Container owns the construction and lifecycle of all engine components.
type Container struct {
	logger      ports.Logger
	clock       ports.Clock
	loader      *usecases.LoadScenarioUseCase
	handler     *usecases.HandleRequestUseCase
	recorder    *usecases.RecordExchangeUseCase
	store       *filesystem.Store
	rateLimiter *ratelimit.TokenBucketStore
	traceBuf    *trace.RingBuffer
	watcher     ports.Watcher

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New constructs all components. Nothing is started; call Start to run the
// watcher when one is configured.
func New(p Params) (*Container, error) {
	if p.Mapper == nil {
		p.Mapper = mapper.JSON{}
	}
	if p.FilingPolicy == nil {
		p.FilingPolicy = policy.MirrorPath{Extension: p.Mapper.Extension()}
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.Logger == nil {
		p.Logger = logging.New(nil)
	}

	c := &Container{
		logger:      p.Logger,
		clock:       p.Clock,
		rateLimiter: ratelimit.NewTokenBucketStore(p.Clock, p.RateLimiterTTL),
		traceBuf:    trace.NewRingBuffer(p.TraceSize),
	}

	if p.RecordDir != "" {
		store, err := filesystem.NewStore(p.RecordDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open recording directory: %w", err)
		}
		c.store = store
		p.Logger.Info("recording enabled", "dir", store.Root())
		if p.Source == nil {
			p.Source = store.FS()
		}
	}

	if p.Source != nil {
		c.loader = usecases.NewLoadScenarioUseCase(p.Source, p.Mapper, services.NewCompiler(), p.Logger, p.Cache)
	}

	if c.store != nil {
		recordPolicy := p.RecordFilingPolicy
		if recordPolicy == nil {
			recordPolicy = p.FilingPolicy
		}
		recordMapper := p.RecordMapper
		if recordMapper == nil {
			recordMapper = p.Mapper
		}
		c.recorder = usecases.NewRecordExchangeUseCase(c.store, recordPolicy, recordMapper, p.Logger,
			func(path string) { c.invalidate(path) }, p.IgnoreRecordErrors)
	}

	if p.WatchDir != "" && c.loader != nil {
		w, err := filesystem.NewWatcher(p.WatchDir, p.WatchDebounce, p.Logger,
			func(paths []string) { c.invalidate(paths...) })
		if err != nil {
			return nil, fmt.Errorf("failed to watch %s: %w", p.WatchDir, err)
		}
		c.watcher = w
	}

	resolver := usecases.NewResolveRequestUseCase(p.FilingPolicy, c.loader, match.NewEvaluator(), p.DynamicMocks, p.Order, p.Logger)
	builder := usecases.NewBuildResponseUseCase(p.Source, p.Clock, c.rateLimiter, p.Logger, p.DelayFactor, p.DefaultDelay)
	c.handler = usecases.NewHandleRequestUseCase(resolver, builder, p.Clock, p.Logger)

	return c, nil
}

// Start runs the scenario watcher, if any, until Close.
func (c *Container) Start(ctx context.Context) error {
	if c.watcher == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	if err := c.watcher.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	return nil
}

// Close releases resources held by the container. It is idempotent.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.watcher != nil {
			c.watcher.Stop()
		}
	})
}

// ResetCache drops cached scenarios and rate-limit buckets.
func (c *Container) ResetCache() {
	if c.loader != nil {
		c.loader.Reset()
	}
	c.rateLimiter.Reset()
}

func (c *Container) invalidate(paths ...string) {
	if c.loader == nil {
		return
	}
	c.loader.Invalidate(paths...)
	c.logger.Debug("scenario cache invalidated", "paths", paths)
}

// Clock returns the clock shared by every component.
func (c *Container) Clock() ports.Clock { return c.clock }

// Handler returns the use case resolving and building mocked responses.
func (c *Container) Handler() *usecases.HandleRequestUseCase { return c.handler }

// Recorder returns the recording use case, or nil without a recording directory.
func (c *Container) Recorder() *usecases.RecordExchangeUseCase { return c.recorder }

// TraceBuf returns the trace ring buffer.
func (c *Container) TraceBuf() *trace.RingBuffer { return c.traceBuf }
