package usecases

import (
	"context"

	"github.com/google/uuid"

	"github.com/sophialabs/httpmocker/internal/domain/trace"
	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// HandleRequestResult is the outcome of trying to mock one request.
type HandleRequestResult struct {
	Matched     bool
	Response    *scenario.Response
	RateLimited bool
	TraceEntry  trace.Entry
}

// HandleRequestUseCase resolves a request and builds its mocked response.
type HandleRequestUseCase struct {
	resolve *ResolveRequestUseCase
	build   *BuildResponseUseCase
	clock   ports.Clock
	logger  ports.Logger
}

// NewHandleRequestUseCase creates a new use case.
func NewHandleRequestUseCase(
	resolve *ResolveRequestUseCase,
	build *BuildResponseUseCase,
	clock ports.Clock,
	logger ports.Logger,
) *HandleRequestUseCase {
	return &HandleRequestUseCase{
		resolve: resolve,
		build:   build,
		clock:   clock,
		logger:  logger,
	}
}

// Execute returns Matched=false when no source produced a response; deciding
// what happens next is up to the caller. The trace entry is filled in either
// way, including when an error is returned.
func (uc *HandleRequestUseCase) Execute(ctx context.Context, req *scenario.Request) (HandleRequestResult, error) {
	entry := NewTraceEntry(uc.clock, req)

	res, err := uc.resolve.Execute(ctx, req)
	entry.ScenarioPath = res.ScenarioPath
	entry.Candidates = res.Candidates
	entry.Source = res.Source
	entry.MatchedIndex = res.Index
	result := HandleRequestResult{TraceEntry: entry}
	if err != nil {
		result.TraceEntry.Error = err.Error()
		return result, err
	}

	if !res.Found() {
		uc.logger.Debug("no mock found", "method", req.Method, "path", req.Path, "scenario", res.ScenarioPath)
		return result, nil
	}
	result.Matched = true

	built, err := uc.build.Execute(ctx, res)
	if err != nil {
		result.TraceEntry.Error = err.Error()
		return result, err
	}

	result.Response = built.Response
	result.RateLimited = built.RateLimited
	result.TraceEntry.RateLimited = built.RateLimited
	uc.logger.Debug("mocked response", "source", res.Source, "scenario", res.ScenarioPath, "index", res.Index, "code", built.Response.Code)
	return result, nil
}

// NewTraceEntry starts a trace entry for req.
func NewTraceEntry(clock ports.Clock, req *scenario.Request) trace.Entry {
	return trace.Entry{
		ID:           uuid.NewString(),
		Timestamp:    clock.Now(),
		Method:       req.Method,
		Host:         req.Host,
		Path:         req.Path,
		Source:       trace.SourceNone,
		MatchedIndex: -1,
	}
}
