package usecases

import (
	"context"
	"errors"

	"github.com/sophialabs/httpmocker/internal/domain/match"
	"github.com/sophialabs/httpmocker/internal/domain/trace"
	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
	"github.com/sophialabs/httpmocker/pkg/policy"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// DynamicMock produces a response for a request, or nil to decline it.
type DynamicMock func(req *scenario.Request) *scenario.ResponseDescriptor

// Order selects which source is consulted first.
type Order int

const (
	StaticFirst Order = iota
	DynamicFirst
)

// Resolution describes where a response came from.
type Resolution struct {
	Source trace.Source
	// ScenarioPath is the static scenario consulted, if any. Body files of
	// static entries are resolved against it.
	ScenarioPath string
	// Index is the matched entry for static resolutions, the mock position
	// for dynamic ones and -1 otherwise.
	Index      int
	Descriptor *scenario.ResponseDescriptor
	Error      *scenario.NetworkError
	Candidates []trace.CandidateResult
}

// Found reports whether a source produced a response or a simulated error.
func (r Resolution) Found() bool {
	return r.Source == trace.SourceStatic || r.Source == trace.SourceDynamic
}

// ResolveRequestUseCase looks a request up in the static scenarios and the
// dynamic mocks.
type ResolveRequestUseCase struct {
	filing    policy.FilingPolicy
	loader    *LoadScenarioUseCase
	evaluator *match.Evaluator
	mocks     []DynamicMock
	order     Order
	logger    ports.Logger
}

// NewResolveRequestUseCase creates a new use case. loader may be nil when no
// static scenarios are configured.
func NewResolveRequestUseCase(
	filing policy.FilingPolicy,
	loader *LoadScenarioUseCase,
	evaluator *match.Evaluator,
	mocks []DynamicMock,
	order Order,
	logger ports.Logger,
) *ResolveRequestUseCase {
	return &ResolveRequestUseCase{
		filing:    filing,
		loader:    loader,
		evaluator: evaluator,
		mocks:     mocks,
		order:     order,
		logger:    logger,
	}
}

// Execute tries both sources in the configured order. A missing scenario
// file falls through; a malformed one is returned as an error.
func (uc *ResolveRequestUseCase) Execute(ctx context.Context, req *scenario.Request) (Resolution, error) {
	sources := []func(context.Context, *scenario.Request) (Resolution, error){uc.resolveStatic, uc.resolveDynamic}
	if uc.order == DynamicFirst {
		sources[0], sources[1] = sources[1], sources[0]
	}

	res := Resolution{Source: trace.SourceNone, Index: -1}
	for _, resolve := range sources {
		r, err := resolve(ctx, req)
		if err != nil {
			return res, err
		}
		if r.ScenarioPath != "" {
			res.ScenarioPath = r.ScenarioPath
			res.Candidates = r.Candidates
		}
		if r.Found() {
			r.ScenarioPath, r.Candidates = res.ScenarioPath, res.Candidates
			return r, nil
		}
	}
	return res, nil
}

func (uc *ResolveRequestUseCase) resolveStatic(ctx context.Context, req *scenario.Request) (Resolution, error) {
	res := Resolution{Source: trace.SourceNone, Index: -1}
	if uc.loader == nil || uc.filing == nil {
		return res, nil
	}

	path := uc.filing.Path(req)
	res.ScenarioPath = path

	cs, err := uc.loader.Execute(ctx, path)
	if errors.Is(err, scenario.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return res, err
	}

	result := uc.evaluator.Evaluate(req, cs.Entries)
	res.Candidates = result.Candidates
	if result.Matched == nil {
		uc.logger.Debug("no static match", "path", path, "method", req.Method, "url", req.Path)
		return res, nil
	}

	res.Source = trace.SourceStatic
	res.Index = result.Matched.Index
	res.Descriptor = result.Matched.Response
	res.Error = result.Matched.Error
	return res, nil
}

func (uc *ResolveRequestUseCase) resolveDynamic(_ context.Context, req *scenario.Request) (Resolution, error) {
	for i, mock := range uc.mocks {
		if d := mock(req); d != nil {
			return Resolution{Source: trace.SourceDynamic, Index: i, Descriptor: d}, nil
		}
	}
	return Resolution{Source: trace.SourceNone, Index: -1}, nil
}
