package usecases

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sophialabs/httpmocker/internal/domain/match"
	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
	"github.com/sophialabs/httpmocker/internal/infrastructure/services"
	"github.com/sophialabs/httpmocker/pkg/mapper"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// LoadScenarioUseCase reads, parses and compiles the scenario stored at a path.
// With caching enabled, compiled scenarios are kept until invalidated.
type LoadScenarioUseCase struct {
	source   fs.FS
	mapper   mapper.Mapper
	compiler *services.Compiler
	logger   ports.Logger
	cache    bool

	mu         sync.RWMutex
	scenarios  map[string]*match.CompiledScenario
	generation uint64
	group      singleflight.Group
}

// NewLoadScenarioUseCase creates a new use case. When cache is false every
// call reads the source again.
func NewLoadScenarioUseCase(source fs.FS, m mapper.Mapper, compiler *services.Compiler, logger ports.Logger, cache bool) *LoadScenarioUseCase {
	return &LoadScenarioUseCase{
		source:    source,
		mapper:    m,
		compiler:  compiler,
		logger:    logger,
		cache:     cache,
		scenarios: make(map[string]*match.CompiledScenario),
	}
}

// Execute returns the compiled scenario at path. A missing file yields
// scenario.ErrNotFound; a file that cannot be decoded or compiled yields a
// *scenario.ParseError.
func (uc *LoadScenarioUseCase) Execute(_ context.Context, path string) (*match.CompiledScenario, error) {
	if !uc.cache {
		return uc.load(path)
	}

	uc.mu.RLock()
	cs, ok := uc.scenarios[path]
	gen := uc.generation
	uc.mu.RUnlock()
	if ok {
		return cs, nil
	}

	v, err, _ := uc.group.Do(path, func() (any, error) {
		cs, err := uc.load(path)
		if err != nil {
			return nil, err
		}
		uc.mu.Lock()
		// A concurrent invalidation means the bytes just read may be stale.
		if uc.generation == gen {
			uc.scenarios[path] = cs
		}
		uc.mu.Unlock()
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*match.CompiledScenario), nil
}

// Invalidate drops the cached scenario for each path.
func (uc *LoadScenarioUseCase) Invalidate(paths ...string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	for _, p := range paths {
		delete(uc.scenarios, p)
		uc.group.Forget(p)
	}
	uc.generation++
}

// Reset drops every cached scenario.
func (uc *LoadScenarioUseCase) Reset() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	for p := range uc.scenarios {
		uc.group.Forget(p)
	}
	clear(uc.scenarios)
	uc.generation++
}

// Cached returns the number of cached scenarios.
func (uc *LoadScenarioUseCase) Cached() int {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return len(uc.scenarios)
}

func (uc *LoadScenarioUseCase) load(path string) (*match.CompiledScenario, error) {
	data, err := fs.ReadFile(uc.source, path)
	if errors.Is(err, fs.ErrNotExist) {
		uc.logger.Debug("no scenario file", "path", path)
		return nil, fmt.Errorf("%w: %s", scenario.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}

	entries, err := uc.mapper.Unmarshal(data)
	if err != nil {
		return nil, &scenario.ParseError{Path: path, Err: err}
	}

	cs, err := uc.compiler.Compile(scenario.Scenario{Path: path, Entries: entries})
	if err != nil {
		return nil, &scenario.ParseError{Path: path, Err: err}
	}

	uc.logger.Debug("loaded scenario", "path", path, "entries", len(cs.Entries))
	return cs, nil
}
