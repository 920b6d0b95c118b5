package usecases

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/sophialabs/httpmocker/internal/domain/trace"
	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
	"github.com/sophialabs/httpmocker/internal/infrastructure/services"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// DefaultMediaType is served when a descriptor declares none.
const DefaultMediaType = "application/octet-stream"

// BuildResponseResult is the outcome of materializing a resolution.
type BuildResponseResult struct {
	Response    *scenario.Response
	RateLimited bool
}

// BuildResponseUseCase turns a resolved descriptor into a concrete response.
type BuildResponseUseCase struct {
	source       fs.FS
	clock        ports.Clock
	rateLimiter  ports.RateLimiter
	logger       ports.Logger
	delayFactor  float64
	defaultDelay time.Duration
}

// NewBuildResponseUseCase creates a new use case. source resolves body files
// and may be nil when every body is inline.
func NewBuildResponseUseCase(
	source fs.FS,
	clock ports.Clock,
	rateLimiter ports.RateLimiter,
	logger ports.Logger,
	delayFactor float64,
	defaultDelay time.Duration,
) *BuildResponseUseCase {
	return &BuildResponseUseCase{
		source:       source,
		clock:        clock,
		rateLimiter:  rateLimiter,
		logger:       logger,
		delayFactor:  delayFactor,
		defaultDelay: defaultDelay,
	}
}

// Execute applies the rate limit and simulated delay, then loads the body.
// A resolution carrying a network error yields a *scenario.SimulatedError
// after the delay.
func (uc *BuildResponseUseCase) Execute(ctx context.Context, res Resolution) (BuildResponseResult, error) {
	d := res.Descriptor

	if d != nil && d.RateLimit != nil && uc.rateLimiter != nil {
		key := rateLimitKey(res)
		if !uc.rateLimiter.Allow(ctx, key, d.RateLimit.Rate, d.RateLimit.Burst) {
			uc.logger.Debug("rate limited", "key", key)
			return BuildResponseResult{Response: tooManyRequests(), RateLimited: true}, nil
		}
	}

	var delay time.Duration
	if d != nil {
		delay = d.Delay
	}
	if err := uc.sleep(ctx, delay); err != nil {
		return BuildResponseResult{}, err
	}

	if res.Error != nil {
		return BuildResponseResult{}, &scenario.SimulatedError{Type: res.Error.Type, Message: res.Error.Message}
	}
	if d == nil {
		return BuildResponseResult{}, fmt.Errorf("resolution from %s has no response", res.Source)
	}

	body, err := uc.body(res)
	if err != nil {
		return BuildResponseResult{}, err
	}

	resp := &scenario.Response{
		Code:      d.Code,
		MediaType: d.MediaType,
		Headers:   append([]scenario.KeyValue(nil), d.Headers...),
		Body:      body,
	}
	if resp.Code == 0 {
		resp.Code = http.StatusOK
	}
	if resp.MediaType == "" {
		resp.MediaType = DefaultMediaType
	}
	if !hasHeader(resp.Headers, "Content-Type") {
		resp.Headers = append(resp.Headers, scenario.KeyValue{Name: "Content-Type", Value: resp.MediaType})
	}
	return BuildResponseResult{Response: resp}, nil
}

// sleep waits for the descriptor delay, or the default delay when the
// descriptor has none, scaled by the delay factor.
func (uc *BuildResponseUseCase) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		delay = uc.defaultDelay
	}
	scaled := time.Duration(float64(delay) * uc.delayFactor)
	if scaled <= 0 {
		return nil
	}
	if err := uc.clock.SleepContext(ctx, scaled); err != nil {
		uc.logger.Debug("simulated delay cancelled", "delay", scaled, "error", err)
		return err
	}
	return nil
}

func (uc *BuildResponseUseCase) body(res Resolution) ([]byte, error) {
	d := res.Descriptor
	if d.Body != "" || d.BodyFile == "" {
		return []byte(d.Body), nil
	}

	base := ""
	if res.Source == trace.SourceStatic {
		base = res.ScenarioPath
	}
	p, err := services.ResolveBodyPath(base, d.BodyFile)
	if err != nil {
		return nil, &scenario.BodyAssetError{Path: d.BodyFile, Err: err}
	}
	if uc.source == nil {
		return nil, &scenario.BodyAssetError{Path: p, Err: fs.ErrNotExist}
	}
	data, err := fs.ReadFile(uc.source, p)
	if err != nil {
		return nil, &scenario.BodyAssetError{Path: p, Err: err}
	}
	return data, nil
}

func rateLimitKey(res Resolution) string {
	if res.Source == trace.SourceDynamic {
		return "dynamic#" + strconv.Itoa(res.Index)
	}
	return res.ScenarioPath + "#" + strconv.Itoa(res.Index)
}

func tooManyRequests() *scenario.Response {
	return &scenario.Response{
		Code:      http.StatusTooManyRequests,
		MediaType: "text/plain; charset=utf-8",
		Headers:   []scenario.KeyValue{{Name: "Content-Type", Value: "text/plain; charset=utf-8"}},
		Body:      []byte("rate limit exceeded\n"),
	}
}

func hasHeader(headers []scenario.KeyValue, name string) bool {
	name = http.CanonicalHeaderKey(name)
	for _, h := range headers {
		if http.CanonicalHeaderKey(h.Name) == name {
			return true
		}
	}
	return false
}
