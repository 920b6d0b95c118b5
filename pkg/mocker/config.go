package mocker

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sophialabs/httpmocker/internal/domain/trace"
	"github.com/sophialabs/httpmocker/internal/infrastructure/usecases"
	"github.com/sophialabs/httpmocker/pkg/mapper"
	"github.com/sophialabs/httpmocker/pkg/policy"
)

// DynamicMock produces a response for a request, or nil to decline it.
type DynamicMock = usecases.DynamicMock

// Order selects whether static scenarios or dynamic mocks are consulted first.
type Order = usecases.Order

const (
	StaticFirst  = usecases.StaticFirst
	DynamicFirst = usecases.DynamicFirst
)

// TraceEntry records how one intercepted request was handled.
type TraceEntry = trace.Entry

// CacheMode controls how long compiled scenarios are kept.
type CacheMode int

const (
	// CachePerRequest reads the scenario file again for every request.
	CachePerRequest CacheMode = iota
	// CacheProcess loads each scenario once.
	CacheProcess
	// CacheWatch loads each scenario once and drops it when the file
	// changes under WatchDir.
	CacheWatch
)

// Recording configures where forwarded exchanges are written.
type Recording struct {
	// Dir is the root of recorded scenarios. Recording is unavailable when
	// empty.
	Dir string
	// FilingPolicy defaults to Config.FilingPolicy.
	FilingPolicy policy.FilingPolicy
	// Mapper defaults to Config.Mapper.
	Mapper mapper.Mapper
	// IgnoreErrors logs recording failures instead of failing the request.
	IgnoreErrors bool
}

// Config configures an Interceptor. Start from DefaultConfig.
type Config struct {
	Mode Mode
	// FilingPolicy maps requests to scenario paths. Defaults to MirrorPath
	// with the mapper's extension.
	FilingPolicy policy.FilingPolicy
	// Source holds the static scenarios and their body files. Defaults to
	// Recording.Dir when unset.
	Source fs.FS
	// Mapper decodes scenario files. Defaults to mapper.JSON.
	Mapper       mapper.Mapper
	DynamicMocks []DynamicMock
	Order        Order

	Recording     Recording
	RecordInMixed bool

	// DelayFactor scales every simulated delay; 0 disables delays.
	DelayFactor float64
	// DefaultDelay applies to responses that declare no delay.
	DefaultDelay time.Duration

	Cache CacheMode
	// WatchDir is the directory watched in CacheWatch mode, normally the
	// directory behind Source. Defaults to Recording.Dir.
	WatchDir string

	// Logger defaults to a logger that discards everything.
	Logger    *slog.Logger
	TraceSize int
	// Next performs real network calls. Defaults to http.DefaultTransport.
	Next http.RoundTripper
}

// DefaultConfig returns a config that serves mocks only and applies delays
// unscaled.
func DefaultConfig() Config {
	return Config{
		Mode:        Enabled,
		Mapper:      mapper.JSON{},
		Order:       StaticFirst,
		DelayFactor: 1,
		Cache:       CachePerRequest,
		TraceSize:   trace.DefaultSize,
	}
}

var cacheModeNames = [...]string{
	CachePerRequest: "request",
	CacheProcess:    "process",
	CacheWatch:      "watch",
}

func (c CacheMode) String() string {
	if c < CachePerRequest || c > CacheWatch {
		return fmt.Sprintf("CacheMode(%d)", int(c))
	}
	return cacheModeNames[c]
}

// ParseCacheMode parses "request", "process" or "watch", ignoring case.
func ParseCacheMode(s string) (CacheMode, error) {
	for c, name := range cacheModeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return CacheMode(c), nil
		}
	}
	return 0, fmt.Errorf("invalid cache mode %q", s)
}
