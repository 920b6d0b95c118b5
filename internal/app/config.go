package app

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/sophialabs/httpmocker/pkg/mapper"
	"github.com/sophialabs/httpmocker/pkg/mocker"
	"github.com/sophialabs/httpmocker/pkg/policy"
)

// Config holds all configurable parameters for the proxy host.
type Config struct {
	// ScenarioDir holds the scenarios served as mocks.
	ScenarioDir string
	// RecordDir receives recordings. Defaults to ScenarioDir.
	RecordDir string
	// Upstream is the base URL requests are forwarded to.
	Upstream string

	Mode   string
	Format string // json or yaml
	Policy string // mirror, server or single
	Cache  string // request, process or watch

	RecordInMixed      bool
	IgnoreRecordErrors bool
	DelayFactor        float64
	DefaultDelay       time.Duration

	Port      int
	TraceSize int
	LogLevel  string
	LogFormat string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		ScenarioDir: "./mock",
		Mode:        "mixed",
		Format:      "json",
		Policy:      "mirror",
		Cache:       "watch",
		DelayFactor: 1,

		Port:      8080,
		TraceSize: 200,
		LogLevel:  "info",
		LogFormat: "text",

		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// MockerConfig translates the host settings into an interceptor config.
func (c Config) MockerConfig() (mocker.Config, error) {
	cfg := mocker.DefaultConfig()

	mode, err := mocker.ParseMode(c.Mode)
	if err != nil {
		return cfg, err
	}
	cfg.Mode = mode

	m, err := parseMapper(c.Format)
	if err != nil {
		return cfg, err
	}
	cfg.Mapper = m

	p, err := parsePolicy(c.Policy, m.Extension())
	if err != nil {
		return cfg, err
	}
	cfg.FilingPolicy = p

	cache, err := mocker.ParseCacheMode(c.Cache)
	if err != nil {
		return cfg, err
	}
	cfg.Cache = cache

	if c.DelayFactor < 0 {
		return cfg, fmt.Errorf("delay factor must not be negative, got %v", c.DelayFactor)
	}
	cfg.DelayFactor = c.DelayFactor
	cfg.DefaultDelay = c.DefaultDelay
	cfg.RecordInMixed = c.RecordInMixed
	cfg.TraceSize = c.TraceSize

	recordDir := c.RecordDir
	if recordDir == "" {
		recordDir = c.ScenarioDir
	}
	cfg.Recording = mocker.Recording{Dir: recordDir, IgnoreErrors: c.IgnoreRecordErrors}
	if c.ScenarioDir != "" {
		cfg.Source = os.DirFS(c.ScenarioDir)
		cfg.WatchDir = c.ScenarioDir
	}
	return cfg, nil
}

// UpstreamURL parses Upstream; an empty value yields nil.
func (c Config) UpstreamURL() (*url.URL, error) {
	if c.Upstream == "" {
		return nil, nil
	}
	u, err := url.Parse(c.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q: scheme and host are required", c.Upstream)
	}
	return u, nil
}

func parseMapper(format string) (mapper.Mapper, error) {
	switch format {
	case "json", "":
		return mapper.JSON{}, nil
	case "yaml", "yml":
		return mapper.YAML{}, nil
	default:
		return nil, fmt.Errorf("unknown scenario format %q", format)
	}
}

func parsePolicy(name, ext string) (policy.FilingPolicy, error) {
	switch name {
	case "mirror", "":
		return policy.MirrorPath{Extension: ext}, nil
	case "server":
		return policy.ServerSpecific{Extension: ext}, nil
	case "single":
		return policy.SingleFolder{Extension: ext}, nil
	default:
		return nil, fmt.Errorf("unknown filing policy %q", name)
	}
}
