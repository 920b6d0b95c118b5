package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	inboundhttp "github.com/sophialabs/httpmocker/internal/infrastructure/inbound/http"
	"github.com/sophialabs/httpmocker/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/httpmocker/pkg/mocker"
)

// ErrNoUpstream is returned for forwarded requests when no upstream is configured.
var ErrNoUpstream = errors.New("no upstream configured")

// App is the thin lifecycle manager around the interceptor and the proxy server.
type App struct {
	cfg         Config
	logger      *logging.SlogLogger
	interceptor *mocker.Interceptor
	httpServer  *http.Server
}

// New constructs the application: logger, interceptor and HTTP server.
func New(cfg Config) (*App, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	slogger := logging.NewHandlerLogger(logging.Options{Level: level, Format: format, Output: os.Stdout})
	logger := logging.New(slogger)

	upstream, err := cfg.UpstreamURL()
	if err != nil {
		return nil, err
	}
	mcfg, err := cfg.MockerConfig()
	if err != nil {
		return nil, err
	}
	mcfg.Logger = slogger
	if upstream == nil {
		mcfg.Next = noUpstream{}
	}

	interceptor, err := mocker.New(mcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create interceptor: %w", err)
	}

	server := inboundhttp.NewServer(interceptor, upstream, logger.With("component", "proxy"))
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		cfg:         cfg,
		logger:      logger,
		interceptor: interceptor,
		httpServer:  httpServer,
	}, nil
}

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	defer a.interceptor.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting httpmocker proxy",
			"addr", a.httpServer.Addr,
			"upstream", a.cfg.Upstream,
			"scenarios", a.cfg.ScenarioDir,
			"mode", a.interceptor.Mode(),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.logger.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}

// Interceptor returns the interceptor behind the proxy.
func (a *App) Interceptor() *mocker.Interceptor {
	return a.interceptor
}

// noUpstream fails every forwarded request.
type noUpstream struct{}

func (noUpstream) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, ErrNoUpstream
}
