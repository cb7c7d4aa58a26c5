// Package server builds the gateway's long-lived dependencies and runs the
// HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/edison-gateway/internal/api"
	"github.com/JakeFAU/edison-gateway/internal/config"
	"github.com/JakeFAU/edison-gateway/internal/edison"
	"github.com/JakeFAU/edison-gateway/internal/logging"
	"github.com/JakeFAU/edison-gateway/internal/telemetry"
)

// Version is reported as the service version on traces.
var Version = "dev"

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	apiServer      *api.Server
	httpClient     *http.Client
	tracerProvider *sdktrace.TracerProvider
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.Edison.HTTPTimeout},
	}

	var tp trace.TracerProvider
	if cfg.Tracing.Enabled {
		app.tracerProvider, err = telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName, Version)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		tp = app.tracerProvider
	}

	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("edison_base_url", cfg.Edison.BaseURL),
		zap.Bool("tracing", cfg.Tracing.Enabled),
	)

	factory := NewClientFactory(cfg.Edison, app.httpClient, logger.Named("edison"), tp)
	app.apiServer = api.NewServer(cfg, factory, logger.Named("api"))
	return app, nil
}

// NewClientFactory returns an api.ClientFactory that binds a fresh
// edison.Client to each caller's token. All clients share httpClient so
// connections are pooled across requests.
func NewClientFactory(
	cfg config.EdisonConfig,
	httpClient *http.Client,
	logger *zap.Logger,
	tp trace.TracerProvider,
) api.ClientFactory {
	clientCfg := edison.Config{
		BaseURL:        cfg.BaseURL,
		HTTPTimeout:    cfg.HTTPTimeout,
		PollInterval:   cfg.PollInterval,
		UserAgent:      cfg.UserAgent,
		HTTPClient:     httpClient,
		Logger:         logger,
		TracerProvider: tp,
	}
	return func(token string) (api.TaskClient, error) {
		client, err := edison.NewClient(clientCfg, token)
		if err != nil {
			return nil, fmt.Errorf("create edison client: %w", err)
		}
		return client, nil
	}
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP until ctx is canceled or SIGINT/SIGTERM arrives, then
// drains in-flight requests for up to the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	if err := <-serveErr; err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return closeErr
}

// Close releases pooled connections and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	a.httpClient.CloseIdleConnections()
	var errs []error
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	a.logger.Info("shutdown complete")
	// Sync reports EINVAL for console outputs on some platforms.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
