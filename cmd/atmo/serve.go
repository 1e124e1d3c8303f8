package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/atmo/internal/circuitbreaker"
	"github.com/kjstillabower/atmo/internal/config"
	httphandler "github.com/kjstillabower/atmo/internal/http"
	"github.com/kjstillabower/atmo/internal/lifecycle"
	"github.com/kjstillabower/atmo/internal/locate"
	"github.com/kjstillabower/atmo/internal/observability"
)

type serveCmd struct {
	Port string `help:"Listen port, overrides server.port." short:"p"`
}

func (c *serveCmd) Run(g *Globals) error {
	logger, err := observability.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := g.loadConfig()
	if err != nil {
		logger.Error("config", zap.Error(err))
		return err
	}
	if c.Port != "" {
		cfg.ServerPort = c.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comp, err := build(ctx, cfg, logger, locate.RequestGeolocator{})
	if err != nil {
		logger.Error("startup", zap.Error(err))
		return err
	}
	defer comp.Close(logger)

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		logger.Error("listen", zap.Error(err))
		return err
	}
	srv := newServer(cfg, comp, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", ln.Addr().String()), zap.String("version", version))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	lifecycle.SetPhase(lifecycle.Serving)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("server", zap.Error(err))
			return err
		}
	}
	stop()

	shutdown(cfg, srv, logger)
	return nil
}

func newServer(cfg *config.Config, comp *components, logger *zap.Logger) *http.Server {
	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:     cfg.DegradedWindow,
		DegradedErrorPct:   cfg.DegradedErrorPct,
		DegradedMinSamples: cfg.DegradedMinSamples,
		OverloadWindow:     cfg.OverloadWindow,
		OverloadDenials:    cfg.OverloadDenials,
		CachePing:          comp.cachePing,
		Version:            version,
	}
	if comp.breaker != nil {
		healthConfig.BreakerState = func() circuitbreaker.State { return comp.breaker.State() }
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	handler := httphandler.NewHandler(comp.service, comp.tracker, healthConfig, logger)
	handler.TrustProxies(cfg.TrustedProxies)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		Tracker:        comp.tracker,
		RequestTimeout: cfg.RequestTimeout,
	})

	return &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}
}

// shutdown drains the server: health flips to 503, the listener closes,
// in-flight requests finish, then logs flush.
func shutdown(cfg *config.Config, srv *http.Server, logger *zap.Logger) {
	logger.Info("graceful shutdown triggered")
	lifecycle.SetPhase(lifecycle.ShuttingDown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
