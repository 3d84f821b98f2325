// Command turntrader runs the turn-based paper-trading session behind a
// small JSON API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/paperbtc/turntrader/internal/api"
	"github.com/paperbtc/turntrader/internal/config"
	"github.com/paperbtc/turntrader/internal/engine"
	"github.com/paperbtc/turntrader/internal/fees"
	"github.com/paperbtc/turntrader/internal/provider"
	"github.com/paperbtc/turntrader/internal/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Optional .env for values the config expands via ${VAR}.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Environment.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	now := time.Now()
	anchor, err := cfg.AnchorTime(now)
	if err != nil {
		logger.Fatalf("Failed to resolve anchor time: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"symbol":   cfg.Session.Symbol,
		"interval": cfg.Session.Interval,
		"anchor":   anchor.Format(time.RFC3339),
		"source":   cfg.Provider.Source,
	}).Info("Starting paper-trading session")

	candleProvider := buildProvider(cfg, anchor, logger)
	feeModel := fees.NewModel(cfg.FeeSchedule(), nil)

	eng, err := engine.New(engine.Config{
		StartingCash: cfg.Session.StartingCash,
		Anchor:       anchor,
		Interval:     cfg.GetInterval(),
		Lookback:     cfg.GetLookback(),
		FetchTimeout: cfg.GetProviderTimeout(),
	}, candleProvider, feeModel, logger)
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}

	server := api.NewServer(api.Config{
		Port:      cfg.Server.Port,
		AuthToken: cfg.Server.AuthToken,
	}, eng, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		select {
		case sig := <-sigChan:
			logger.Infof("Received signal %s, shutting down", sig)
		case <-gctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Server shutdown error")
		}

		if cfg.Storage.Path != "" {
			dumpSession(cfg.Storage.Path, eng, logger)
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Info("Session stopped")
}

// buildProvider assembles the candle source: the Yahoo client wrapped in
// retry and circuit breaker layers, or a synthetic random walk for offline
// runs.
func buildProvider(cfg *config.Config, anchor time.Time, logger *logrus.Logger) provider.Provider {
	if cfg.Provider.Source == "synthetic" {
		// Enough candles to cover the lookback window plus a long session.
		iv := cfg.GetInterval()
		n := int(cfg.GetLookback()/iv.Duration()) + 500
		start := anchor.Add(-cfg.GetLookback())
		return provider.NewSynthetic(start, iv, n, 50000)
	}

	yahoo := provider.NewYahooClient(cfg.Session.Symbol).
		WithBaseURL(cfg.Provider.BaseURL).
		WithTimeout(cfg.GetProviderTimeout())

	retryCfg := provider.DefaultRetryConfig
	if cfg.Provider.Retry.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.Provider.Retry.MaxRetries
	}
	if d, err := time.ParseDuration(cfg.Provider.Retry.InitialBackoff); err == nil && d > 0 {
		retryCfg.InitialBackoff = d
	}
	if d, err := time.ParseDuration(cfg.Provider.Retry.MaxBackoff); err == nil && d > 0 {
		retryCfg.MaxBackoff = d
	}

	breakerCfg := provider.DefaultCircuitBreakerSettings()
	if cfg.Provider.Breaker.MaxRequests > 0 {
		breakerCfg.MaxRequests = cfg.Provider.Breaker.MaxRequests
	}
	if cfg.Provider.Breaker.MinRequests > 0 {
		breakerCfg.MinRequests = cfg.Provider.Breaker.MinRequests
	}
	if cfg.Provider.Breaker.FailureRatio > 0 {
		breakerCfg.FailureRatio = cfg.Provider.Breaker.FailureRatio
	}
	if d, err := time.ParseDuration(cfg.Provider.Breaker.Interval); err == nil && d > 0 {
		breakerCfg.Interval = d
	}
	if d, err := time.ParseDuration(cfg.Provider.Breaker.Timeout); err == nil && d > 0 {
		breakerCfg.Timeout = d
	}

	retrying := provider.NewRetryProvider(yahoo, logger, retryCfg)
	return provider.NewCircuitBreakerProvider(retrying, breakerCfg, logger)
}

func dumpSession(path string, eng *engine.Engine, logger *logrus.Logger) {
	store, err := storage.NewSnapshotStore(path)
	if err != nil {
		logger.WithError(err).Warn("Skipping session dump")
		return
	}
	if err := store.Save(eng.Snapshot(), eng.Entries()); err != nil {
		logger.WithError(err).Warn("Failed to save session dump")
		return
	}
	logger.WithField("path", path).Info("Session dump saved")
}
