// Command tracker runs the 0DTE trade tracker: it generates delta-targeted
// trades at the open, marks them to market on a fixed cadence, and settles
// them exactly once at the close.
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

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wfarrell/condortrack/internal/config"
	"github.com/wfarrell/condortrack/internal/dashboard"
	"github.com/wfarrell/condortrack/internal/marketdata"
	"github.com/wfarrell/condortrack/internal/models"
	"github.com/wfarrell/condortrack/internal/monitor"
	"github.com/wfarrell/condortrack/internal/storage"
	"github.com/wfarrell/condortrack/internal/strategy"
)

// Tracker wires the builder, monitor, and storage behind one scheduler.
type Tracker struct {
	config   *config.Config
	storage  storage.Interface
	provider marketdata.Provider
	builder  *strategy.Builder
	monitor  *monitor.Monitor
	logger   *logrus.Logger
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Environment.LogLevel)
	logger.WithFields(logrus.Fields{
		"mode":    cfg.Environment.Mode,
		"symbols": cfg.Strategy.Symbols,
	}).Info("Starting trade tracker")

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close storage")
		}
	}()

	tradier := marketdata.NewTradierClient(cfg.MarketData.APIKey, cfg.MarketData.Sandbox, logger)
	provider := marketdata.NewCircuitBreakerProvider(tradier, logger)

	venue := cfg.Venue()
	builderCfg := strategy.Config{
		DeltaTarget:     cfg.Strategy.DeltaTarget,
		WingWidth:       cfg.Strategy.WingWidth,
		GridPoints:      cfg.Strategy.GridPoints,
		UnderlyingRange: cfg.Strategy.UnderlyingRange,
		Venue:           venue,
	}

	tracker := &Tracker{
		config:   cfg,
		storage:  store,
		provider: provider,
		builder:  strategy.NewBuilder(provider, store, builderCfg, logger),
		monitor:  monitor.NewMonitor(store, venue, logger),
		logger:   logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping tracker")
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Dashboard.Enabled {
		srv := dashboard.NewServer(dashboard.Config{
			Port:    cfg.Dashboard.Port,
			Symbols: cfg.Strategy.Symbols,
		}, store, provider, logger)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return tracker.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Tracker error: %v", err)
	}
	logger.Info("Tracker stopped")
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// Run executes the tracking loop until the context is canceled. One cycle
// runs immediately, then on the configured cadence.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.config.GetCheckInterval())
	defer ticker.Stop()

	t.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.runCycle(ctx)
		}
	}
}

// runCycle generates missing trades for today, then marks every open leg.
// Symbols are processed concurrently; one symbol failing does not stop the
// others, and nothing here is fatal to the loop.
func (t *Tracker) runCycle(ctx context.Context) {
	now := time.Now()
	if !t.config.IsWithinTradingHours(now) {
		t.logger.WithFields(logrus.Fields{
			"start": t.config.Schedule.TradingStart,
			"end":   t.config.Schedule.TradingEnd,
		}).Debug("Outside trading hours, skipping cycle")
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, symbol := range t.config.Strategy.Symbols {
		symbol := symbol
		g.Go(func() error {
			if err := t.ensureTrades(ctx, symbol, now); err != nil {
				t.logger.WithError(err).WithField("symbol", symbol).Error("Trade generation failed")
			}
			if err := t.monitor.Cycle(ctx, t.provider, symbol); err != nil {
				t.logger.WithError(err).WithField("symbol", symbol).Error("Monitor cycle failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ensureTrades creates one trade per configured strategy type for today's
// expiration, unless one already exists. Skip conditions (no quote, thin
// chain) are logged and retried next cycle.
func (t *Tracker) ensureTrades(ctx context.Context, symbol string, now time.Time) error {
	expiration := now.In(t.config.Venue()).Format("2006-01-02")

	trades, err := t.storage.ListTrades(ctx, symbol)
	if err != nil {
		return err
	}
	existing := make(map[models.StrategyType]bool)
	for _, tr := range trades {
		if tr.ExpirationDate == expiration {
			existing[tr.StrategyType] = true
		}
	}

	for _, name := range t.config.Strategy.Types {
		st := models.StrategyType(name)
		if existing[st] {
			continue
		}
		if _, err := t.builder.Build(ctx, symbol, st, expiration); err != nil {
			if strategy.IsSkip(err) {
				t.logger.WithError(err).WithFields(logrus.Fields{
					"symbol":   symbol,
					"strategy": st,
				}).Warn("Skipping trade generation this cycle")
				continue
			}
			return err
		}
	}
	return nil
}
