// Package app assembles the advisory watch bot: configuration, logging,
// seen-state storage, the catalog client, the Telegram channel, the monitor
// loop and its schedules.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"cvewatch/internal/advisory"
	"cvewatch/internal/command"
	"cvewatch/internal/compose"
	"cvewatch/internal/config"
	"cvewatch/internal/metrics"
	"cvewatch/internal/monitor"
	"cvewatch/internal/nvd"
	"cvewatch/internal/observability/pprof"
	"cvewatch/internal/retention"
	"cvewatch/internal/runtime/supervisor"
	"cvewatch/internal/seen"
	"cvewatch/internal/transport/telegram"
	logx "cvewatch/pkg/logx"
)

type App struct {
	cfgPath string
	cfg     *config.Config

	log     logx.Logger
	store   seen.Store
	adapter *telegram.Adapter
	mon     *monitor.Monitor
	metrics *metrics.Metrics
	pprof   *pprof.Service
	cron    *cron.Cron
	sup     *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	a := &App{cfgPath: cfgPath, cfg: cfg, log: log}
	if err := a.build(); err != nil {
		log.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.cfg

	// Seen-state store.
	maxTracked := make(map[string]int)
	for _, asset := range cfg.Assets {
		if asset.MaxTracked > 0 {
			maxTracked[asset.Name] = asset.MaxTracked
		}
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return err
	}
	store, err := seen.Open(seen.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
		DefaultMax:  cfg.Monitor.MaxTrackedDefault,
		MaxTracked:  maxTracked,
	}, a.log.With(logx.String("comp", "seen")))
	if err != nil {
		return fmt.Errorf("open seen store: %w", err)
	}
	a.store = store

	// Catalog client.
	srcTimeout, err := config.ParseDurationOrDefault("source.timeout", cfg.Source.Timeout, 15*time.Second)
	if err != nil {
		return err
	}
	maxAge, err := config.ParseDurationOrDefault("source.max_age", cfg.Source.MaxAge, 0)
	if err != nil {
		return err
	}
	source := nvd.NewClient(nvd.Config{
		BaseURL:  cfg.Source.BaseURL,
		APIKey:   cfg.Source.APIKey,
		PageSize: cfg.Source.PageSize,
		Timeout:  srcTimeout,
		MaxAge:   maxAge,
	}, a.log.With(logx.String("comp", "nvd")))

	// Telegram channel.
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		ChatID:      cfg.Telegram.ChatID,
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("init telegram: %w", err)
	}
	a.adapter = adapter

	// Composition and retention.
	marker := cfg.Monitor.BroadcastMarker
	if marker == "" {
		marker = compose.DefaultBroadcastMarker
	}
	composer := compose.Composer{Marker: marker, AssetOrder: cfg.AssetNames()}

	preserve, err := config.ParseDurationOrDefault("retention.preserve_window", cfg.Retention.PreserveWindow, retention.DefaultPreserveWindow)
	if err != nil {
		return err
	}
	sweeper := retention.NewEngine(retention.Config{
		PreserveWindow: preserve,
		HistoryPage:    cfg.Retention.HistoryPage,
		DeletesPerSec:  cfg.Retention.DeletesPerSec,
		Marker:         marker,
	}, adapter, a.log.With(logx.String("comp", "retention")))

	// Metrics are optional; a nil *Metrics no-ops every method.
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Addr, a.log.With(logx.String("comp", "metrics")))
	}

	if cfg.Debug.Enabled {
		pp, err := pprof.New(pprof.Config{
			Addr:  cfg.Debug.Addr,
			Token: cfg.Debug.Token,
		}, a.log.With(logx.String("comp", "pprof")))
		if err != nil {
			return fmt.Errorf("init pprof: %w", err)
		}
		a.pprof = pp
	}

	// Monitor loop.
	pollInterval, err := config.ParseDurationOrDefault("monitor.poll_interval", cfg.Monitor.PollInterval, time.Hour)
	if err != nil {
		return err
	}
	sweepInterval, err := config.ParseDurationOrDefault("monitor.sweep_interval", cfg.Monitor.SweepInterval, 6*time.Hour+20*time.Minute)
	if err != nil {
		return err
	}
	threshold := cfg.Monitor.CriticalThreshold
	if threshold == 0 {
		threshold = advisory.DefaultCriticalThreshold
	}
	assets := make([]advisory.Asset, len(cfg.Assets))
	for i, ac := range cfg.Assets {
		assets[i] = advisory.Asset{
			Name:       ac.Name,
			CPE:        ac.CPE,
			Keywords:   ac.Keywords,
			MaxTracked: ac.MaxTracked,
		}
	}
	a.mon = monitor.New(
		monitor.Config{
			Assets:        assets,
			PollInterval:  pollInterval,
			SweepInterval: sweepInterval,
		},
		source,
		advisory.NewClassifier(threshold),
		store,
		composer,
		adapter,
		sweeper,
		a.metrics,
		a.log.With(logx.String("comp", "monitor")),
	)

	command.NewRouter(a.mon, cfg.Telegram.OwnerUserIDs, a.log.With(logx.String("comp", "command"))).
		Register(adapter.Bot())

	// Schedules: the notification tick on its poll cadence, plus a cheap
	// once-a-minute probe so a due sweep doesn't wait for the next tick.
	a.cron = cron.New()
	if _, err := a.cron.AddFunc(fmt.Sprintf("@every %s", pollInterval), func() {
		if err := a.mon.Tick(a.sup.Context()); err != nil && a.sup.Context().Err() == nil {
			a.log.Warn("scheduled tick failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}
	if _, err := a.cron.AddFunc("@every 1m", func() {
		a.mon.SweepCheck(a.sup.Context())
	}); err != nil {
		return fmt.Errorf("schedule sweep check: %w", err)
	}
	return nil
}

// Start brings up polling, schedules and the first tick. It returns once
// startup is complete; the work continues on supervisor goroutines.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, a.log.With(logx.String("comp", "supervisor")))

	a.adapter.Start(a.sup.Context())

	if a.metrics != nil {
		a.sup.Go("metrics", func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = a.metrics.Shutdown(shCtx)
			}()
			return a.metrics.Serve()
		})
	}

	if a.pprof != nil {
		a.sup.Go("pprof", func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = a.pprof.Shutdown(shCtx)
			}()
			return a.pprof.Serve()
		})
	}

	a.sup.Go("config-watch", func(ctx context.Context) error {
		return config.Watch(ctx, a.cfgPath, a.log.With(logx.String("comp", "config")))
	})

	if _, err := a.adapter.Send(a.sup.Context(), "Advisory watch online."); err != nil {
		// The channel may be briefly unreachable at boot; the loop still runs.
		a.log.Warn("startup announcement failed", logx.Err(err))
	}

	a.cron.Start()

	// First tick immediately instead of waiting out a full poll interval.
	a.sup.Go("first-tick", func(ctx context.Context) error {
		return a.mon.Tick(ctx)
	})

	a.log.Info("advisory watch started",
		logx.Int("assets", len(a.cfg.Assets)),
		logx.String("driver", a.cfg.Storage.Driver))
	return nil
}

// Stop shuts everything down in reverse order and flushes seen state.
func (a *App) Stop(ctx context.Context) error {
	cronCtx := a.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	var firstErr error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && ctx.Err() == nil {
			firstErr = err
		}
	}
	if err := a.adapter.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	a.log.Info("advisory watch stopped")
	a.log.Close()
	return firstErr
}
