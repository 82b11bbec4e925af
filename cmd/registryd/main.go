// Command registryd runs a job registry node: the dispatcher, the finished
// job collector and an operations endpoint, all against one shared store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/jdziat/job-registry/pkg/config"
	"github.com/jdziat/job-registry/pkg/dispatcher"
	"github.com/jdziat/job-registry/pkg/lifecycle"
	"github.com/jdziat/job-registry/pkg/registry"
	"github.com/jdziat/job-registry/pkg/schedule"
	"github.com/jdziat/job-registry/pkg/stats"
	"github.com/jdziat/job-registry/pkg/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("REGISTRY_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(logger, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("registry stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(c config.LogConfig) *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(logger *slog.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN,
		storage.MaxOpenConns(cfg.Database.MaxOpenConns),
		storage.MaxIdleConns(cfg.Database.MaxIdleConns),
		storage.ConnMaxLifetime(cfg.Database.ConnMaxLifetime),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	reg := registry.New(store,
		registry.WithLogger(logger),
		registry.MaxAttemptsBeforeErrorState(cfg.Health.MaxAttemptsBeforeErrorState),
	)

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	g, gCtx := errgroup.WithContext(ctx)

	sc := stats.NewStatsCollector(reg, metrics, stats.WithLogger(logger))
	g.Go(func() error {
		return ignoreCanceled(sc.Start(gCtx))
	})

	if cfg.Dispatch.Enabled {
		d := dispatcher.New(reg,
			dispatcher.Interval(cfg.Dispatch.Interval),
			dispatcher.NodeID(cfg.Dispatch.NodeID),
			dispatcher.WithOrdering(dispatcher.Ordering{
				StatusRanks: dispatcher.DefaultOrdering().StatusRanks,
				TypeTiers:   cfg.Dispatch.Tiers(),
			}),
			dispatcher.WithLogger(logger),
			dispatcher.WithMetrics(metrics),
		)
		g.Go(func() error {
			return ignoreCanceled(d.Start(gCtx))
		})
	}

	if cfg.GC.Enabled {
		sched, err := schedule.Parse(cfg.GC.Schedule)
		if err != nil {
			return err
		}
		c := lifecycle.NewCollector(reg, sched, cfg.GC.MinAge, lifecycle.WithCollectorLogger(logger))
		g.Go(func() error {
			return ignoreCanceled(c.Start(gCtx))
		})
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           newRouter(store, metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("serving operations endpoint", "addr", cfg.HTTP.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("operations endpoint: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
