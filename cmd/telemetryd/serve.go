package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/mutker/telemetryd/internal/api"
	"codeberg.org/mutker/telemetryd/internal/collector"
	"codeberg.org/mutker/telemetryd/internal/config"
	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/pid"
	"codeberg.org/mutker/telemetryd/internal/sampler"
	"codeberg.org/mutker/telemetryd/internal/scheduler"
	"codeberg.org/mutker/telemetryd/internal/settings"
	"codeberg.org/mutker/telemetryd/internal/sink"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collector and HTTP API until interrupted",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pid.Write(cfg.PIDFile); err != nil {
		log.ErrorWithCode(err).Msg("Refusing to start")
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			log.WarnWithCode(err).Msg("Failed to remove PID file")
		}
	}()

	e, err := openEnv(ctx, cfg, log)
	if err != nil {
		log.ErrorWithCode(err).Msg("Failed to initialize")
		return err
	}
	defer e.Close()

	interval, err := bootstrap(ctx, cfg, e)
	if err != nil {
		log.ErrorWithCode(err).Msg("Failed to bootstrap store")
		return err
	}

	sinks, err := sink.New(ctx, sinkConfig(cfg), log.With("sink"))
	if err != nil {
		log.ErrorWithCode(err).Msg("Failed to connect sinks")
		return err
	}
	hub := api.NewHub(log.With("stream"))
	sinks.Add(hub)
	defer func() {
		if err := sinks.Close(); err != nil {
			log.WarnWithCode(err).Msg("Failed to close sinks")
		}
	}()

	dispatcher := sampler.NewDispatcher(log.With("sampler"))
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.WarnWithCode(err).Msg("Failed to release samplers")
		}
	}()

	coll := collector.New(e.registry, dispatcher, e.store, sinks, log.With("collector"))

	if cfg.Collection.Seed {
		gen := sampler.NewSynthetic()
		if _, err := coll.Seed(ctx, gen, time.Now(), cfg.Collection.SeedPoints, cfg.Collection.SeedSpacing); err != nil {
			log.WarnWithCode(err).Msg("Seeding failed, continuing without history")
		}
	}

	srv, err := api.New(api.Deps{
		Config:    cfg.Server,
		Registry:  e.registry,
		Store:     e.store,
		Collector: coll,
		Interval:  interval,
		Hub:       hub,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		log.ErrorWithCode(err).Str("addr", cfg.Server.Addr).Msg("Failed to start API server")
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.WarnWithCode(err).Msg("API server did not shut down cleanly")
		}
	}()

	sched := scheduler.New(coll, interval, scheduler.RealClock(), scheduler.Config{
		Backoff:         cfg.Collection.RetryBackoff,
		DefaultInterval: cfg.Collection.DefaultInterval,
	}, log.With("scheduler"))

	log.Info().
		Int("devices", e.registry.Len()).
		Str("store", cfg.Store.Driver).
		Msg("telemetryd started")

	if err := sched.Run(ctx); err != nil {
		return err
	}

	log.Info().Msg("Received termination signal, shutting down")

	return nil
}

// bootstrap mirrors the registry into the store and makes sure the
// interval setting exists.
func bootstrap(ctx context.Context, cfg *config.Config, e *env) (*settings.StoreInterval, error) {
	errFactory := errors.New()

	for _, d := range e.registry.List() {
		if err := e.store.UpsertDevice(ctx, d); err != nil {
			return nil, errFactory.Wrap(errors.ErrBootstrap, err)
		}
	}

	interval := settings.NewStoreInterval(e.store, cfg.Collection.DefaultInterval)
	if err := interval.EnsureDefault(ctx); err != nil {
		return nil, errFactory.Wrap(errors.ErrBootstrap, err)
	}

	return interval, nil
}

// newCollector builds a collector with the built-in samplers for one-shot
// commands. The returned func releases samplers and sinks.
func newCollector(ctx context.Context, cfg *config.Config, e *env, log logger.Logger) (*collector.Collector, func(), error) {
	sinks, err := sink.New(ctx, sinkConfig(cfg), log.With("sink"))
	if err != nil {
		return nil, nil, err
	}
	dispatcher := sampler.NewDispatcher(log.With("sampler"))

	release := func() {
		if err := dispatcher.Close(); err != nil {
			log.WarnWithCode(err).Msg("Failed to release samplers")
		}
		if err := sinks.Close(); err != nil {
			log.WarnWithCode(err).Msg("Failed to close sinks")
		}
	}

	return collector.New(e.registry, dispatcher, e.store, sinks, log.With("collector")), release, nil
}
