package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/gateway"
	"github.com/leadfoundry/zapagent/internal/ingest"
	"github.com/leadfoundry/zapagent/internal/pipeline"
	"github.com/leadfoundry/zapagent/internal/providers"
	"github.com/leadfoundry/zapagent/internal/store"
	"github.com/leadfoundry/zapagent/internal/store/lite"
	"github.com/leadfoundry/zapagent/internal/store/pg"
	"github.com/leadfoundry/zapagent/internal/worker"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent worker (bridge consumer + follow-up sweeper)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Bridge.URL == "" {
		slog.Error("bridge url not configured (set bridge.url or ZAPAGENT_BRIDGE_URL)")
		os.Exit(1)
	}

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}

	registry := providers.FromConfig(cfg.Providers)
	if len(registry.List()) == 0 {
		slog.Warn("no LLM provider configured; replies fall back to transfer messages")
	} else {
		slog.Info("providers configured", "names", registry.List())
	}

	sender := gateway.NewClient(cfg.Gateway)
	pipe := pipeline.New(stores, registry, sender, cfg, slog.Default())
	consumer := ingest.NewConsumer(cfg, stores, pipe, slog.Default())
	sweeper := worker.NewSweeper(cfg, stores, pipe, slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("zapagent starting", "version", Version, "mode", cfg.Database.Mode)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("bridge consumer stopped", "error", err)
			stop()
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("follow-up sweeper stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
	pipe.Wait()
}

func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.IsManagedMode() {
		return pg.NewStores(cfg.Database.PostgresDSN)
	}
	return lite.NewStores(config.ExpandHome(cfg.Database.SQLitePath))
}
