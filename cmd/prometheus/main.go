package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vjranagit/rangeql/internal/config"
	"github.com/vjranagit/rangeql/pkg/api"
	"github.com/vjranagit/rangeql/pkg/metricssink"
	"github.com/vjranagit/rangeql/pkg/scheduler"
	"github.com/vjranagit/rangeql/pkg/storage"
)

const version = "0.3.0"

func main() {
	root := &cobra.Command{
		Use:     "rangeql",
		Short:   "Streaming range-vector query engine",
		Version: version,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP write/query server",
		RunE:  runServe,
	}
	config.RegisterFlags(serve.Flags())

	root.AddCommand(serve)
	root.SetVersionTemplate(fmt.Sprintf("rangeql %s\n", version))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	v := config.BindFlags(cmd.Flags())
	cfg := config.FromViper(v)

	if err := cfg.Validate(); err != nil {
		level.Error(logger).Log("msg", "invalid configuration", "err", err)
		return err
	}

	level.Info(logger).Log("msg", "configuration loaded",
		"listen_addr", cfg.Server.ListenAddr,
		"storage_path", cfg.Storage.Path,
		"retention_days", cfg.Storage.RetentionDays,
		"ask_timeout", cfg.Engine.AskTimeout)

	level.Info(logger).Log("msg", "initializing storage engine")
	store, err := storage.NewStorage(cfg.ToStorageConfig())
	if err != nil {
		level.Error(logger).Log("msg", "failed to initialize storage", "err", err)
		return err
	}
	defer store.Close()

	var engine storage.Storage = store
	if cfg.Storage.EnableCache {
		level.Info(logger).Log("msg", "enabling query cache",
			"capacity", cfg.Storage.CacheCapacity, "ttl", cfg.Storage.CacheTTL)
		engine = storage.NewCachedStorage(store, cfg.Storage.CacheCapacity, cfg.Storage.CacheTTL)
	}

	reg := prometheus.NewRegistry()
	metrics := metricssink.New(reg)
	sched := scheduler.New("query", cfg.Engine.FastReduceMaxWindows)

	server := api.NewServer(cfg.Server.ListenAddr, cfg.Engine.AskTimeout, engine, sched, metrics, logger)

	go func() {
		level.Info(logger).Log("msg", "api server listening", "addr", cfg.Server.ListenAddr)
		if err := server.Start(); err != nil {
			level.Error(logger).Log("msg", "server error", "err", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	level.Info(logger).Log("msg", "shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		level.Error(logger).Log("msg", "server shutdown error", "err", err)
	}

	level.Info(logger).Log("msg", "server stopped")
	return nil
}
