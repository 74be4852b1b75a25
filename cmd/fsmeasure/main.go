// Command fsmeasure records per-call latency rows from FreeSWITCH event
// sockets into a capped buffer, exports call quality metrics and snapshots
// the buffer every time it wraps.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luongdev/fsmeasure/pkg/calculator"
	"github.com/luongdev/fsmeasure/pkg/config"
	"github.com/luongdev/fsmeasure/pkg/connection"
	"github.com/luongdev/fsmeasure/pkg/exporter"
	"github.com/luongdev/fsmeasure/pkg/logger"
	"github.com/luongdev/fsmeasure/pkg/measure"
	"github.com/luongdev/fsmeasure/pkg/metrics"
	"github.com/luongdev/fsmeasure/pkg/processor"
	"github.com/luongdev/fsmeasure/pkg/server"
	"github.com/luongdev/fsmeasure/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	summarize := flag.String("summarize", "", "print quality summaries of stored snapshots under this key prefix and exit")
	flag.Parse()

	if err := run(*configPath, *summarize); err != nil {
		logger.Error("fsmeasure failed: %v", err)
		os.Exit(1)
	}
}

func run(configPath, summarizePrefix string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(logger.ParseLogLevel(cfg.Logging.Level), cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	snapshots, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	calc := calculator.NewQoSCalculator(cfg.Buffer.Window)

	if summarizePrefix != "" {
		return printSummaries(ctx, snapshots, calc, summarizePrefix)
	}

	m := metrics.GetMetrics()

	bufOpts := []measure.Option{
		measure.WithTitle("live"),
		measure.WithMetrics(m.Registry(), "live"),
	}
	if cfg.Buffer.ZeroDelta == "error" {
		bufOpts = append(bufOpts, measure.WithZeroDeltaPolicy(measure.RejectZeroDelta))
	}
	if cfg.Buffer.MonotonicCheck {
		bufOpts = append(bufOpts, measure.WithMonotonicCheck())
	}
	buffer, err := measure.New(cfg.Buffer.Capacity, bufOpts...)
	if err != nil {
		return fmt.Errorf("create call metrics buffer: %w", err)
	}

	proc := processor.NewEventProcessor(buffer, processor.Options{
		Store:     snapshots,
		KeyPrefix: cfg.Storage.KeyPrefix,
	})
	if err := proc.Start(ctx); err != nil {
		return err
	}

	connManager := connection.NewESLManager(cfg.FreeSwitchInstances, proc.ProcessEvent)
	if err := connManager.Start(ctx); err != nil {
		return fmt.Errorf("start ESL connections: %w", err)
	}

	exp, err := exporter.NewPrometheusExporter(m.Registry(), buffer, calc, cfg.Export.Interval)
	if err != nil {
		return fmt.Errorf("create exporter: %w", err)
	}
	if err := exp.Start(ctx); err != nil {
		return err
	}

	httpServer := server.NewHTTPServer(server.Options{
		Port:         cfg.HTTP.Port,
		ConnManager:  connManager,
		Source:       buffer,
		Calculator:   calc,
		Gatherer:     m.Registry(),
		PushInterval: cfg.Export.Interval,
	})
	if err := httpServer.Start(ctx); err != nil {
		return err
	}

	logger.InfoWithFields(map[string]interface{}{
		"instances": len(cfg.FreeSwitchInstances),
		"capacity":  buffer.Capacity(),
		"storage":   cfg.Storage.Type,
	}, "fsmeasure started")

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := connManager.Stop(); err != nil {
		logger.Warn("Failed to close ESL connections: %v", err)
	}
	if err := exp.Stop(shutdownCtx); err != nil {
		logger.Warn("Final export failed: %v", err)
	}
	if err := httpServer.Stop(); err != nil {
		logger.Warn("HTTP server shutdown failed: %v", err)
	}
	return proc.Stop()
}

func openStore(ctx context.Context, cfg config.StorageConfig) (store.SnapshotStore, error) {
	switch cfg.Type {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	default:
		return store.NewFileStore(cfg.Dir)
	}
}

// printSummaries writes one JSON quality summary per stored snapshot to stdout
func printSummaries(ctx context.Context, snapshots store.SnapshotStore, calc calculator.QoSCalculator, prefix string) error {
	all, err := store.LoadAll(ctx, snapshots, prefix)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, cm := range all {
		q, err := calc.Summarize(cm.View())
		if err != nil {
			return fmt.Errorf("summarize %s: %w", cm.Title(), err)
		}
		if err := enc.Encode(struct {
			Snapshot string `json:"snapshot"`
			*calculator.QoSMetrics
		}{cm.Title(), q}); err != nil {
			return err
		}
	}
	logger.Info("Summarized %d snapshots under %q", len(all), prefix)
	return nil
}
