package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crashcollector/collector/internal/config"
	"github.com/crashcollector/collector/internal/crashreport"
	"github.com/crashcollector/collector/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "collector:", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := ""
	if len(os.Args) >= 3 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := telemetry.NewDefault(os.Stdout, "collector")
	metrics := telemetry.NewMemoryMetrics()
	health := telemetry.NewHealthState()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	crashStorage, err := buildStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	crashPublish, err := buildPublish(ctx, cfg)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	pipeline := crashreport.NewPipeline(crashStorage, crashPublish, metrics, logger, cfg.QueueBuffer)
	pipeline.Start(ctx, cfg.ConcurrentCrashmovers)
	lifecycle := crashreport.NewLifecycle(pipeline, crashStorage, crashPublish, metrics)

	parser := crashreport.NewParser(metrics, logger)
	throttler := crashreport.NewPercentageThrottler(1.0)
	handler := crashreport.NewHandler(
		crashreport.HandlerConfig{DumpField: cfg.DumpField, DumpIDPrefix: cfg.DumpIDPrefix},
		parser, throttler, pipeline, metrics, logger,
	)

	admin := newAdminStream(lifecycle, logger)
	stopAdmin := make(chan struct{})
	go admin.Run(2*time.Second, stopAdmin)
	go lifecycle.RunHeartbeat(ctx, 10*time.Second)

	router := newRouter(handler, lifecycle, health, logger, admin)

	addr, err := parseListenAddr(cfg.ListenAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting", map[string]any{
			"addr":               addr,
			"hostname":           mustHostname(),
			"crashstorage_class": cfg.CrashStorageClass,
			"crashpublish_class": cfg.CrashPublishClass,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	close(stopAdmin)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	if err := lifecycle.Join(drainCtx); err != nil {
		logger.Warn("drain_incomplete", map[string]any{"error": err.Error()})
	}
	if err := pipeline.Stop(drainCtx); err != nil {
		logger.Warn("pipeline_stop_incomplete", map[string]any{"error": err.Error()})
	}
	logger.Info("stopped", nil)
	return nil
}
