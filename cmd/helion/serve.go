package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nugget/helion/internal/api"
	"github.com/nugget/helion/internal/buildinfo"
	"github.com/nugget/helion/internal/config"
	"github.com/nugget/helion/internal/connwatch"
	"github.com/nugget/helion/internal/events"
	"github.com/nugget/helion/internal/mqtt"
)

// runServe loads config, wires the agent, starts the API server and the
// optional MQTT publisher, and blocks until ctx is cancelled.
//
// Shutdown order: ctx cancellation stops the MQTT forwarder, the HTTP
// server drains in-flight requests, then the database is closed.
func runServe(ctx context.Context, stdout io.Writer, opts options) error {
	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stdout, cfg.Logging)
	logger.Info("starting Helion",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Models.Default,
		"data_dir", cfg.DataDir,
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("mqtt instance id: %w", err)
		}
		pub := mqtt.New(cfg.MQTT, instanceID, a.bus, logger)
		go func() {
			if err := pub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := pub.Stop(stopCtx); err != nil {
				logger.Warn("mqtt disconnect failed", "error", err)
			}
		}()
		logger.Info("mqtt publisher enabled", "broker", cfg.MQTT.Broker, "topic", pub.TurnsTopic())
	}

	watch := connwatch.NewManager(func(st connwatch.Status) {
		a.bus.Emit(events.SourceConnwatch, events.KindServiceStatus, map[string]any{
			"service": st.Name,
			"ready":   st.Ready,
			"error":   st.LastError,
		})
	}, logger)
	defer watch.Stop()
	watch.Watch(ctx, "model", a.client.Ping, connwatch.DefaultBackoff())
	if a.embedder != nil {
		watch.Watch(ctx, "embeddings", func(ctx context.Context) error {
			_, err := a.embedder.Embed(ctx, "ping", true)
			return err
		}, connwatch.DefaultBackoff())
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, a.scheduler, a.checkpoints, logger)
	server.SetEventBus(a.bus)
	server.SetHealthReporter(watch)
	if a.memories != nil {
		server.SetMemoryStore(a.memories, a.embedder)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
