package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/opsdesk/deskgate/internal/auth"
	"github.com/opsdesk/deskgate/internal/config"
	"github.com/opsdesk/deskgate/internal/events"
	"github.com/opsdesk/deskgate/internal/gateway"
	"github.com/opsdesk/deskgate/internal/transport/ws"
	"github.com/opsdesk/deskgate/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gateway.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Optional event broker
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.URL != "" {
		nc, err := events.Connect(cfg.Events.URL, cfg.Instance.ID, logger)
		if err != nil {
			logger.Error("failed to connect event broker", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		publisher = events.NewNATSPublisher(nc, cfg.Events.SubjectPrefix)
	}

	gw := gateway.New(gateway.Options{
		DefaultCommandTimeout: cfg.Gateway.CommandTimeout,
		IdleAfter:             cfg.Gateway.IdleAfter,
		Logger:                logger,
		Events:                publisher,
	})

	wsHandler := ws.NewHandler(gw, auth.New(cfg.Auth.TokenSecret), ws.Config{
		WriteTimeout: cfg.Gateway.WriteTimeout,
		PingInterval: cfg.Gateway.PingInterval,
		PongTimeout:  cfg.Gateway.PongTimeout,
		ReadLimit:    cfg.Gateway.ReadLimit,
	}, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.Handle("/health", healthHandler(gw))
	mux.Handle("/status", statusHandler(gw))

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("gateway stopped")
}

// healthHandler reports process liveness and headline counts.
func healthHandler(gw *gateway.Gateway) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":           "ok",
			"version":          version.Version,
			"connections":      gw.ActiveCount(),
			"pending_commands": gw.PendingCommands(),
		})
	})
}

// statusHandler lists connections, optionally filtered by owner.
func statusHandler(gw *gateway.Gateway) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.URL.Query().Get("owner")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(gw.Status(owner))
	})
}
