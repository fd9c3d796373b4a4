package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/andy6609/multiroom-chat-server/internal/chat"
	"github.com/andy6609/multiroom-chat-server/internal/config"
)

func main() {
	cfg := config.FromEnv()

	addr := flag.String("addr", cfg.Addr, "chat listen address")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "metrics listen address, empty to disable")
	rooms := flag.Int("rooms", cfg.Rooms, "number of chat rooms")
	flag.Parse()

	cfg.Addr = *addr
	cfg.MetricsAddr = *metricsAddr
	cfg.Rooms = *rooms
	cfg = cfg.Sanitize()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	srv := chat.NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	ops := map[string]gfshutdown.Operation{
		"chat-server": func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	}

	if cfg.MetricsAddr != "" {
		metrics := chat.NewMetricsServer(cfg.MetricsAddr)
		go func() {
			logger.Info("metrics server started", "addr", cfg.MetricsAddr)
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		ops["metrics-server"] = func(ctx context.Context) error {
			return metrics.Shutdown(ctx)
		}
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, ops)
	code := <-wait
	logger.Info("exited", "code", code)
	os.Exit(code)
}
