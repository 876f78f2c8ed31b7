package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/markdave123-py/Rentora/internal/app"
	"github.com/markdave123-py/Rentora/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		return 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		return 1
	}
	defer application.Close()

	logger.Info("Rentora is running", "storage", cfg.Storage,
		"telegram", cfg.TelegramEnabled(), "whatsapp", cfg.WhatsAppEnabled())
	if err := application.Run(ctx); err != nil {
		logger.Error("stopped with error", "err", err)
		return 1
	}
	logger.Info("shut down cleanly")
	return 0
}
