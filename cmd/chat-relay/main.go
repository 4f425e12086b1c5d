package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/LegacyAung/chat-app/internal/relay"
	"github.com/LegacyAung/chat-app/internal/server"
	"github.com/LegacyAung/chat-app/internal/store"
	"github.com/LegacyAung/chat-app/pkg/config"
	"github.com/LegacyAung/chat-app/pkg/logging"
)

func main() {
	bootLogger := logging.New(logging.LevelInfo)

	cfg, err := config.Load(bootLogger, "config")
	if err != nil {
		bootLogger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	var messageStore relay.MessageStore
	if cfg.Store.DSN != "" {
		gdb, err := store.ConnectPostgres(cfg.Store.DSN)
		if err != nil {
			logger.Error("failed to connect message store", slog.Any("error", err))
			os.Exit(1)
		}
		messageStore, err = store.NewGormStore(gdb)
		if err != nil {
			logger.Error("failed to migrate message store", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("message store: postgres")
	} else {
		messageStore = store.NewMemoryStore()
		logger.Warn("message store: in-memory; history will not survive restarts")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := server.NewApp(logger, ctx, cfg, messageStore)
	if err := app.Run(); err != nil {
		logger.Error("application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application shut down successfully.")
}
