package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/polyglot-context/internal/api"
	"github.com/tjfontaine/polyglot-context/internal/config"
	"github.com/tjfontaine/polyglot-context/internal/server"
	"github.com/tjfontaine/polyglot-context/internal/storage"
	"github.com/tjfontaine/polyglot-context/internal/storage/memory"
	"github.com/tjfontaine/polyglot-context/internal/storage/sqlite"
	"github.com/tjfontaine/polyglot-context/internal/telemetry"
	"github.com/tjfontaine/polyglot-context/internal/tokens"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer("contextd", os.Stderr, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	enc, _ := tokens.ParseEncoding(cfg.Tokenizer.Encoding)
	opts := []api.Option{
		api.WithDefaultEncoding(enc),
		api.WithCache(cfg.Tokenizer.CacheSize),
		api.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, api.WithStore(store))
	}
	handler := api.NewHandler(tokens.NewRegistry(), settingsFrom(cfg), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchConfig(ctx, handler, logger)

	srv := server.New(cfg.Server.Port, cfg.RequestTimeout(), logger)
	handler.Routes(srv.Router)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	logger.Info("contextd started",
		slog.String("encoding", cfg.Tokenizer.Encoding),
		slog.String("storage", cfg.Storage.Type),
		slog.Bool("strict", cfg.Tokenizer.Strict))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping server...")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("Server shutdown complete")
}

func settingsFrom(cfg *config.Config) api.Settings {
	return api.Settings{
		Windows: cfg.Windows(),
		Strict:  cfg.Tokenizer.Strict,
		Reserve: cfg.Budget.Reserve,
	}
}

// openStore returns nil when usage recording is disabled.
func openStore(cfg *config.Config) (storage.UsageStore, error) {
	switch cfg.Storage.Type {
	case "none":
		return nil, nil
	case "sqlite":
		path := cfg.Storage.SQLite.Path
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return sqlite.New(path)
	default:
		return memory.New(), nil
	}
}

// watchConfig hot-swaps budget and strictness when config.yaml changes.
// Port, storage and encoding changes need a restart.
func watchConfig(ctx context.Context, handler *api.Handler, logger *slog.Logger) {
	if _, err := os.Stat(config.DefaultPath); errors.Is(err, os.ErrNotExist) {
		return
	}
	w, err := config.NewWatcher(config.DefaultPath, logger)
	if err != nil {
		logger.Warn("config watcher disabled", slog.String("error", err.Error()))
		return
	}
	err = w.Watch(ctx, func(cfg *config.Config) {
		handler.UpdateSettings(settingsFrom(cfg))
		logger.Info("config reloaded",
			slog.Bool("strict", cfg.Tokenizer.Strict),
			slog.Int("reserve", cfg.Budget.Reserve))
	})
	if err != nil {
		logger.Warn("config watcher disabled", slog.String("error", err.Error()))
	}
}
