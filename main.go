package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kzfm923/madealworker/config"
	"kzfm923/madealworker/logger"
	"kzfm923/madealworker/services/cache"
	"kzfm923/madealworker/services/store"
	"kzfm923/madealworker/services/worker"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger.Init()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}

	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		logger.Fatal("Failed to load sources: %v", err)
	}
	enabled := config.EnabledSources(sources)
	if len(enabled) == 0 {
		logger.Fatal("No enabled sources in %s", cfg.SourcesPath)
	}
	logger.Info("Loaded %d sources (%d enabled)", len(sources), len(enabled))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn("Received %s, shutting down", sig)
		cancel()
	}()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Destination store unavailable: %v", err)
	}
	defer st.Close()

	cooldown := cache.NewCooldown(buildCache(cfg), cfg.CooldownTTL)

	w := worker.NewWorker(ctx, cfg, enabled, st, cooldown)
	if err := w.Start(); err != nil {
		logger.Fatal("Worker failed: %v", err)
	}
	logger.Info("Worker finished")
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "redis":
		return store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisKeyPrefix, cfg.RedisStreamMaxLen)
	default:
		return store.NewXLSXStore(cfg.XLSXPath), nil
	}
}

func buildCache(cfg *config.Config) cache.CacheService {
	if cfg.MemcacheAddr != "" {
		return cache.NewMemcacheService(cfg.MemcacheAddr)
	}
	return cache.NewMemoryCache()
}
