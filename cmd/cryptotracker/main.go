package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cryptotracker/core/internal/alerts"
	"github.com/cryptotracker/core/internal/cache"
	"github.com/cryptotracker/core/internal/coingecko"
	"github.com/cryptotracker/core/internal/coins"
	"github.com/cryptotracker/core/internal/config"
	"github.com/cryptotracker/core/internal/logger"
	"github.com/cryptotracker/core/internal/notify"
	"github.com/cryptotracker/core/internal/server"
	"github.com/cryptotracker/core/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cacheStore cache.Store
	var cachePing func(context.Context) error
	if cfg.Cache.RedisAddr != "" {
		redisStore, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			// The cache layer degrades to always-miss on outage, so an
			// unreachable Redis at startup is not fatal.
			logger.Warn("Redis unreachable at startup, cache will miss until it recovers: %v", err)
		}
		defer redisStore.Close() //nolint:errcheck
		cacheStore = redisStore
		cachePing = redisStore.Ping
	} else {
		logger.Info("No Redis address configured, using in-memory cache")
		memStore := cache.NewMemory()
		cacheStore = memStore
		cachePing = func(context.Context) error { return nil }
	}

	geckoClient := coingecko.NewClient(cfg.CoinGecko.BaseURL, coingecko.ClientConfig{
		APIKey:      cfg.CoinGecko.APIKey,
		KeyInQuery:  cfg.CoinGecko.KeyInQuery,
		Timeout:     cfg.CoinGecko.Timeout,
		MaxRetries:  cfg.CoinGecko.MaxRetries,
		BackoffBase: cfg.CoinGecko.BackoffBase,
	})

	coinsService := coins.New(geckoClient, cacheStore, coins.TTLConfig{
		List:   cfg.Cache.ListTTL,
		Detail: cfg.Cache.DetailTTL,
		Chart:  cfg.Cache.ChartTTL,
	})

	var notifier alerts.Notifier
	if cfg.Telegram.Enabled {
		telegramClient, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = telegramClient
		logger.Info("Telegram forwarding enabled")
	} else {
		logger.Debug("Telegram forwarding disabled")
	}

	if cfg.Alerts.Enabled {
		scanner := alerts.New(store, coinsService, notifier, cfg.Alerts.ScanInterval)
		logger.Info("Starting alert scanner (interval: %v)", cfg.Alerts.ScanInterval)
		go scanner.Run(ctx)
	} else {
		logger.Info("Alert scanner disabled")
	}

	srv := server.New(cfg.Server.Addr, coinsService, map[string]server.HealthCheck{
		"database": func(context.Context) error { return store.Ping() },
		"cache":    cachePing,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down HTTP server: %v", err)
		}
		cancel()
	}()

	if err := srv.Start(); err != nil {
		logger.Fatal("HTTP server failed: %v", err)
	}
	logger.Info("Service stopped")
}
