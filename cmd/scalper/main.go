package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_scalper/internal/config"
	"github.com/vitos/crypto_scalper/internal/domain"
	"github.com/vitos/crypto_scalper/internal/infrastructure/exchange"
	"github.com/vitos/crypto_scalper/internal/infrastructure/logger"
	"github.com/vitos/crypto_scalper/internal/infrastructure/notify"
	"github.com/vitos/crypto_scalper/internal/infrastructure/paper"
	"github.com/vitos/crypto_scalper/internal/infrastructure/storage"
	"github.com/vitos/crypto_scalper/internal/usecase"
	"github.com/vitos/crypto_scalper/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level, logger.FileOptions{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange (Bybit spot)
	bybit := exchange.NewBybitSpotAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint, log)
	defer bybit.Close()

	var feed domain.TickFeed = bybit
	var gateway domain.OrderGateway = bybit
	if cfg.DryRun {
		log.Warn("Dry run: orders are filled against live quotes, nothing is sent to the exchange")
		sim := paper.NewGateway(bybit, log)
		feed, gateway = sim, sim
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Init Notifications
	notices := notify.NewQueue(cfg.Notifications.Buffer, cfg.Notifications.Keep, log)
	go notices.Run(ctx)

	// 6. Init Scalper
	settings := usecase.NewSettings(cfg.Scalper)
	pipeline := usecase.NewOrderPipeline(gateway, store, settings, log)
	scalper := usecase.NewScalper(feed, pipeline, settings, store, notices, log)

	// 7. Init Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080 // Default
	}
	server := web.NewServer(port, scalper, settings, store, notices, log)
	server.OnSettingsSaved = config.NewSaver(cfg, *configPath).SaveScalper

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 8. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	scalper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
