package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/lendflow/internal/config"
	"github.com/vitos/lendflow/internal/domain"
	"github.com/vitos/lendflow/internal/infrastructure/bridge"
	"github.com/vitos/lendflow/internal/infrastructure/logger"
	"github.com/vitos/lendflow/internal/infrastructure/metrics"
	"github.com/vitos/lendflow/internal/infrastructure/persistence"
	"github.com/vitos/lendflow/internal/infrastructure/prices"
	"github.com/vitos/lendflow/internal/infrastructure/storage"
	"github.com/vitos/lendflow/internal/infrastructure/wallet"
	"github.com/vitos/lendflow/internal/usecase"
	"github.com/vitos/lendflow/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	envFile := flag.String("env", ".env", "optional .env file with secrets")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File.Path != "" {
		log = logger.NewFileLogger(cfg.Logging.Level, cfg.Logging.File)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
		if err != nil {
			fmt.Printf("Failed to init logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer log.Sync()
	log.Info("Config loaded", zap.Any("config", cfg.Sanitized()))

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	var snapshots domain.SnapshotStore
	if cfg.Storage.SnapshotDir != "" {
		snapshots, err = persistence.NewBadgerSnapshots(cfg.Storage.SnapshotDir)
	} else {
		snapshots, err = persistence.NewInMemorySnapshots()
	}
	if err != nil {
		log.Fatal("Failed to init snapshot store", zap.Error(err))
	}
	defer snapshots.Close()

	// 4. Init Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}

	// 5. Init Collaborators
	sdk := bridge.NewClient(cfg.Bridge.APIKey, cfg.Bridge.APISecret, cfg.Bridge.RESTEndpoint, cfg.BridgeTimeout())
	pricesAPI := prices.NewClient(cfg.Prices.Endpoint, cfg.Prices.RatePerMin, cfg.PricesTimeout())
	walletProvider, err := wallet.NewProvider(cfg.Wallet.Address)
	if err != nil {
		log.Fatal("Failed to init wallet", zap.Error(err))
	}

	// 6. Init App State
	app := usecase.NewAppState(usecase.AppDeps{
		SDK:       sdk,
		Prices:    pricesAPI,
		Wallet:    walletProvider,
		History:   store,
		Snapshots: snapshots,
		Observer:  collector,
		Logger:    log,
	}, usecase.AppConfig{
		ConfirmDelay:    cfg.ConfirmDelay(),
		FormInterval:    cfg.FormsInterval(),
		MarketsInterval: cfg.MarketsInterval(),
		LoansInterval:   cfg.LoansInterval(),
		PricesInterval:  cfg.PricesInterval(),
		MinTriggerGap:   cfg.MinTriggerGap(),
		Chains:          cfg.ChainIDs(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Warm the market lists
	for _, chain := range cfg.ChainIDs() {
		if _, err := app.Markets.FetchMarkets(ctx, chain, false); err != nil {
			log.Error("Failed to load markets", zap.String("chain", string(chain)), zap.Error(err))
		}
	}

	app.Poller.Start(ctx)

	// 7. Block Feed
	if cfg.Bridge.WSEndpoint != "" {
		feed := bridge.NewBlockFeed(cfg.Bridge.WSEndpoint, cfg.ChainIDs(), log)
		feed.OnBlock(func(b bridge.Block) {
			app.Poller.TriggerAll(ctx)
		})
		go feed.Run(ctx)
	}

	// 8. Start Server
	server := web.NewServer(cfg.Server.Port, app, walletProvider, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 9. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
