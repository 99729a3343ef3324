package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thanhnp/dispenser-tracker/internal/api"
	"github.com/thanhnp/dispenser-tracker/internal/config"
	"github.com/thanhnp/dispenser-tracker/internal/query"
	"github.com/thanhnp/dispenser-tracker/internal/rpc"
	"github.com/thanhnp/dispenser-tracker/internal/storage"
	"github.com/thanhnp/dispenser-tracker/internal/sync"
	"github.com/thanhnp/dispenser-tracker/internal/view"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := setupLogger(&cfg.Log); err != nil {
		log.Fatalf("Failed to configure logger: %v", err)
	}

	log.Info("Starting dispenser tracker...")

	// Open the database holding the address list and preferences
	log.Infof("Opening Pebble database at %s", cfg.Pebble.Path)
	db, err := storage.NewPebbleDB(cfg.Pebble.Path)
	if err != nil {
		log.Fatalf("Failed to open Pebble database: %v", err)
	}

	addresses, err := storage.NewAddressListStore(db)
	if err != nil {
		log.Fatalf("Failed to load address list: %v", err)
	}
	prefs, err := storage.NewPreferenceStore(db)
	if err != nil {
		log.Fatalf("Failed to load preferences: %v", err)
	}
	log.Infof("Tracking %d addresses, show closed dispensers: %v", len(addresses.Get()), prefs.ShowClosed())

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Dispenser API
	counterparty := rpc.NewCounterpartyClient(&cfg.Counterparty)
	if ver, err := counterparty.CheckVersion(ctx); err != nil {
		log.Warnf("Counterparty API check failed: %v", err)
	} else {
		log.Infof("Connected to Counterparty API %v at %s", ver, cfg.Counterparty.URL)
	}

	// Balance API
	var balances query.BalanceSource
	switch cfg.Balance.Source {
	case config.BalanceSourceBitcoind:
		btcClient, err := rpc.NewBTCClient(&cfg.Balance.Bitcoin)
		if err != nil {
			log.Fatalf("Failed to create bitcoind client: %v", err)
		}
		defer btcClient.Close()

		if ver, err := btcClient.CheckVersion(); err != nil {
			log.Warnf("bitcoind check failed: %v", err)
		} else {
			log.Infof("Using bitcoind %v at %s for balances", ver, cfg.Balance.Bitcoin.Host)
		}
		balances = btcClient
	default:
		log.Infof("Using Esplora at %s for balances", cfg.Balance.EsploraURL)
		balances = rpc.NewEsploraClient(cfg.Balance.EsploraURL, time.Duration(cfg.Balance.Timeout)*time.Second)
	}

	// Query layer
	opts := query.DefaultOptions()
	opts.CacheSize = cfg.Query.CacheSize
	opts.DispenserTTL = time.Duration(cfg.Query.DispenserTTL) * time.Second
	opts.Retry.MaxRetries = cfg.Query.MaxRetries

	svc, err := query.NewService(counterparty, balances, opts)
	if err != nil {
		log.Fatalf("Failed to create query service: %v", err)
	}

	// Keep caches in line with the address list
	syncer := sync.NewSyncer(addresses, svc, time.Duration(cfg.Query.RefreshInterval)*time.Second)
	if err := syncer.Start(ctx); err != nil {
		log.Warnf("Failed to start syncer: %v", err)
	} else {
		log.Info("Syncer started")
	}

	builder := view.NewBuilder(svc, cfg.Explorer.TxURL)
	router := api.NewRouter(addresses, prefs, svc, builder)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Engine(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start HTTP server in goroutine
	go func() {
		log.Infof("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
	}

	// Cancel context to stop the syncer
	cancel()
	if err := syncer.Stop(); err != nil {
		log.Errorf("Error stopping syncer: %v", err)
	}

	if err := db.Close(); err != nil {
		log.Errorf("Error closing database: %v", err)
	}

	log.Info("Server stopped")
}

// setupLogger applies the configured level and format to the global logger
func setupLogger(cfg *config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format: %q", cfg.Format)
	}
	return nil
}
