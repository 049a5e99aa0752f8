package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pragma-network/pragma-node/config"
	"github.com/pragma-network/pragma-node/internal/api"
	"github.com/pragma-network/pragma-node/internal/metrics"
	"github.com/pragma-network/pragma-node/internal/pairid"
	"github.com/pragma-network/pragma-node/internal/pricing"
	"github.com/pragma-network/pragma-node/internal/queue"
	"github.com/pragma-network/pragma-node/internal/routing"
	"github.com/pragma-network/pragma-node/internal/signing"
	"github.com/pragma-network/pragma-node/internal/store"
	"github.com/pragma-network/pragma-node/pkg/logger"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "1.0.0"
	buildTime  = "unknown"
)

const stalenessWindow = 5 * time.Minute

func main() {
	flag.Parse()

	log := logger.NewLogger("pragma-node")
	log.Info("Starting Pragma Node", "version", version, "build_time", buildTime)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	log.Info("Connecting to offchain database", "host", cfg.Offchain.Host, "port", cfg.Offchain.Port)
	offchainDB, err := store.New(store.Config{
		ConnectionString: cfg.Offchain.GetConnectionString(),
		MaxOpenConns:     cfg.Offchain.MaxOpenConns,
		MaxIdleConns:     cfg.Offchain.MaxIdleConns,
		ConnMaxLifetime:  cfg.Offchain.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.Error("Failed to connect to offchain database", "error", err)
		os.Exit(1)
	}
	defer offchainDB.Close()

	if err := offchainDB.InitSchema(); err != nil {
		log.Error("Failed to initialize schema", "error", err)
		os.Exit(1)
	}

	onchainDB := offchainDB
	if cfg.Onchain.GetConnectionString() != cfg.Offchain.GetConnectionString() {
		log.Info("Connecting to onchain database", "host", cfg.Onchain.Host, "port", cfg.Onchain.Port)
		onchainDB, err = store.New(store.Config{
			ConnectionString: cfg.Onchain.GetConnectionString(),
			MaxOpenConns:     cfg.Onchain.MaxOpenConns,
			MaxIdleConns:     cfg.Onchain.MaxIdleConns,
			ConnMaxLifetime:  cfg.Onchain.ConnMaxLifetime,
		}, log)
		if err != nil {
			log.Error("Failed to connect to onchain database", "error", err)
			os.Exit(1)
		}
		defer onchainDB.Close()
	}

	log.Info("Connecting to Redis", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
	redisCache, err := store.NewCache(store.CacheConfig{
		Address:  cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   "pragma:",
		TTL:      cfg.Redis.CacheTTL,
	})
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	log.Info("Loading currency decimal table")
	decimalMap, err := offchainDB.CurrencyDecimals()
	if err != nil {
		log.Error("Failed to load currency decimals", "error", err)
		os.Exit(1)
	}
	decimals := pairid.NewDecimalTable(decimalMap)

	signer, err := signing.NewSignerFromHex(cfg.Signer.PrivateKeyHex)
	if err != nil {
		log.Error("Failed to initialize signer", "error", err)
		os.Exit(1)
	}
	log.Info("Signer ready", "public_key", signer.PublicKeyHex())

	log.Info("Connecting to ingest queue", "brokers", cfg.Queue.Brokers, "topic", cfg.Queue.Topic)
	producer, err := queue.NewKafkaProducer(cfg.Queue.Brokers, cfg.Queue.Topic)
	if err != nil {
		log.Error("Failed to connect to ingest queue", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	indexPricer := pricing.New(offchainDB, decimals, stalenessWindow)
	resolver := routing.New(onchainDB, decimals)

	apiServer := api.NewServer(cfg.API, cfg.WS, api.Deps{
		DB:          offchainDB,
		Cache:       redisCache,
		IndexPricer: indexPricer,
		Resolver:    resolver,
		Decimals:    decimals,
		Signer:      signer,
		Producer:    producer,
		Log:         log,
	})

	log.Info("Starting API server", "port", cfg.API.Port)
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error("API server failed", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Received interrupt signal, shutting down gracefully")
	case <-ctx.Done():
		log.Info("Context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info("Stopping API server")
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server gracefully", "error", err)
	}

	if metricsServer != nil {
		log.Info("Stopping metrics server")
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop metrics server gracefully", "error", err)
		}
	}

	log.Info("Pragma Node stopped successfully")
}
