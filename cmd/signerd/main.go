package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/uhyunpark/suiperp/params"
	"github.com/uhyunpark/suiperp/pkg/api"
	"github.com/uhyunpark/suiperp/pkg/coins"
	"github.com/uhyunpark/suiperp/pkg/contracts"
	"github.com/uhyunpark/suiperp/pkg/crypto"
	"github.com/uhyunpark/suiperp/pkg/lifecycle"
	"github.com/uhyunpark/suiperp/pkg/metrics"
	"github.com/uhyunpark/suiperp/pkg/rfq"
	"github.com/uhyunpark/suiperp/pkg/storage"
	"github.com/uhyunpark/suiperp/pkg/sui"
	"github.com/uhyunpark/suiperp/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	} else {
		logger, err = util.NewLoggerWithLevel(cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Signer.Secret == "" {
		logger.Fatal("wallet_secret_missing", zap.String("env", "WALLET_SECRET"))
	}
	keys, err := crypto.FromSecret(cfg.Signer.Secret)
	if err != nil {
		logger.Fatal("key_load_failed", zap.Error(err))
	}
	logger.Info("signer_loaded",
		zap.String("network", cfg.NetworkName),
		zap.String("address", keys.Address()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ---- Journal ----
	var journal storage.Journal = storage.NewNopJournal()
	if cfg.Signer.JournalPath != "" {
		pj, err := storage.NewPebbleJournal(cfg.Signer.JournalPath)
		if err != nil {
			logger.Fatal("journal_open_failed", zap.String("path", cfg.Signer.JournalPath), zap.Error(err))
		}
		journal = pj
		logger.Info("journal_opened", zap.String("path", cfg.Signer.JournalPath))
	}
	defer journal.Close()

	// ---- Contracts ----
	var addrs *contracts.Addresses
	if cfg.Signer.ContractsPath != "" {
		raw, err := os.ReadFile(cfg.Signer.ContractsPath)
		if err != nil {
			logger.Fatal("contracts_read_failed", zap.Error(err))
		}
		if addrs, err = contracts.ParseAddresses(raw); err != nil {
			logger.Fatal("contracts_parse_failed", zap.Error(err))
		}
		logger.Info("contracts_loaded", zap.Int("markets", len(addrs.Markets)))
	} else {
		logger.Warn("contracts_not_configured - on-chain operations disabled")
	}
	calls := contracts.NewBuilder(addrs, cfg.RFQ)

	// ---- Chain ----
	chain, err := sui.Dial(ctx, sui.ClientConfig{
		URL:       cfg.Network.URL,
		GasBudget: cfg.Chain.GasBudget,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("rpc_dial_failed", zap.String("url", cfg.Network.URL), zap.Error(err))
	}
	defer chain.Close()

	submitter := sui.NewSubmitter(chain, sui.SubmitterConfig{
		MaxRetries:    cfg.Chain.MaxRetries,
		RetryInterval: cfg.Chain.RetryInterval,
		Logger:        logger,
		Recorder:      m,
	})
	allocator := coins.NewAllocator(chain, submitter, keys, coins.Config{
		Logger:   logger,
		Recorder: m,
	})

	client, err := lifecycle.New(keys, lifecycle.Deps{
		Calls:     calls,
		Chain:     chain,
		Submitter: submitter,
		Allocator: allocator,
	}, lifecycle.Config{
		GasBudget: cfg.Chain.GasBudget,
		Journal:   journal,
		Recorder:  m,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("lifecycle_init_failed", zap.Error(err))
	}
	logger.Warn("position_source_not_configured",
		zap.String("effect", "leverage and margin routes answer 501"))

	opts := api.Options{
		Keys:          keys,
		Signer:        client,
		Journal:       journal,
		Metrics:       m,
		Gatherer:      reg,
		OnboardingURL: cfg.Network.OnboardingURL,
		CORSOrigins:   cfg.Signer.CORSOrigins,
		Logger:        logger,
	}
	if cfg.RFQ != nil {
		quotes, err := rfq.NewClient(keys, chain, submitter, allocator, calls, rfq.ClientConfig{
			GasBudget: cfg.Chain.GasBudget,
			Logger:    logger,
		})
		if err != nil {
			logger.Fatal("rfq_init_failed", zap.Error(err))
		}
		opts.Quotes = quotes
		logger.Info("rfq_enabled", zap.Int("vaults", len(cfg.RFQ.Vaults)))
	}

	// ---- API Server ----
	apiServer, err := api.NewServer(opts)
	if err != nil {
		logger.Fatal("api_init_failed", zap.Error(err))
	}
	go func() {
		if err := apiServer.Start(cfg.Signer.ListenAddr); err != nil {
			logger.Error("api_server_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", zap.Error(err))
	}
}
