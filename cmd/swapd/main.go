package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"

	"github.com/hashlocked/swapd/internal/config"
	"github.com/hashlocked/swapd/internal/core/application"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/hashlocked/swapd/internal/core/ports"
	"github.com/hashlocked/swapd/internal/infrastructure/db"
	"github.com/hashlocked/swapd/internal/infrastructure/esplora"
	"github.com/hashlocked/swapd/internal/infrastructure/evm"
	scheduler "github.com/hashlocked/swapd/internal/infrastructure/scheduler/gocron"
	"github.com/hashlocked/swapd/internal/infrastructure/simulator"
	"github.com/hashlocked/swapd/internal/infrastructure/utxo"
	"github.com/hashlocked/swapd/internal/interface/web"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	log.Info("starting swapd...")

	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:   cfg.DbType,
		DbConfig: []any{cfg.Datadir, nil},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}

	adapters, err := buildAdapters(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to init chain adapters")
	}

	coordinator, err := application.NewSwapCoordinator(
		dbSvc, adapters,
		cfg.SafetyMarginDuration(),
		cfg.MinSwapAmount, cfg.MaxSwapAmount,
		time.Duration(cfg.MinTimelock)*time.Second,
		time.Duration(cfg.MaxTimelock)*time.Second,
	)
	if err != nil {
		log.WithError(err).Fatal("failed to init swap coordinator")
	}

	ledger := application.NewPartialFillLedger(dbSvc, coordinator)

	schedulerSvc := scheduler.NewScheduler()
	monitor := application.NewResolverMonitor(
		dbSvc, adapters, coordinator, schedulerSvc,
		application.ResolverOptions{
			PollInterval:      time.Duration(cfg.PollInterval) * time.Second,
			HealthInterval:    time.Duration(cfg.HealthInterval) * time.Second,
			RetentionInterval: time.Duration(cfg.RetentionInterval) * time.Second,
			Retention:         time.Duration(cfg.Retention) * time.Second,
			Credentials:       resolverCredentials(cfg),
			LowBalance:        cfg.LowBalance,
		},
	)

	buildInfo := application.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
	appSvc := application.NewService(buildInfo, dbSvc, adapters, coordinator, ledger, monitor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := appSvc.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start application service")
	}

	srv := web.NewServer(appSvc, cfg.HTTPPort)
	go func() {
		if err := srv.Start(); err != nil {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	log.RegisterExitHandler(func() {
		srv.Stop()
		appSvc.Stop()
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
}

func buildAdapters(cfg *config.Config) (map[domain.Chain]ports.ChainAdapter, error) {
	if cfg.IsSimulator() {
		log.Warn("running with simulated chains, funds are not real")
		return map[domain.Chain]ports.ChainAdapter{
			domain.ChainEVM:  simulator.NewAdapter(domain.ChainEVM),
			domain.ChainUTXO: simulator.NewAdapter(domain.ChainUTXO),
		}, nil
	}

	rpcTimeout := time.Duration(cfg.RPCTimeout) * time.Second

	evmAdapter, err := evm.NewAdapter(evm.Config{
		RPCURL:       cfg.EvmRPCURL,
		ContractAddr: cfg.EvmHTLCContract,
		ChainID:      cfg.EvmChainID,
		RPCTimeout:   rpcTimeout,
	})
	if err != nil {
		return nil, err
	}

	net, err := utxoNetParams(cfg.UtxoNetwork)
	if err != nil {
		return nil, err
	}
	utxoAdapter, err := utxo.NewAdapter(utxo.Config{
		Explorer:         esplora.NewHTTPService(cfg.UtxoAPIURL, rpcTimeout),
		Net:              net,
		Fee:              cfg.UtxoFee,
		MinConfirmations: cfg.MinConfirmations,
	})
	if err != nil {
		return nil, err
	}

	return map[domain.Chain]ports.ChainAdapter{
		domain.ChainEVM:  evmAdapter,
		domain.ChainUTXO: utxoAdapter,
	}, nil
}

func utxoNetParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown utxo network: %s", network)
	}
}

func resolverCredentials(cfg *config.Config) map[domain.Chain]ports.Credentials {
	creds := make(map[domain.Chain]ports.Credentials)
	if cfg.ResolverEvmKey != "" {
		creds[domain.ChainEVM] = ports.Credentials{PrivateKey: cfg.ResolverEvmKey}
	}
	if cfg.ResolverUtxoKey != "" {
		creds[domain.ChainUTXO] = ports.Credentials{PrivateKey: cfg.ResolverUtxoKey}
	}
	return creds
}
