package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/chain"
	"github.com/stablemarket/custody/internal/config"
	"github.com/stablemarket/custody/internal/db"
	"github.com/stablemarket/custody/internal/events"
	"github.com/stablemarket/custody/internal/repositories"
	"github.com/stablemarket/custody/internal/scanner"
	"github.com/stablemarket/custody/internal/vault"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	var explorer *chain.ExplorerClient
	if cfg.ExplorerAPIURL != "" {
		explorer = chain.NewExplorerClient(cfg.ExplorerAPIURL, cfg.ExplorerAPIKey, log)
	}
	client, err := chain.Dial(ctx, cfg.ChainRPCEndpoints, cfg.TokenAddress, cfg.TokenDecimals,
		cfg.ChainID, explorer, chain.DefaultRetryPolicy(), log)
	if err != nil {
		log.Fatal("failed to connect to chain", zap.Error(err))
	}
	defer client.Close()

	cipher, err := vault.NewCipher(cfg.VaultEncryptionKey)
	if err != nil {
		log.Fatal("invalid vault encryption key", zap.Error(err))
	}
	signer, err := chain.NewMasterSigner(cfg.MasterWalletAddress)
	if err != nil {
		log.Fatal("invalid master wallet address", zap.Error(err))
	}

	depositRepo := repositories.NewDepositRepo(pool)
	sweepRepo := repositories.NewSweepRepo(pool)
	addressRepo := repositories.NewAddressRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)
	controlsRepo := repositories.NewControlsRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	publisher := events.NewRedisPublisher(rdb, log)

	v, err := vault.New(cfg.VaultMnemonic, cipher, addressRepo, client, cfg.Network, 0, log)
	if err != nil {
		log.Fatal("failed to open vault", zap.Error(err))
	}

	sc := scanner.New(depositRepo, sweepRepo, addressRepo, walletRepo, controlsRepo, auditRepo,
		client, v, signer, cipher, rdb, publisher, scanner.Config{
			Network:            cfg.Network,
			Currency:           cfg.Currency,
			Workers:            cfg.ScanWorkers,
			MasterAddress:      cfg.MasterWalletAddress,
			MasterKeyEncrypted: cfg.MasterKeyEncrypted,
			MaxSweepTries:      cfg.MaxSweepTries,
		}, log)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down scanner")
		cancel()
	}()

	log.Info("deposit scanner started",
		zap.String("network", cfg.Network),
		zap.Duration("interval", cfg.ScanInterval),
		zap.Int("workers", cfg.ScanWorkers),
	)
	sc.Run(ctx, cfg.ScanInterval)
}
