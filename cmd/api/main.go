package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/chain"
	"github.com/stablemarket/custody/internal/config"
	"github.com/stablemarket/custody/internal/db"
	"github.com/stablemarket/custody/internal/events"
	apphttp "github.com/stablemarket/custody/internal/http"
	"github.com/stablemarket/custody/internal/http/handlers"
	"github.com/stablemarket/custody/internal/repositories"
	"github.com/stablemarket/custody/internal/services"
	"github.com/stablemarket/custody/internal/vault"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Chain
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

	// Key material
	cipher, err := vault.NewCipher(cfg.VaultEncryptionKey)
	if err != nil {
		log.Fatal("invalid vault encryption key", zap.Error(err))
	}
	signer, err := chain.NewMasterSigner(cfg.MasterWalletAddress)
	if err != nil {
		log.Fatal("invalid master wallet address", zap.Error(err))
	}

	// Repositories
	walletRepo := repositories.NewWalletRepo(pool)
	addressRepo := repositories.NewAddressRepo(pool)
	depositRepo := repositories.NewDepositRepo(pool)
	withdrawalRepo := repositories.NewWithdrawalRepo(pool)
	transactionRepo := repositories.NewTransactionRepo(pool)
	controlsRepo := repositories.NewControlsRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Vault
	v, err := vault.New(cfg.VaultMnemonic, cipher, addressRepo, client, cfg.Network, 0, log)
	if err != nil {
		log.Fatal("failed to open vault", zap.Error(err))
	}

	// Services
	walletService := services.NewWalletService(walletRepo, depositRepo, transactionRepo,
		controlsRepo, auditRepo, v, cfg.Currency, log)
	withdrawalService := services.NewWithdrawalService(withdrawalRepo, walletRepo,
		controlsRepo, auditRepo, client, signer, publisher, cfg.Currency, log)
	adminService := services.NewAdminService(controlsRepo, auditRepo, signer, cipher,
		cfg.MasterKeyEncrypted, log)
	if err := adminService.ResumeUnlock(ctx); err != nil {
		log.Warn("could not resume master wallet unlock", zap.Error(err))
	}

	// Handlers
	walletHandler := handlers.NewWalletHandler(walletService, log)
	withdrawalHandler := handlers.NewWithdrawalHandler(withdrawalService, log)
	adminHandler := handlers.NewAdminHandler(adminService, withdrawalService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, walletHandler, withdrawalHandler, adminHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
