package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/config"
	"github.com/stablemarket/custody/internal/http/handlers"
	"github.com/stablemarket/custody/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	walletHandler *handlers.WalletHandler,
	withdrawalHandler *handlers.WithdrawalHandler,
	adminHandler *handlers.AdminHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Wallet
	protected.Get("/me/wallet", walletHandler.GetWallet)
	protected.Post("/me/wallet/deposit-address", walletHandler.AssignDepositAddress)
	protected.Get("/me/wallet/deposits", walletHandler.ListDeposits)
	protected.Get("/me/wallet/transactions", walletHandler.ListTransactions)
	protected.Get("/wallet/controls", walletHandler.GetControls)

	// Withdrawals
	protected.Post("/me/wallet/withdrawals", withdrawalHandler.Create)
	protected.Get("/me/wallet/withdrawals", withdrawalHandler.List)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Post("/wallet/unlock", adminHandler.UnlockWallet)
	admin.Post("/wallet/lock", adminHandler.LockWallet)
	admin.Post("/wallet/emergency", adminHandler.SetEmergency)
	admin.Get("/wallet/controls", adminHandler.GetControls)
	admin.Put("/wallet/controls", adminHandler.UpdateControls)
	admin.Get("/withdrawals", adminHandler.ListWithdrawals)
	admin.Post("/withdrawals/:id/approve", adminHandler.ApproveWithdrawal)
	admin.Post("/withdrawals/:id/reject", adminHandler.RejectWithdrawal)
	admin.Get("/audit", adminHandler.AuditTrail)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
