package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/http/dto"
	"github.com/stablemarket/custody/internal/middleware"
	"github.com/stablemarket/custody/internal/services"
)

type WalletHandler struct {
	walletService *services.WalletService
	log           *zap.Logger
}

func NewWalletHandler(walletService *services.WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{walletService: walletService, log: log}
}

// GetWallet returns balances and the deposit address if assigned.
// GET /me/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	wallet, addr, err := h.walletService.Snapshot(c.Context(), userID)
	if err != nil {
		h.log.Error("wallet snapshot failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	resp := dto.WalletResponse{Wallet: wallet}
	if addr != nil {
		resp.DepositAddress = addr.Address
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: resp})
}

// AssignDepositAddress returns the user's deposit address, deriving one
// on first call.
// POST /me/wallet/deposit-address
func (h *WalletHandler) AssignDepositAddress(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	addr, err := h.walletService.AssignDepositAddress(c.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrDepositsDisabled) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("assign deposit address failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.DepositAddressResponse{
		Address: addr.Address,
		Network: addr.Network,
	}})
}

// ListDeposits returns the user's deposit history, newest first.
// GET /me/wallet/deposits
func (h *WalletHandler) ListDeposits(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	deposits, err := h.walletService.ListDeposits(c.Context(), userID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		h.log.Error("list deposits failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deposits})
}

// ListTransactions returns the user's ledger entries, newest first.
// GET /me/wallet/transactions
func (h *WalletHandler) ListTransactions(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	txs, err := h.walletService.ListTransactions(c.Context(), userID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		h.log.Error("list transactions failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: txs})
}

// GetControls returns the user-visible platform limits.
// GET /wallet/controls
func (h *WalletHandler) GetControls(c *fiber.Ctx) error {
	pub, err := h.walletService.PublicControls(c.Context())
	if err != nil {
		h.log.Error("get controls failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: pub})
}
