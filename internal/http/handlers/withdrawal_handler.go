package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/chain"
	"github.com/stablemarket/custody/internal/http/dto"
	"github.com/stablemarket/custody/internal/ledger"
	"github.com/stablemarket/custody/internal/middleware"
	"github.com/stablemarket/custody/internal/repositories"
	"github.com/stablemarket/custody/internal/services"
)

type WithdrawalHandler struct {
	withdrawalService *services.WithdrawalService
	log               *zap.Logger
}

func NewWithdrawalHandler(withdrawalService *services.WithdrawalService, log *zap.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawalService: withdrawalService, log: log}
}

// Create accepts a withdrawal request.
// POST /me/wallet/withdrawals
func (h *WithdrawalHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateWithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "amount must be a positive decimal"})
	}

	userID := middleware.GetUserID(c)
	w, err := h.withdrawalService.Request(c.Context(), userID, amount, req.WalletAddress)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrWithdrawalsDisabled),
			errors.Is(err, services.ErrWalletLocked),
			errors.Is(err, services.ErrInsufficientLiquidity):
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, services.ErrPasswordRecentlyChanged):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, services.ErrBelowMinimum),
			errors.Is(err, chain.ErrInvalidAddress),
			errors.Is(err, ledger.ErrInsufficientAvailable),
			errors.Is(err, repositories.ErrUserDailyLimit),
			errors.Is(err, repositories.ErrPlatformDailyLimit):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("withdrawal request failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: w})
}

// List returns the user's withdrawal history.
// GET /me/wallet/withdrawals
func (h *WithdrawalHandler) List(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	ws, err := h.withdrawalService.ListByUser(c.Context(), userID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		h.log.Error("list withdrawals failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ws})
}
