package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stablemarket/custody/internal/http/dto"
	"github.com/stablemarket/custody/internal/middleware"
	"github.com/stablemarket/custody/internal/models"
	"github.com/stablemarket/custody/internal/repositories"
	"github.com/stablemarket/custody/internal/services"
)

type AdminHandler struct {
	adminService      *services.AdminService
	withdrawalService *services.WithdrawalService
	log               *zap.Logger
}

func NewAdminHandler(adminService *services.AdminService, withdrawalService *services.WithdrawalService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminService:      adminService,
		withdrawalService: withdrawalService,
		log:               log,
	}
}

// UnlockWallet decrypts the master key for signing.
// POST /admin/wallet/unlock
func (h *AdminHandler) UnlockWallet(c *fiber.Ctx) error {
	adminID := middleware.GetUserID(c)
	if err := h.adminService.UnlockMaster(c.Context(), adminID); err != nil {
		h.log.Error("unlock master wallet failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// LockWallet wipes the in-memory master key.
// POST /admin/wallet/lock
func (h *AdminHandler) LockWallet(c *fiber.Ctx) error {
	adminID := middleware.GetUserID(c)
	if err := h.adminService.LockMaster(c.Context(), adminID); err != nil {
		h.log.Error("lock master wallet failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// SetEmergency toggles emergency mode.
// POST /admin/wallet/emergency
func (h *AdminHandler) SetEmergency(c *fiber.Ctx) error {
	var req dto.EmergencyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	adminID := middleware.GetUserID(c)
	if err := h.adminService.SetEmergency(c.Context(), adminID, req.Enabled); err != nil {
		h.log.Error("set emergency mode failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// GetControls returns the full controls row.
// GET /admin/wallet/controls
func (h *AdminHandler) GetControls(c *fiber.Ctx) error {
	ctrl, err := h.adminService.GetControls(c.Context())
	if err != nil {
		h.log.Error("get controls failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ctrl})
}

// UpdateControls applies a partial controls update.
// PUT /admin/wallet/controls
func (h *AdminHandler) UpdateControls(c *fiber.Ctx) error {
	var u models.ControlsUpdate
	if err := c.BodyParser(&u); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	adminID := middleware.GetUserID(c)
	ctrl, err := h.adminService.UpdateControls(c.Context(), adminID, &u)
	if err != nil {
		h.log.Error("update controls failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ctrl})
}

// ListWithdrawals returns withdrawals by status, pending by default.
// GET /admin/withdrawals
func (h *AdminHandler) ListWithdrawals(c *fiber.Ctx) error {
	status := c.Query("status", models.WithdrawalStatusPending)
	ws, err := h.withdrawalService.ListByStatus(c.Context(), status)
	if err != nil {
		h.log.Error("list withdrawals failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: ws})
}

// ApproveWithdrawal approves and, when possible, immediately processes a
// pending withdrawal.
// POST /admin/withdrawals/:id/approve
func (h *AdminHandler) ApproveWithdrawal(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid withdrawal id"})
	}
	adminID := middleware.GetUserID(c)

	req, err := h.withdrawalService.Approve(c.Context(), adminID, id)
	if err != nil {
		if errors.Is(err, repositories.ErrStaleStatus) || errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("approve withdrawal failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	processed, err := h.withdrawalService.Process(c.Context(), id)
	if err != nil {
		// Approval stands; the delay or a locked wallet just defers the
		// actual send.
		if errors.Is(err, services.ErrDelayNotElapsed) || errors.Is(err, services.ErrWalletLocked) {
			return c.JSON(dto.SuccessResponse{OK: true, Data: req})
		}
		h.log.Error("process withdrawal failed", zap.String("withdrawal_id", id.String()), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: processed})
}

// RejectWithdrawal denies a withdrawal and refunds the net amount.
// POST /admin/withdrawals/:id/reject
func (h *AdminHandler) RejectWithdrawal(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid withdrawal id"})
	}
	var body dto.RejectWithdrawalRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if body.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reason is required"})
	}

	adminID := middleware.GetUserID(c)
	req, err := h.withdrawalService.Reject(c.Context(), adminID, id, body.Reason)
	if err != nil {
		if errors.Is(err, repositories.ErrStaleStatus) || errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("reject withdrawal failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: req})
}

// AuditTrail lists recent audit entries.
// GET /admin/audit
func (h *AdminHandler) AuditTrail(c *fiber.Ctx) error {
	logs, err := h.adminService.AuditTrail(c.Context(), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		h.log.Error("audit trail failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: logs})
}
