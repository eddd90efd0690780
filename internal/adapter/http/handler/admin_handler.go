package handler

import (
	"referral-ledger/internal/adapter/http/dto"
	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"
	"referral-ledger/pkg/apperror"
	"referral-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdminHandler handles operator endpoints. Routes are guarded by RequireRole(admin).
type AdminHandler struct {
	withdrawalSvc ports.WithdrawalService
	walletSvc     ports.WalletService
	depositSvc    ports.DepositService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(withdrawalSvc ports.WithdrawalService, walletSvc ports.WalletService, depositSvc ports.DepositService) *AdminHandler {
	return &AdminHandler{
		withdrawalSvc: withdrawalSvc,
		walletSvc:     walletSvc,
		depositSvc:    depositSvc,
	}
}

// ProcessWithdrawal handles POST /api/v1/admin/withdrawals/:id/process.
func (h *AdminHandler) ProcessWithdrawal(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	txID, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.ProcessWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	entry, err := h.withdrawalSvc.Process(c.Request.Context(), ports.ProcessWithdrawalRequest{
		AdminID:       adminID,
		TransactionID: txID,
		Action:        ports.WithdrawalAction(req.Action),
		Notes:         req.Notes,
		TxHash:        req.TxHash,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToTransactionResponse(entry))
}

// AdjustBalance handles POST /api/v1/admin/users/:id/balance.
func (h *AdminHandler) AdjustBalance(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	userID, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	adjustment, err := dto.ParseDecimal(req.Adjustment)
	if err != nil {
		response.Error(c, apperror.Validation("adjustment: "+err.Error()))
		return
	}
	newBalance, err := dto.ParseDecimal(req.NewBalance)
	if err != nil {
		response.Error(c, apperror.Validation("newBalance: "+err.Error()))
		return
	}

	entry, err := h.walletSvc.AdjustBalance(c.Request.Context(), ports.AdjustBalanceRequest{
		AdminID:    adminID,
		UserID:     userID,
		Adjustment: adjustment,
		NewBalance: newBalance,
		Reason:     req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToTransactionResponse(entry))
}

// ManualDeposit handles POST /api/v1/admin/deposits.
func (h *AdminHandler) ManualDeposit(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.ManualDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid userId"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	entry, err := h.depositSvc.CompleteDeposit(c.Request.Context(), domain.DepositRequest{
		UserID:  userID,
		Amount:  amount,
		TxHash:  req.TxHash,
		Source:  domain.DepositSourceAdmin,
		AdminID: &adminID,
		Notes:   req.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToTransactionResponse(entry))
}
