package handler

import (
	"time"

	"referral-ledger/internal/adapter/http/dto"
	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"
	"referral-ledger/pkg/apperror"
	"referral-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// WalletHandler handles balance, history and withdrawal endpoints.
type WalletHandler struct {
	reportingSvc  ports.ReportingService
	withdrawalSvc ports.WithdrawalService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(reportingSvc ports.ReportingService, withdrawalSvc ports.WithdrawalService) *WalletHandler {
	return &WalletHandler{
		reportingSvc:  reportingSvc,
		withdrawalSvc: withdrawalSvc,
	}
}

// GetWallet handles GET /api/v1/wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	wallet, err := h.reportingSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToWalletResponse(wallet))
}

// ListTransactions handles GET /api/v1/transactions.
// Filters: status, type, from and to (RFC 3339), page, page_size.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	page, pageSize := pagination(c)
	params := ports.TransactionListParams{
		UserID:   &userID,
		Page:     page,
		PageSize: pageSize,
	}

	if s := c.Query("status"); s != "" {
		status := domain.TransactionStatus(s)
		if !status.Valid() {
			response.Error(c, apperror.Validation("unknown status "+s))
			return
		}
		params.Status = &status
	}
	if t := c.Query("type"); t != "" {
		txType := domain.TransactionType(t)
		if !txType.Valid() {
			response.Error(c, apperror.Validation("unknown type "+t))
			return
		}
		params.Type = &txType
	}
	for key, dst := range map[string]**time.Time{"from": &params.From, "to": &params.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		v, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, apperror.Validation(key+" must be an RFC 3339 timestamp"))
			return
		}
		*dst = &v
	}

	txns, total, err := h.reportingSvc.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, dto.ToTransactionResponses(txns), total, page, pageSize)
}

// Withdraw handles POST /api/v1/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	entry, err := h.withdrawalSvc.Request(c.Request.Context(), ports.WithdrawalRequest{
		UserID:        userID,
		Amount:        amount,
		WalletAddress: req.WalletAddress,
		Network:       req.Network,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToTransactionResponse(entry))
}
