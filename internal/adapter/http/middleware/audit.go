package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
}

// auditedRoutes maps "METHOD route-template" to the recorded action.
var auditedRoutes = map[string]auditRoute{
	"POST /api/v1/auth/register":                 {domain.AuditActionRegister, "account"},
	"POST /api/v1/auth/login":                    {domain.AuditActionLogin, "session"},
	"POST /api/v1/auth/verify-email":             {domain.AuditActionVerifyEmail, "account"},
	"POST /api/v1/withdraw":                      {domain.AuditActionRequestWithdrawal, "transaction"},
	"POST /api/v1/milestones/:id/claim":          {domain.AuditActionClaimMilestone, "milestone"},
	"POST /api/v1/admin/withdrawals/:id/process": {domain.AuditActionProcessWithdrawal, "transaction"},
	"POST /api/v1/admin/users/:id/balance":       {domain.AuditActionAdjustBalance, "wallet"},
	"POST /api/v1/admin/deposits":                {domain.AuditActionManualDeposit, "transaction"},
}

// AuditLog records successful write operations on audited routes.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		route, ok := mapPathToAction(c.FullPath(), c.Request.Method)
		if !ok {
			return
		}

		var actorID *uuid.UUID
		if id, ok := UserID(c); ok {
			actorID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			ActorID:      actorID,
			Action:       route.action,
			ResourceType: route.resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func mapPathToAction(route, method string) (auditRoute, bool) {
	r, ok := auditedRoutes[method+" "+route]
	return r, ok
}
