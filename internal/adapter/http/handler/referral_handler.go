package handler

import (
	"strconv"

	"referral-ledger/internal/adapter/http/dto"
	"referral-ledger/internal/core/ports"
	"referral-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// ReferralHandler serves the referral dashboard, milestones and notifications.
type ReferralHandler struct {
	referralSvc     ports.ReferralService
	milestoneSvc    ports.MilestoneService
	notificationSvc ports.NotificationService
}

// NewReferralHandler creates a new ReferralHandler.
func NewReferralHandler(
	referralSvc ports.ReferralService,
	milestoneSvc ports.MilestoneService,
	notificationSvc ports.NotificationService,
) *ReferralHandler {
	return &ReferralHandler{
		referralSvc:     referralSvc,
		milestoneSvc:    milestoneSvc,
		notificationSvc: notificationSvc,
	}
}

// GetStats handles GET /api/v1/referrals/stats.
func (h *ReferralHandler) GetStats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	stats, err := h.referralSvc.GetStats(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToReferralStatsResponse(stats))
}

// ListMilestones handles GET /api/v1/milestones.
func (h *ReferralHandler) ListMilestones(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	milestones, err := h.milestoneSvc.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToMilestoneResponses(milestones))
}

// ClaimMilestone handles POST /api/v1/milestones/:id/claim.
func (h *ReferralHandler) ClaimMilestone(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	milestoneID, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	entry, err := h.milestoneSvc.Claim(c.Request.Context(), milestoneID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToTransactionResponse(entry))
}

// ListNotifications handles GET /api/v1/notifications?limit=N.
func (h *ReferralHandler) ListNotifications(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	list, err := h.notificationSvc.List(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToNotificationResponses(list))
}

// MarkNotificationRead handles POST /api/v1/notifications/:id/read.
func (h *ReferralHandler) MarkNotificationRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.notificationSvc.MarkRead(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"id": id.String(), "read": true})
}
