package httpapi

import (
	"net/http"

	"cloudfund-settlement/pkg/errutil"
	"cloudfund-settlement/services/campaign"
	"cloudfund-settlement/services/settlement"

	"github.com/gin-gonic/gin"
)

func (h *Handler) RegisterCampaign(c *gin.Context) {
	var req campaign.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	created, err := h.campaign.Register(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusCreated, created)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	var req campaign.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query parameters", err))
		return
	}

	page, err := h.campaign.List(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, page)
}

func (h *Handler) ListSellerCampaigns(c *gin.Context) {
	var req campaign.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query parameters", err))
		return
	}
	req.SellerID = c.Param("sellerID")

	page, err := h.campaign.List(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, page)
}

func (h *Handler) GetCampaign(c *gin.Context) {
	detail, err := h.campaign.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, detail)
}

func (h *Handler) CancelCampaign(c *gin.Context) {
	var req settlement.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	req.CampaignID = c.Param("id")

	result, err := h.settlement.Cancel(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, result)
}

func (h *Handler) CreatePledge(c *gin.Context) {
	var req settlement.PledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	pledge, err := h.settlement.Pledge(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusCreated, pledge)
}

func (h *Handler) TriggerSweep(c *gin.Context) {
	job, err := h.sweeper.Enqueue(c.Request.Context(), "admin")
	if err != nil {
		_ = c.Error(errutil.Internal("failed to enqueue sweep", err))
		return
	}
	respond(c, http.StatusAccepted, job)
}

func (h *Handler) RetryPayout(c *gin.Context) {
	paid, err := h.settlement.RetryPayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, paid)
}
