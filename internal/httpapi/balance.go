package httpapi

import (
	"net/http"

	"cloudfund-settlement/pkg/errutil"
	"cloudfund-settlement/services/balance"

	"github.com/gin-gonic/gin"
)

func (h *Handler) BindAddress(c *gin.Context) {
	var req balance.BindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	binding, err := h.balance.Bind(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusCreated, binding)
}

func (h *Handler) GetBalance(c *gin.Context) {
	binding, err := h.balance.Get(c.Request.Context(), c.Param("userID"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, binding)
}

func (h *Handler) RefreshBalance(c *gin.Context) {
	binding, err := h.balance.Refresh(c.Request.Context(), c.Param("userID"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, binding)
}
