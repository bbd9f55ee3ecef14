package httpapi

import (
	"cloudfund-settlement/pkg/config"
	"cloudfund-settlement/pkg/health"
	"cloudfund-settlement/pkg/middleware"
	"cloudfund-settlement/services/balance"
	"cloudfund-settlement/services/campaign"
	"cloudfund-settlement/services/settlement"
	"cloudfund-settlement/services/sweeper"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewHandler,
		ProvideEngine,
	),
	fx.Invoke(RegisterRoutes),
)

type Handler struct {
	campaign   *campaign.Service
	settlement *settlement.Service
	balance    *balance.Service
	sweeper    *sweeper.Service
}

type HandlerParams struct {
	fx.In
	Campaign   *campaign.Service
	Settlement *settlement.Service
	Balance    *balance.Service
	Sweeper    *sweeper.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		campaign:   p.Campaign,
		settlement: p.Settlement,
		balance:    p.Balance,
		sweeper:    p.Sweeper,
	}
}

func ProvideEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Error())
	return engine
}

func RegisterRoutes(engine *gin.Engine, h *Handler, hs health.HealthService) {
	engine.GET("/healthz", hs.Liveness)
	engine.GET("/readyz", hs.Readiness)

	api := engine.Group("/api")
	{
		api.POST("/campaigns", h.RegisterCampaign)
		api.GET("/campaigns", h.ListCampaigns)
		api.GET("/campaigns/:id", h.GetCampaign)
		api.POST("/campaigns/:id/cancel", h.CancelCampaign)

		api.GET("/sellers/:sellerID/campaigns", h.ListSellerCampaigns)

		api.POST("/pledges", h.CreatePledge)

		api.POST("/balances", h.BindAddress)
		api.GET("/balances/:userID", h.GetBalance)
		api.POST("/balances/:userID/refresh", h.RefreshBalance)

		admin := api.Group("/admin")
		{
			admin.POST("/trigger-sweep", h.TriggerSweep)
			admin.POST("/campaigns/:id/retry-payout", h.RetryPayout)
		}
	}
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}
