package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/api/handler"
	"github.com/qs3c/journal_server/internal/api/middleware"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
)

type Router struct {
	quotaHandler     *handler.QuotaHandler
	uploadHandler    *handler.UploadHandler
	promoHandler     *handler.PromoHandler
	progressHandler  *handler.ProgressHandler
	adminHandler     *handler.AdminHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
	log              logrus.FieldLogger
}

func NewRouter(
	quotaHandler *handler.QuotaHandler,
	uploadHandler *handler.UploadHandler,
	promoHandler *handler.PromoHandler,
	progressHandler *handler.ProgressHandler,
	adminHandler *handler.AdminHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
	log logrus.FieldLogger,
) *Router {
	return &Router{
		quotaHandler:     quotaHandler,
		uploadHandler:    uploadHandler,
		promoHandler:     promoHandler,
		progressHandler:  progressHandler,
		adminHandler:     adminHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
		log:              log,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(r.log))
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/metrics", metrics.Handler())

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			user := authenticated.Group("/user")
			{
				user.GET("/quota", r.quotaHandler.GetQuota)
				user.GET("/progress", r.progressHandler.GetProgress)
				user.GET("/achievements", r.progressHandler.ListAchievements)
			}

			prompts := authenticated.Group("/prompts")
			{
				prompts.POST("/debit", r.quotaHandler.DebitPrompt)
				prompts.POST("/refund", r.quotaHandler.RefundPrompt)
			}

			storage := authenticated.Group("/storage")
			{
				storage.POST("/files", r.uploadHandler.Upload)
				storage.DELETE("/files/*key", r.uploadHandler.Delete)
				storage.POST("/credit", r.quotaHandler.CreditStorage)
			}

			promo := authenticated.Group("/promo")
			{
				promo.POST("/redeem", r.promoHandler.Redeem)
				promo.GET("/grants", r.promoHandler.ListGrants)
			}

			authenticated.POST("/activity/entries", r.progressHandler.RecordEntry)
		}

		// 计费系统与运营后台
		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuth(r.cfg.JWT.AdminSecret))
		{
			admin.POST("/promo-codes", r.adminHandler.CreatePromoCode)
			admin.POST("/users", r.adminHandler.ProvisionUser)
			admin.PUT("/users/:id/tier", r.adminHandler.SetTier)
			admin.POST("/users/:id/repair", r.adminHandler.RepairProgression)
		}
	}

	return engine
}
