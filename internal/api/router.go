package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"dorm-billing-backend/config"
	"dorm-billing-backend/internal/mw"
	"dorm-billing-backend/internal/notification"
	"dorm-billing-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, cfg *config.Config, webpushOptions *webpush.Options, pool *notification.WorkerPool, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(logger))

	db := s.DB()
	handler := NewHandler(s, webpushOptions, pool, logger)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst, cfg.Server.RequestIPHeader)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Push subscription management; no role needed, the browser calls
		// these directly.
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		// Everything billing-related runs under a validated actor role.
		authed := api.Group("", mw.ActorRole())
		{
			authed.GET("/buildings", caching, GetBuildings(db))
			authed.GET("/buildings/:building_id/rooms", caching, GetBuildingRooms(db))
			authed.GET("/service-prices", caching, handler.GetServicePrices)

			authed.GET("/usage-prior", handler.GetUsagePrior)
			authed.GET("/invoices", handler.GetStudentInvoices)
			authed.PUT("/invoices/:code/status", handler.PutInvoiceStatus)

			manager := authed.Group("", mw.RequireManager())
			{
				manager.POST("/buildings/:building_id/rooms", PostBuildingRoom(db))
				manager.GET("/usage-status", handler.GetUsageStatus)
				manager.POST("/usages", handler.PostUsage)
				manager.GET("/invoices/manager/building", handler.GetBuildingInvoices)
			}
		}
	}

	return r
}

// accessLog logs one structured line per handled request.
func accessLog(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()))
	}
}
