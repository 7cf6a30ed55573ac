package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/config"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/middleware"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
)

// Deps are the collaborators the HTTP API is built from.
type Deps struct {
	Config   *config.Config
	Store    service.Store
	Files    service.FileStorage
	Notifier *service.NotificationService
	Runner   PipelineRunner
	// Ping, when set, backs the readiness part of /health.
	Ping func(ctx context.Context) error
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS())
	router.Use(middleware.NoStore())
	router.Use(middleware.RateLimit(d.Config.Server.RateLimit, d.Config.Server.RateLimitBurst))

	router.GET("/health", health(d.Ping))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := NewAuthHandler(d.Store, &d.Config.Auth)
	contractHandler := NewContractHandler(d.Store, d.Files, d.Notifier)
	documentHandler := NewDocumentHandler(d.Store, d.Files, d.Config.Server.MaxUploadSizeMB)
	notificationHandler := NewNotificationHandler(d.Store, d.Notifier)

	api := router.Group("/api")
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&d.Config.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		protected.GET("/contracts", contractHandler.List)
		protected.POST("/contracts", contractHandler.Create)
		protected.GET("/contracts/:id", contractHandler.Get)
		protected.PUT("/contracts/:id", contractHandler.Update)
		protected.DELETE("/contracts/:id", middleware.RequireRole(model.RoleAdmin, model.RoleManager), contractHandler.Delete)
		protected.GET("/contracts/:id/download", contractHandler.Download)

		protected.POST("/documents/upload", documentHandler.Upload)
		protected.GET("/documents", documentHandler.List)
		protected.GET("/documents/:id", documentHandler.Get)
		protected.PUT("/documents/:id", documentHandler.Update)
		protected.DELETE("/documents/:id", documentHandler.Delete)
		protected.GET("/documents/:id/download", documentHandler.Download)

		protected.GET("/notifications", notificationHandler.List)
		protected.PUT("/notifications/mark-all-read", notificationHandler.MarkAllRead)
		protected.GET("/notifications/:id", notificationHandler.Get)
		protected.PUT("/notifications/:id", notificationHandler.Update)
		protected.DELETE("/notifications/:id", notificationHandler.Delete)
		protected.POST("/notifications", middleware.RequireAdmin(), notificationHandler.SendCustom)
	}

	if d.Runner != nil {
		adminHandler := NewAdminHandler(d.Runner)
		admin := protected.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		admin.GET("/scheduler", adminHandler.SchedulerState)
		admin.POST("/pipelines/:name/run", adminHandler.RunPipeline)
	}

	return router
}

func health(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		}
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				body["status"] = "degraded"
				body["store"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, body)
				return
			}
		}
		c.JSON(http.StatusOK, body)
	}
}
