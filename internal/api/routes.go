// Package api assembles the gin router.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/irfndi/coinsight-go/internal/api/handlers"
	"github.com/irfndi/coinsight-go/internal/middleware"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Health   *handlers.HealthHandler
	Auth     *handlers.AuthHandler
	Analysis *handlers.AnalysisHandler
	Stream   *handlers.StreamHandler
	Account  *handlers.AccountHandler
	Billing  *handlers.BillingHandler
}

// Guards are the middleware that protect route groups.
type Guards struct {
	Auth        *middleware.AuthMiddleware
	AuthLimiter *middleware.IPRateLimiter
	Metrics     gin.HandlerFunc
	OpsKey      string
}

func SetupRoutes(router *gin.Engine, h Handlers, g Guards) {
	router.GET("/health", h.Health.HealthCheck)
	router.HEAD("/health", h.Health.HealthCheck)
	if g.Metrics != nil {
		router.GET("/metrics", middleware.RequireOpsKey(g.OpsKey), g.Metrics)
	}

	v1 := router.Group("/api/v1")

	limited := []gin.HandlerFunc{}
	if g.AuthLimiter != nil {
		limited = append(limited, g.AuthLimiter.Middleware())
	}

	auth := v1.Group("/auth")
	{
		public := auth.Group("", limited...)
		public.POST("/register", h.Auth.Register)
		public.POST("/login", h.Auth.Login)
		public.GET("/oauth/:provider", h.Auth.OAuth)
		public.POST("/forgot-password", h.Auth.ForgotPassword)
		public.POST("/reset-password", h.Auth.ResetPassword)

		private := auth.Group("", g.Auth.RequireAuth())
		private.POST("/logout", h.Auth.Logout)
		private.PUT("/password", h.Auth.ChangePassword)
		private.GET("/session", h.Auth.Session)
	}

	v1.GET("/plans", h.Billing.Plans)
	v1.POST("/webhooks/payments", h.Billing.Webhook)

	protected := v1.Group("", g.Auth.RequireAuth())
	{
		protected.GET("/assets", h.Analysis.SearchAssets)

		analysis := protected.Group("/analysis")
		analysis.GET("/params", h.Analysis.GetParams)
		analysis.PUT("/params", h.Analysis.UpdateParams)
		analysis.POST("/start", h.Analysis.Start)
		analysis.GET("/status", h.Analysis.Status)
		analysis.GET("/result", h.Analysis.Result)
		analysis.GET("/stream", h.Stream.Stream)
		analysis.GET("/share", h.Analysis.Share)
		analysis.POST("/share/telegram", h.Analysis.ShareTelegram)

		protected.GET("/history", h.Account.ListHistory)
		protected.GET("/history/:id", h.Account.GetHistory)
		protected.DELETE("/history/:id", h.Account.DeleteHistory)

		protected.GET("/profile", h.Account.GetProfile)
		protected.PUT("/profile", h.Account.UpdateProfile)
		protected.GET("/settings", h.Account.GetSettings)
		protected.PUT("/settings", h.Account.UpdateSettings)
		protected.GET("/usage", h.Account.Usage)

		protected.POST("/subscription/checkout", h.Billing.Checkout)
	}
}
