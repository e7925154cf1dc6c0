// Package router wires the HTTP handlers and middleware into a gin engine.
package router

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pandeptwidyaop/card-runner/internal/config"
	"github.com/pandeptwidyaop/card-runner/internal/handlers"
	"github.com/pandeptwidyaop/card-runner/internal/middleware"
	"github.com/pandeptwidyaop/card-runner/internal/services"
)

// Services are the dependencies of the HTTP layer.
type Services struct {
	Auth     *services.AuthService
	Audit    *services.AuditService
	Configs  *services.ConfigService
	Runs     *services.RunService
	Cards    *services.CardService
	Settings *services.SettingsService
	// Gatherer backs GET /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// New builds the engine. Runs started over HTTP are bound to baseCtx.
func New(baseCtx context.Context, cfg *config.Config, svc Services) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.SecurityHeaders())
	if cfg.Server.SecureCookie {
		r.Use(middleware.StrictTransportSecurity())
	}

	prefix := r.Group(cfg.Server.PathPrefix)

	gatherer := svc.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	prefix.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	authHandler := handlers.NewAuthHandler(svc.Auth, svc.Audit, cfg.Server.SecureCookie)
	configHandler := handlers.NewConfigHandler(svc.Configs, svc.Audit)
	runHandler := handlers.NewRunHandler(baseCtx, svc.Runs, svc.Audit, cfg.Server.PathPrefix, cfg.Automation.Headless)
	cardHandler := handlers.NewCardHandler(svc.Cards, svc.Audit)
	settingsHandler := handlers.NewSettingsHandler(svc.Settings, svc.Cards, svc.Audit)
	auditHandler := handlers.NewAuditHandler(svc.Audit)
	systemHandler := handlers.NewSystemHandler(svc.Runs, filepath.Dir(cfg.Database.Path))

	loginLimiter := middleware.NewRateLimiter(cfg.Security.GetMaxLoginAttempts(), cfg.Security.GetLoginWindow())

	api := prefix.Group("/api")
	api.Use(middleware.BodySizeLimit(middleware.DefaultBodyBytes))
	{
		api.GET("/version", handlers.Version)

		api.POST("/auth/login",
			loginLimiter.Middleware(),
			middleware.BodySizeLimit(middleware.LoginBodyBytes),
			authHandler.Login,
		)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(svc.Auth))
		{
			protected.POST("/auth/logout", authHandler.Logout)
			protected.GET("/auth/me", authHandler.Me)
			protected.POST("/auth/password", authHandler.ChangePassword)

			protected.GET("/configs", configHandler.List)
			protected.POST("/configs", configHandler.Create)
			protected.GET("/configs/export", configHandler.Export)
			protected.GET("/configs/:id", configHandler.Get)
			protected.PUT("/configs/:id", configHandler.Update)
			protected.DELETE("/configs/:id", configHandler.Delete)

			protected.POST("/runs", runHandler.Start)
			protected.GET("/runs", runHandler.List)
			protected.GET("/runs/:id", runHandler.Get)
			protected.POST("/runs/:id/cancel", runHandler.Cancel)

			protected.GET("/cards", cardHandler.List)
			protected.POST("/cards", cardHandler.Create)
			protected.GET("/cards/:id", cardHandler.Get)
			protected.DELETE("/cards/:id", cardHandler.Delete)

			protected.GET("/settings", settingsHandler.Get)
			protected.PUT("/settings", settingsHandler.Update)
			protected.GET("/settings/cardholders", settingsHandler.Cardholders)

			protected.GET("/audit-logs", auditHandler.List)
			protected.GET("/system", systemHandler.Status)
		}
	}

	// Config imports have their own body limit.
	imports := prefix.Group("/api/configs/import")
	imports.Use(middleware.BodySizeLimit(middleware.ImportBodyBytes), middleware.AuthRequired(svc.Auth))
	imports.POST("", configHandler.Import)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}
