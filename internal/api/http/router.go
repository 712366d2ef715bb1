package http

import (
	"github.com/2026musik-code/autoscrip/internal/api/http/handler"
	"github.com/2026musik-code/autoscrip/internal/api/http/middleware"
	"github.com/2026musik-code/autoscrip/internal/auth"
	"github.com/2026musik-code/autoscrip/internal/hostops"
	"github.com/2026musik-code/autoscrip/internal/license"
	"github.com/2026musik-code/autoscrip/internal/provisioning"
	"github.com/2026musik-code/autoscrip/internal/session"
	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Store    store.Store
	Engine   *provisioning.Engine
	Ledger   *license.Ledger
	Sessions *session.Registry
	HostOps  *hostops.Service
	Auth     *auth.Service
}

func SetupRoute(engine *gin.Engine, srvs *Services, cfg Config) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler(srvs.Store)
	engine.GET("/health", healthHandler.Check)

	provisioningHandler := handler.NewProvisioningHandler(srvs.Engine)
	sessionHandler := handler.NewSessionHandler(srvs.Sessions, handler.DefaultHeartbeat)
	serverHandler := handler.NewServerHandler(srvs.Store)
	adminHandler := handler.NewAdminHandler(srvs.Ledger, srvs.HostOps, srvs.Auth)
	adminAuth := middleware.AdminAuth(cfg.AdminAPIKey, srvs.Auth)

	api := engine.Group("/api")
	{
		api.POST("/install", provisioningHandler.Install)
		api.POST("/rebuild", provisioningHandler.Rebuild)

		history := api.Group("/history", adminAuth)
		history.GET("", serverHandler.List)
		history.DELETE("/:id", serverHandler.Delete)
	}

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/install", provisioningHandler.Install)
		v1.POST("/rebuild", provisioningHandler.Rebuild)
		v1.GET("/rebuild/targets", provisioningHandler.RebuildTargets)
		v1.GET("/sessions/:id/events", sessionHandler.Events)
		v1.POST("/admin/login", adminHandler.Login)
	}

	admin := v1.Group("/admin", adminAuth)
	{
		admin.POST("/licenses", adminHandler.IssueLicense)
		admin.GET("/licenses", adminHandler.ListLicenses)

		admin.GET("/servers", serverHandler.List)
		admin.DELETE("/servers/:id", serverHandler.Delete)
		admin.POST("/servers/:id/diagnostics", adminHandler.Diagnose)
		admin.GET("/servers/:id/access-tokens", adminHandler.ListAccessTokens)
		admin.POST("/servers/:id/access-tokens", adminHandler.AddAccessToken)
		admin.DELETE("/servers/:id/access-tokens/:token", adminHandler.RemoveAccessToken)
	}
}
