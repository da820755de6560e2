package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/hive-services/backend/internal/config"
	"github.com/hive-services/backend/internal/http/handlers"
	"github.com/hive-services/backend/internal/http/middleware"
	"github.com/hive-services/backend/internal/models"

	_ "github.com/hive-services/backend/docs"
)

func Router(cfg config.Config, h *handlers.Handler, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			middleware.AdminKeyHeader, middleware.RequestIDHeader,
			middleware.ActorRoleHeader, middleware.ActorIDHeader, middleware.ActorAreasHeader,
		},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.Use(middleware.Actor(cfg.AdminKey))
	{
		api.GET("/requests", h.RequestsList)
		api.POST("/requests", h.RequestSubmit)
		api.GET("/requests/:id", h.RequestDetails)
		api.GET("/requests/:id/history", h.RequestHistory)
		api.POST("/requests/:id/available-dates", h.AvailableDateAdd)
		api.DELETE("/requests/:id/available-dates", h.AvailableDateRemove)
		api.GET("/requests/:id/eligibility", h.RequestEligibility)

		api.POST("/requests/:id/escalate", h.Transition(models.StatusUrgent))
		api.POST("/requests/:id/delegate", h.Transition(models.StatusDelegated))
		api.POST("/requests/:id/approve", h.Transition(models.StatusApproved))
		api.POST("/requests/:id/refuse", h.Transition(models.StatusRefusedByManager))
		api.POST("/requests/:id/start", h.Transition(models.StatusInProgress))
		api.POST("/requests/:id/complete", h.Transition(models.StatusCompleted))
		api.POST("/requests/:id/reject", h.Transition(models.StatusRejected))

		api.GET("/requests/:id/invoice", h.InvoiceGet)
		api.POST("/requests/:id/invoice", h.InvoiceCreate)
		api.PATCH("/requests/:id/invoice", h.InvoiceUpdate)
		api.DELETE("/requests/:id/invoice", h.InvoiceDelete)
		api.POST("/requests/:id/invoice/visibility", h.InvoiceToggleVisibility)

		api.GET("/requests/:id/photos", h.PhotosGet)
		api.POST("/requests/:id/photos", h.PhotosAppend)
		api.GET("/requests/:id/photos/:kind/:index", h.PhotoPage)

		api.GET("/stats", h.Stats)
		api.GET("/managers", h.ManagersList)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/roster", h.RosterUpsert)
		admin.POST("/escalation/sweep", h.EscalationSweep)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
