package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hive-services/backend/internal/apperrors"
	"github.com/hive-services/backend/internal/db"
	"github.com/hive-services/backend/internal/escalation"
	"github.com/hive-services/backend/internal/http/middleware"
	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/service"
)

type Handler struct {
	Repo     db.Repository
	Requests *service.RequestService
	Engine   *service.Engine
	Resolver *service.AssignmentResolver
	Invoices *service.InvoiceLedger
	Photos   *service.PhotoTracker
	Sweeper  *escalation.Sweeper
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Repo.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeServiceError renders business errors with their own status and code.
// Anything else is an infrastructure fault.
func (h *Handler) writeServiceError(c *gin.Context, err error, what string) {
	if appErr, ok := apperrors.As(err); ok {
		writeError(c, appErr.HTTPStatus(), string(appErr.Kind), appErr.Text(), nil)
		return
	}
	h.Logger.Error().Err(err).Str("request_id", c.GetString(middleware.RequestIDHeader)).Msg(what)
	writeError(c, http.StatusInternalServerError, "DB_ERROR", what, err.Error())
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, string(apperrors.KindValidation), "Invalid payload", err.Error())
		return false
	}
	return true
}

func actorOf(c *gin.Context) models.Actor {
	actor, _ := middleware.CurrentActor(c)
	return actor
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now()
}
