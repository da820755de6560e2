package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/service"
)

// Transition returns the handler for one lifecycle edge target. The body is
// optional for edges that need no input.
//
// @Summary Change request status
// @Tags transitions
// @Accept json
// @Produce json
// @Param id path string true "request id"
// @Param payload body service.Command false "transition input"
// @Success 200 {object} service.RequestView
// @Failure 409 {object} map[string]any
// @Failure 422 {object} map[string]any
// @Router /api/requests/{id}/approve [post]
func (h *Handler) Transition(to models.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd service.Command
		if c.Request.ContentLength != 0 {
			if !bindJSON(c, &cmd) {
				return
			}
		}
		r, err := h.Engine.Transition(c.Request.Context(), actorOf(c), c.Param("id"), to, cmd)
		if err != nil {
			h.writeServiceError(c, err, "Failed to change status")
			return
		}
		c.JSON(http.StatusOK, h.Requests.View(actorOf(c), r))
	}
}
