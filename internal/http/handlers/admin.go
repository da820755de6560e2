package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hive-services/backend/internal/apperrors"
	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/service"
)

func (h *Handler) ManagersList(c *gin.Context) {
	area := models.Area(strings.ToLower(strings.TrimSpace(c.Query("area"))))
	if area != "" && !area.Valid() {
		writeError(c, http.StatusBadRequest, string(apperrors.KindValidation), "Unknown area", nil)
		return
	}
	items, err := h.Repo.ListManagers(c.Request.Context(), area)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list managers", err.Error())
		return
	}
	if items == nil {
		items = []models.Manager{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Seed the manager/team roster
// @Tags admin
// @Accept json
// @Produce json
// @Param payload body service.RosterInput true "roster"
// @Success 200 {object} map[string]any
// @Router /api/admin/roster [post]
func (h *Handler) RosterUpsert(c *gin.Context) {
	var in service.RosterInput
	if !bindJSON(c, &in) {
		return
	}
	managers, teams, err := h.Resolver.UpsertRoster(c.Request.Context(), in)
	if err != nil {
		h.writeServiceError(c, err, "Failed to store roster")
		return
	}
	c.JSON(http.StatusOK, gin.H{"managers": managers, "teams": teams})
}

// @Summary Run the escalation sweep now
// @Tags admin
// @Produce json
// @Success 200 {object} escalation.SweepResult
// @Router /api/admin/escalation/sweep [post]
func (h *Handler) EscalationSweep(c *gin.Context) {
	res, err := h.Sweeper.RunOnce(c.Request.Context(), h.now())
	if err != nil {
		h.writeServiceError(c, err, "Escalation sweep failed")
		return
	}
	c.JSON(http.StatusOK, res)
}
