package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hive-services/backend/internal/apperrors"
	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/service"
)

// @Summary List service requests
// @Description Requests visible to the calling actor, newest first, with derived SLA tier
// @Tags requests
// @Produce json
// @Param status query string false "comma separated statuses"
// @Param area query string false "client area"
// @Param q query string false "search client name, service type or id"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} service.RequestPage
// @Router /api/requests [get]
func (h *Handler) RequestsList(c *gin.Context) {
	q := service.ListQuery{
		Area:   models.Area(strings.TrimSpace(c.Query("area"))),
		Search: c.Query("q"),
	}
	for _, raw := range strings.Split(c.Query("status"), ",") {
		if st := strings.TrimSpace(raw); st != "" {
			q.Statuses = append(q.Statuses, models.Status(st))
		}
	}
	var err error
	if q.Limit, err = strconv.Atoi(c.DefaultQuery("limit", "50")); err != nil {
		writeError(c, http.StatusBadRequest, string(apperrors.KindValidation), "limit must be a number", nil)
		return
	}
	if q.Offset, err = strconv.Atoi(c.DefaultQuery("offset", "0")); err != nil {
		writeError(c, http.StatusBadRequest, string(apperrors.KindValidation), "offset must be a number", nil)
		return
	}

	page, err := h.Requests.List(c.Request.Context(), actorOf(c), q)
	if err != nil {
		h.writeServiceError(c, err, "Failed to list requests")
		return
	}
	c.JSON(http.StatusOK, page)
}

// @Summary Submit a service request
// @Tags requests
// @Accept json
// @Produce json
// @Param payload body service.SubmitInput true "request"
// @Success 201 {object} service.RequestView
// @Failure 400 {object} map[string]any
// @Router /api/requests [post]
func (h *Handler) RequestSubmit(c *gin.Context) {
	var in service.SubmitInput
	if !bindJSON(c, &in) {
		return
	}
	v, err := h.Requests.Submit(c.Request.Context(), actorOf(c), in)
	if err != nil {
		h.writeServiceError(c, err, "Failed to submit request")
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) RequestDetails(c *gin.Context) {
	v, err := h.Requests.Get(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err, "Failed to get request")
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) RequestHistory(c *gin.Context) {
	events, err := h.Requests.History(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err, "Failed to load history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": events})
}

type dateRequest struct {
	Date           string        `json:"date" binding:"required"`
	ExpectedStatus models.Status `json:"expected_status"`
}

func (h *Handler) AvailableDateAdd(c *gin.Context) {
	var req dateRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.Requests.AddAvailableDate(c.Request.Context(), actorOf(c), c.Param("id"), req.Date, req.ExpectedStatus)
	if err != nil {
		h.writeServiceError(c, err, "Failed to add date")
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) AvailableDateRemove(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		writeError(c, http.StatusBadRequest, string(apperrors.KindValidation), "date is required", nil)
		return
	}
	expected := models.Status(c.Query("expected_status"))
	v, err := h.Requests.RemoveAvailableDate(c.Request.Context(), actorOf(c), c.Param("id"), date, expected)
	if err != nil {
		h.writeServiceError(c, err, "Failed to remove date")
		return
	}
	c.JSON(http.StatusOK, v)
}

// @Summary Delegation eligibility
// @Description Staged manager eligibility for delegating a request
// @Tags requests
// @Produce json
// @Param id path string true "request id"
// @Success 200 {object} service.EligibilityResult
// @Router /api/requests/{id}/eligibility [get]
func (h *Handler) RequestEligibility(c *gin.Context) {
	res, err := h.Requests.Eligibility(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err, "Failed to compute eligibility")
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Dashboard stats
// @Description Counts per status, derived SLA tiers and invoice totals, recomputed per call
// @Tags stats
// @Produce json
// @Success 200 {object} stats.Snapshot
// @Router /api/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	snap, err := h.Requests.Stats(c.Request.Context(), actorOf(c))
	if err != nil {
		h.writeServiceError(c, err, "Failed to compute stats")
		return
	}
	c.JSON(http.StatusOK, snap)
}
