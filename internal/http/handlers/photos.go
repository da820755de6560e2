package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hive-services/backend/internal/apperrors"
	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/service"
)

func (h *Handler) PhotosGet(c *gin.Context) {
	doc, err := h.Photos.Get(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err, "Failed to get photos")
		return
	}
	c.JSON(http.StatusOK, doc)
}

// @Summary Add a photo
// @Tags photos
// @Accept json
// @Produce json
// @Param id path string true "request id"
// @Param payload body service.PhotoInput true "photo"
// @Success 201 {object} models.PhotoDocumentation
// @Router /api/requests/{id}/photos [post]
func (h *Handler) PhotosAppend(c *gin.Context) {
	var in service.PhotoInput
	if !bindJSON(c, &in) {
		return
	}
	doc, err := h.Photos.Append(c.Request.Context(), actorOf(c), c.Param("id"), in)
	if err != nil {
		h.writeServiceError(c, err, "Failed to add photo")
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) PhotoPage(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		writeError(c, http.StatusBadRequest, string(apperrors.KindValidation), "index must be a number", nil)
		return
	}
	page, err := h.Photos.Page(c.Request.Context(), actorOf(c), c.Param("id"), models.PhotoKind(c.Param("kind")), index)
	if err != nil {
		h.writeServiceError(c, err, "Failed to get photo")
		return
	}
	c.JSON(http.StatusOK, page)
}
