package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hive-services/backend/internal/service"
)

func (h *Handler) InvoiceGet(c *gin.Context) {
	inv, err := h.Invoices.Get(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err, "Failed to get invoice")
		return
	}
	c.JSON(http.StatusOK, inv)
}

// @Summary Issue invoice
// @Description Only for completed requests; one invoice per request
// @Tags invoices
// @Accept json
// @Produce json
// @Param id path string true "request id"
// @Param payload body service.InvoiceInput true "invoice"
// @Success 201 {object} models.Invoice
// @Failure 400 {object} map[string]any
// @Router /api/requests/{id}/invoice [post]
func (h *Handler) InvoiceCreate(c *gin.Context) {
	var in service.InvoiceInput
	if !bindJSON(c, &in) {
		return
	}
	inv, err := h.Invoices.Create(c.Request.Context(), actorOf(c), c.Param("id"), in)
	if err != nil {
		h.writeServiceError(c, err, "Failed to create invoice")
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *Handler) InvoiceUpdate(c *gin.Context) {
	var patch service.InvoicePatch
	if !bindJSON(c, &patch) {
		return
	}
	inv, err := h.Invoices.Update(c.Request.Context(), actorOf(c), c.Param("id"), patch)
	if err != nil {
		h.writeServiceError(c, err, "Failed to update invoice")
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *Handler) InvoiceToggleVisibility(c *gin.Context) {
	inv, err := h.Invoices.ToggleVisibility(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err, "Failed to toggle invoice visibility")
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *Handler) InvoiceDelete(c *gin.Context) {
	if err := h.Invoices.Delete(c.Request.Context(), actorOf(c), c.Param("id")); err != nil {
		h.writeServiceError(c, err, "Failed to delete invoice")
		return
	}
	c.Status(http.StatusNoContent)
}
