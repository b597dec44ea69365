package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voiceorder/printspool/internal/api/middleware"
	"github.com/voiceorder/printspool/internal/db"
	"github.com/voiceorder/printspool/internal/pipeline"
	"github.com/voiceorder/printspool/internal/ticket"
)

// OrderHandler ingests order-confirmed events from the voice platform and
// hands them to the print pipeline. Redelivered events are harmless; the
// pipeline's idempotency gate absorbs them.
type OrderHandler struct {
	orders   db.OrderStore
	pipeline *pipeline.Pipeline
}

func NewOrderHandler(orders db.OrderStore, p *pipeline.Pipeline) *OrderHandler {
	return &OrderHandler{orders: orders, pipeline: p}
}

func (h *OrderHandler) OrderConfirmed(c *gin.Context) {
	orgID := middleware.OrgID(c)
	if orgID == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "organization not resolved"})
		return
	}

	var order ticket.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order payload"})
		return
	}
	if order.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_order_id"})
		return
	}

	payload, err := json.Marshal(order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to serialize order"})
		return
	}
	if err := h.orders.PutOrder(c.Request.Context(), &db.OrderRecord{
		OrganizationID: orgID,
		OrderID:        order.OrderID,
		Payload:        payload,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store order"})
		return
	}

	res := h.pipeline.Run(c.Request.Context(), orgID, &order, false)
	if !res.OK && res.Error == "store_error" {
		c.JSON(http.StatusInternalServerError, res)
		return
	}

	// Delivery failures are a job outcome, not a request error; the admin
	// surface exposes them for retry.
	c.JSON(http.StatusOK, res)
}
