package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"inventory-engine/internal/expander"
	"inventory-engine/internal/service"
	"inventory-engine/internal/store"
	"inventory-engine/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	deduction *service.DeductionService
}

// NewHandler creates a new HTTP handler
func NewHandler(deduction *service.DeductionService) *Handler {
	return &Handler{deduction: deduction}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/compile", h.compile)
		v1.POST("/stock/reserve", h.reserve)
		v1.POST("/stock/:orderId/commit", h.commit)
		v1.POST("/stock/:orderId/release", h.release)
		v1.POST("/stock/:orderId/cancel", h.cancel)
		v1.POST("/inventory/:id/restock", h.restock)
		v1.POST("/inventory/:id/adjust", h.adjust)
		v1.POST("/inventory/:id/wastage", h.wastage)
		v1.GET("/inventory/:id", h.getItem)
		v1.GET("/inventory/:id/logs", h.getLogs)
		v1.GET("/stock/:orderId", h.getReservations)
		v1.GET("/catalog/variants", h.listVariants)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// CompileRequest asks for a dry-run manifest for an order-line tree
type CompileRequest struct {
	StoreID string               `json:"store_id" binding:"required"`
	Lines   []expander.OrderLine `json:"lines" binding:"required,min=1"`
}

// ReserveRequest expands and reserves stock for an order
type ReserveRequest struct {
	StoreID     string               `json:"store_id" binding:"required"`
	OrderID     string               `json:"order_id" binding:"required"`
	Lines       []expander.OrderLine `json:"lines" binding:"required,min=1"`
	PerformedBy string               `json:"performed_by,omitempty"`
}

// StockChangeRequest carries quantity and reason for restock/adjust/wastage
type StockChangeRequest struct {
	Quantity    int    `json:"quantity"`
	Delta       int    `json:"delta"`
	Reason      string `json:"reason,omitempty"`
	PerformedBy string `json:"performed_by,omitempty"`
}

// OrderActionRequest carries the optional reason for commit/release/cancel
type OrderActionRequest struct {
	Reason      string `json:"reason,omitempty"`
	PerformedBy string `json:"performed_by,omitempty"`
}

func (h *Handler) compile(c *gin.Context) {
	var req CompileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	manifest, err := h.deduction.Compile(c.Request.Context(), req.StoreID, req.Lines)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, manifest)
}

func (h *Handler) reserve(c *gin.Context) {
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	manifest, err := h.deduction.Reserve(c.Request.Context(), req.StoreID, req.OrderID, req.Lines, req.PerformedBy)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order_id": req.OrderID, "manifest": manifest})
}

func (h *Handler) commit(c *gin.Context) {
	var req OrderActionRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.deduction.Commit(c.Request.Context(), c.Param("orderId"), req.PerformedBy)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": result.Logs})
}

func (h *Handler) release(c *gin.Context) {
	var req OrderActionRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.deduction.Release(c.Request.Context(), c.Param("orderId"), req.Reason, req.PerformedBy)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": result.Logs})
}

func (h *Handler) cancel(c *gin.Context) {
	var req OrderActionRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.deduction.Cancel(c.Request.Context(), c.Param("orderId"), req.Reason, req.PerformedBy)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": result.Logs})
}

func (h *Handler) restock(c *gin.Context) {
	var req StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.deduction.Restock(c.Request.Context(), c.Param("id"), req.Quantity, req.Reason, req.PerformedBy)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": result.Logs})
}

func (h *Handler) adjust(c *gin.Context) {
	var req StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.deduction.Adjust(c.Request.Context(), c.Param("id"), req.Delta, req.Reason, req.PerformedBy)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": result.Logs})
}

func (h *Handler) wastage(c *gin.Context) {
	var req StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.deduction.RecordWastage(c.Request.Context(), c.Param("id"), req.Quantity, req.Reason, req.PerformedBy)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": result.Logs})
}

func (h *Handler) getItem(c *gin.Context) {
	item, err := h.deduction.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) getLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	logs, err := h.deduction.GetLogs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (h *Handler) getReservations(c *gin.Context) {
	rows, err := h.deduction.GetReservations(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": rows})
}

func (h *Handler) listVariants(c *gin.Context) {
	storeID := c.Query("store_id")
	if storeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "store_id is required"})
		return
	}

	variants, err := h.deduction.ListVariants(c.Request.Context(), storeID)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variants": variants})
}

// writeLedgerError maps the failure taxonomy onto status codes. Shortfalls
// are structured results, not opaque errors: the caller decides what to do
// per item.
func writeLedgerError(c *gin.Context, err error) {
	if shortfall, ok := store.AsInsufficientStock(err); ok {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "Insufficient stock",
			"shortfalls": shortfall.Shortfalls,
		})
		return
	}

	switch {
	case errors.Is(err, expander.ErrUnknownMenuItem):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown menu item", "details": err.Error()})
	case errors.Is(err, store.ErrItemNotFound), errors.Is(err, store.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "details": err.Error()})
	case errors.Is(err, store.ErrInvariantViolation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invariant violation", "details": err.Error()})
	case errors.Is(err, store.ErrConcurrencyConflict):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Concurrent update conflict, retry", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed", "details": err.Error()})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
