package verification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler exposes the audit trail over HTTP. Read-only: entries are only
// ever written by the escrow engine.
type Handler struct {
	svc *Service
}

// NewHandler creates the verification HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts verification endpoints on the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/verifications", h.list)
	r.GET("/verifications/stats", h.stats)
	r.GET("/escrows/:id/verifications", h.listForEscrow)
}

func (h *Handler) list(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be in [1, 1000]"})
			return
		}
		limit = n
	}

	logs, err := h.svc.List(c.Request.Context(), c.Query("escrowId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verifications": logs, "count": len(logs)})
}

func (h *Handler) listForEscrow(c *gin.Context) {
	logs, err := h.svc.List(c.Request.Context(), c.Param("id"), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verifications": logs, "count": len(logs)})
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
