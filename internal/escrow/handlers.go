package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agrilock/agrilock/internal/xrpl"
)

// Handler exposes the escrow lifecycle over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates the escrow HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts escrow endpoints on the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/escrows", h.create)
	r.GET("/escrows", h.list)
	r.GET("/escrows/:id", h.get)
	r.POST("/escrows/:id/verify", h.verify)
	r.POST("/escrows/:id/cancel", h.cancel)
}

type createEscrowRequest struct {
	FarmerID     string `json:"farmerId" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	PracticeType string `json:"practiceType" binding:"required"`
	DeadlineDays int    `json:"deadlineDays" binding:"required"`
}

// escrowResponse renders an escrow with the amount in both canonical drops
// and human-readable XRP. The fulfillment never leaves the service.
type escrowResponse struct {
	*Escrow
	Amount string `json:"amount"`
}

func render(e *Escrow) escrowResponse {
	return escrowResponse{Escrow: e, Amount: xrpl.FormatXRP(e.AmountDrops)}
}

func (h *Handler) create(c *gin.Context) {
	var req createEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
		return
	}

	drops, err := xrpl.ParseXRP(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount", "detail": err.Error()})
		return
	}

	e, err := h.svc.Create(c.Request.Context(), CreateRequest{
		FarmerID:     req.FarmerID,
		AmountDrops:  drops,
		PracticeType: req.PracticeType,
		DeadlineDays: req.DeadlineDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, render(e))
}

func (h *Handler) get(c *gin.Context) {
	e, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, render(e))
}

func (h *Handler) list(c *gin.Context) {
	f := Filter{
		FarmerID: c.Query("farmerId"),
		Status:   Status(c.Query("status")),
		Limit:    100,
	}
	escrows, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]escrowResponse, 0, len(escrows))
	for _, e := range escrows {
		out = append(out, render(e))
	}
	c.JSON(http.StatusOK, gin.H{"escrows": out, "count": len(out)})
}

func (h *Handler) verify(c *gin.Context) {
	var ev Evidence
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid evidence body", "detail": err.Error()})
		return
	}

	e, err := h.svc.Verify(c.Request.Context(), c.Param("id"), ev)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, render(e))
}

func (h *Handler) cancel(c *gin.Context) {
	e, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, render(e))
}

// respondError maps domain errors to HTTP statuses. Ledger-side failures
// keep their distinction: unreachable and indeterminate are not rejections.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrFarmerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrUnknownPractice):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidEvidence):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrStateConflict), errors.Is(err, ErrDeadlineNotReached):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, xrpl.ErrUnreachable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unreachable", "detail": err.Error()})
	case errors.Is(err, xrpl.ErrIndeterminate):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "ledger outcome unknown; escrow left pending, retry later",
			"detail": err.Error(),
		})
	case errors.Is(err, xrpl.ErrSubmissionFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "ledger rejected transaction", "detail": err.Error()})
	case errors.Is(err, ErrOrphanedLock):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "escrow record failed after funds were locked; operator attention required"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
