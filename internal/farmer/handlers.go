package farmer

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agrilock/agrilock/internal/validation"
)

// Handler exposes the farmer registry over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates the farmer HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts farmer endpoints on the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/farmers", h.create)
	r.GET("/farmers", h.list)
	r.GET("/farmers/:id", h.get)
	r.PATCH("/farmers/:id", h.update)
	r.DELETE("/farmers/:id", h.delete)
}

type createFarmerRequest struct {
	Name          string  `json:"name" binding:"required"`
	WalletAddress string  `json:"walletAddress" binding:"required"`
	Region        string  `json:"region"`
	FarmSizeHa    float64 `json:"farmSizeHa"`
	PrimaryCrop   string  `json:"primaryCrop"`
}

type updateFarmerRequest struct {
	Name        *string  `json:"name"`
	Region      *string  `json:"region"`
	FarmSizeHa  *float64 `json:"farmSizeHa"`
	PrimaryCrop *string  `json:"primaryCrop"`
}

func (h *Handler) create(c *gin.Context) {
	var req createFarmerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
		return
	}

	f, err := h.svc.Create(c.Request.Context(), CreateRequest{
		Name:          req.Name,
		WalletAddress: req.WalletAddress,
		Region:        req.Region,
		FarmSizeHa:    req.FarmSizeHa,
		PrimaryCrop:   req.PrimaryCrop,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *Handler) get(c *gin.Context) {
	f, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) list(c *gin.Context) {
	farmers, err := h.svc.List(c.Request.Context(), 100)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"farmers": farmers, "count": len(farmers)})
}

func (h *Handler) update(c *gin.Context) {
	var req updateFarmerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
		return
	}

	f, err := h.svc.Update(c.Request.Context(), c.Param("id"), UpdateRequest{
		Name:        req.Name,
		Region:      req.Region,
		FarmSizeHa:  req.FarmSizeHa,
		PrimaryCrop: req.PrimaryCrop,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondError(c *gin.Context, err error) {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verrs})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrReferenced):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
