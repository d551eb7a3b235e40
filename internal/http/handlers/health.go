package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	PrimaryHealthy(ctx context.Context) error
}

type HealthHandler struct {
	primary Pinger
}

func NewHealthHandler(primary Pinger) *HealthHandler { return &HealthHandler{primary: primary} }

// GET /healthcheck
//
// The service stays up while the primary store is down, so an unreachable
// primary is reported as degraded rather than failing the check.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.primary == nil {
		c.String(http.StatusOK, "ok")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	primary := "ok"
	if err := h.primary.PrimaryHealthy(ctx); err != nil {
		primary = "unavailable"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "primary_store": primary})
}
