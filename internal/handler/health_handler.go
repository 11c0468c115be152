package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"finextract/internal/port"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	runs port.RunRepository
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(runs port.RunRepository) *HealthHandler {
	return &HealthHandler{runs: runs}
}

// Liveness handles GET /healthz
// @Summary      Liveness check
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /healthz [get]
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz
// @Summary      Readiness check
// @Description  Checks that the run database is reachable
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Failure      503 {object} map[string]string
// @Router       /readyz [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	if err := h.runs.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database not reachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
