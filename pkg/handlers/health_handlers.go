package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health is the liveness probe
func (h *HandlerService) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// GetStatus returns the service status including the scheduler state
func (h *HandlerService) GetStatus(c *gin.Context) {
	status := gin.H{
		"service":   "costscan",
		"status":    "running",
		"timestamp": time.Now().UTC(),
	}
	if h.scheduler != nil {
		status["scheduler"] = h.scheduler.Status()
	}
	c.JSON(http.StatusOK, status)
}
