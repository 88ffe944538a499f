package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Check is one readiness dependency, such as the database or the RPC node.
type Check func(ctx context.Context) error

type Health struct {
	start  time.Time
	warmup time.Duration
	checks map[string]Check
}

// NewHealth reports not ready until warmup has elapsed since now.
func NewHealth(warmup time.Duration, checks map[string]Check) *Health {
	return &Health{start: time.Now(), warmup: warmup, checks: checks}
}

// Healthz is the liveness probe; it answers 200 while the process serves.
func (h *Health) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"type":   "liveness",
	})
}

// Readyz is the readiness probe.
func (h *Health) Readyz(c *gin.Context) {
	elapsed := time.Since(h.start)
	if elapsed < h.warmup {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"type":      "readiness",
			"message":   "warming up",
			"elapsed":   elapsed.String(),
			"remaining": (h.warmup - elapsed).String(),
		})
		return
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"type":    "readiness",
				"message": name + " unavailable",
				"error":   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"type":   "readiness",
		"uptime": elapsed.String(),
	})
}
