package v2

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// CheckHealth godoc
// @Summary Check system health status
// @Tags system
// @Produce json
// @Success 200 {object} healthStatus
// @Failure 503 {object} healthStatus
// @Router /health [get]
func (h *Handler) CheckHealth(c *gin.Context) {
	status := healthStatus{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK

	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			status.Checks[name] = err.Error()
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}

	sendJSON(c, code, status)
}

// GetIndexSummary godoc
// @Summary Describe the vector index
// @Tags index
// @Produce json
// @Success 200 {object} manifest.Summary
// @Failure 503 {object} ErrorResponse
// @Router /index/summary [get]
func (h *Handler) GetIndexSummary(c *gin.Context) {
	summary, err := h.indexService.Summary(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, summary)
}
