package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voiceorder/printspool/internal/api/middleware"
	"github.com/voiceorder/printspool/internal/db"
)

// AgentHandler serves the polling-agent protocol: claim-next and
// report-status. The calling organization comes from the agent token.
type AgentHandler struct {
	store db.JobStore
}

func NewAgentHandler(store db.JobStore) *AgentHandler {
	return &AgentHandler{store: store}
}

type claimResponse struct {
	PrintJobID string `json:"print_job_id"`
	Content    string `json:"content"`
}

type reportRequest struct {
	PrintJobID string `json:"print_job_id" binding:"required"`
	Status     string `json:"status" binding:"required"`
	Error      string `json:"error"`
}

// ClaimNext hands the oldest queued job to the agent and moves it to
// printing. Responds 204 when nothing is queued.
func (h *AgentHandler) ClaimNext(c *gin.Context) {
	orgID := middleware.OrgID(c)
	if orgID == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "organization not resolved"})
		return
	}

	job, err := h.store.ClaimNext(c.Request.Context(), orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to claim job"})
		return
	}
	if job == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, claimResponse{PrintJobID: job.ID, Content: job.Content})
}

// ReportStatus records the agent's terminal outcome for a claimed job.
func (h *AgentHandler) ReportStatus(c *gin.Context) {
	orgID := middleware.OrgID(c)
	if orgID == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "organization not resolved"})
		return
	}

	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "print_job_id and status are required"})
		return
	}

	status := db.JobStatus(req.Status)
	if status != db.StatusSent && status != db.StatusFailed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be sent or failed"})
		return
	}

	found, err := h.store.ReportStatus(c.Request.Context(), orgID, req.PrintJobID, status, req.Error)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update job"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
