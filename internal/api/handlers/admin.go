package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voiceorder/printspool/internal/db"
	"github.com/voiceorder/printspool/internal/pipeline"
	"github.com/voiceorder/printspool/internal/ticket"
)

// AdminHandler is the operator surface: inspect jobs and retry failed ones.
// Routes are scoped by organization in the path.
type AdminHandler struct {
	jobs     db.JobStore
	orders   db.OrderStore
	pipeline *pipeline.Pipeline
}

func NewAdminHandler(jobs db.JobStore, orders db.OrderStore, p *pipeline.Pipeline) *AdminHandler {
	return &AdminHandler{jobs: jobs, orders: orders, pipeline: p}
}

type listJobsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListJobs returns jobs for the organization, newest first.
func (h *AdminHandler) ListJobs(c *gin.Context) {
	orgID := c.Param("org")

	var query listJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if query.Status != "" && query.Status != "all" && !db.ValidStatus(query.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}
	if query.Limit <= 0 {
		query.Limit = defaultListLimit
	}
	if query.Limit > maxListLimit {
		query.Limit = maxListLimit
	}

	jobs, err := h.jobs.List(c.Request.Context(), orgID, query.Status, query.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	if jobs == nil {
		jobs = []*db.PrintJob{}
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GetJob returns one job by id.
func (h *AdminHandler) GetJob(c *gin.Context) {
	orgID := c.Param("org")
	jobID := c.Param("id")

	job, err := h.jobs.GetByID(c.Request.Context(), orgID, jobID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// RetryJob re-fires a failed job. The conditional failed->retrying
// transition happens here so a lost race surfaces as a conflict; the
// reprint itself runs asynchronously.
func (h *AdminHandler) RetryJob(c *gin.Context) {
	orgID := c.Param("org")
	jobID := c.Param("id")

	job, err := h.jobs.GetByID(c.Request.Context(), orgID, jobID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	if job.Status != db.StatusFailed {
		c.JSON(http.StatusConflict, gin.H{"error": "only failed jobs can be retried"})
		return
	}

	rec, err := h.orders.GetOrder(c.Request.Context(), orgID, job.OrderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get order"})
		return
	}

	var order ticket.Order
	if err := json.Unmarshal(rec.Payload, &order); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored order is unreadable"})
		return
	}

	ok, err := h.jobs.MarkRetryingByID(c.Request.Context(), orgID, jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update job"})
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "job is no longer in failed state"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		res := h.pipeline.Resume(ctx, orgID, &order)
		if !res.OK {
			log.Printf("[admin] retry org=%s job=%s: %s", orgID, jobID, res.Error)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"ok": true, "job_id": jobID, "status": "retrying"})
}
