package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfmatch/backend/internal/domain"
	"github.com/shelfmatch/backend/internal/usecase"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	runs     *usecase.BatchService
	pipeline *usecase.ItemPipeline
}

// NewHandler creates a new HTTP handler
func NewHandler(runs *usecase.BatchService, pipeline *usecase.ItemPipeline) *Handler {
	return &Handler{
		runs:     runs,
		pipeline: pipeline,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "shelfmatch-backend",
		"version": "1.0.0",
	})
}

// startRunRequest is the payload for starting a batch run.
type startRunRequest struct {
	Items   []domain.DetectionItem `json:"items" binding:"required"`
	Options usecase.RunOptions     `json:"options"`
}

// StartRun admits a batch of detection items and returns the run id.
// The run executes asynchronously; progress is available via GetRun and
// StreamRun.
func (h *Handler) StartRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items must not be empty"})
		return
	}

	id, err := h.runs.StartRun(c.Request.Context(), req.Items, req.Options)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"runId": id,
		"total": len(req.Items),
	})
}

// GetRun returns the current status of a run.
func (h *Handler) GetRun(c *gin.Context) {
	status, err := h.runs.GetRun(c.Param("id"))
	if err != nil {
		h.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetRunDecisions returns the per-item decisions of a finished run in
// completion order.
func (h *Handler) GetRunDecisions(c *gin.Context) {
	id := c.Param("id")

	status, err := h.runs.GetRun(id)
	if err != nil {
		h.runError(c, err)
		return
	}
	if status.State == usecase.RunStateRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "run still in progress"})
		return
	}

	decisions, err := h.runs.Decisions(id)
	if err != nil {
		h.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runId":     id,
		"state":     status.State,
		"decisions": decisions,
	})
}

// StopRun halts admission of new items for a run. In-flight items finish
// and still report their outcomes.
func (h *Handler) StopRun(c *gin.Context) {
	if err := h.runs.StopRun(c.Param("id")); err != nil {
		h.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
}

// StreamRun streams progress events for a run as server-sent events, one
// event per completed item plus a terminal completion event.
func (h *Handler) StreamRun(c *gin.Context) {
	events, cancel, err := h.runs.Subscribe(c.Param("id"))
	if err != nil {
		h.runError(c, err)
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return false
			}
			c.SSEvent(string(ev.Type), string(data))
			return ev.Type != domain.EventComplete
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// MatchItem runs a single detection item through the pipeline synchronously
// and returns its decision.
func (h *Handler) MatchItem(c *gin.Context) {
	var item domain.DetectionItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	decision := h.pipeline.Process(c.Request.Context(), item)
	c.JSON(http.StatusOK, decision)
}

// runError maps run lookup and lifecycle errors to HTTP status codes.
func (h *Handler) runError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
	case errors.Is(err, domain.ErrRunFinished):
		c.JSON(http.StatusConflict, gin.H{"error": "run already finished"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
