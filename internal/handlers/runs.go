package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/card-runner/internal/models"
	"github.com/pandeptwidyaop/card-runner/internal/services"
)

// RunHandler starts, lists and cancels automation runs.
type RunHandler struct {
	baseCtx         context.Context
	runService      *services.RunService
	auditService    *services.AuditService
	pathPrefix      string
	defaultHeadless bool
}

// NewRunHandler creates a RunHandler. Runs started through it are bound to
// baseCtx rather than to the request, so they are cancelled on shutdown and
// not when the client goes away. defaultHeadless applies to requests that
// omit "headless".
func NewRunHandler(baseCtx context.Context, runService *services.RunService, auditService *services.AuditService, pathPrefix string, defaultHeadless bool) *RunHandler {
	return &RunHandler{
		baseCtx:         baseCtx,
		runService:      runService,
		auditService:    auditService,
		pathPrefix:      pathPrefix,
		defaultHeadless: defaultHeadless,
	}
}

type startRunRequest struct {
	ConfigID string `json:"config_id" binding:"required"`
	Headless *bool  `json:"headless"`
}

// Start runs a config. By default the request waits for the run to finish
// and returns the stored run; with ?async=true it returns 202 and the run
// continues in the background.
// Invalid configs are rejected before a run is recorded in both modes.
// POST /api/runs
func (h *RunHandler) Start(c *gin.Context) {
	var body startRunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "config_id is required"})
		return
	}

	req := models.RunRequest{ConfigID: body.ConfigID, Headless: h.defaultHeadless}
	if body.Headless != nil {
		req.Headless = *body.Headless
	}

	prepared, err := h.runService.Prepare(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	runID := prepared.Run.ID
	audit(c, h.auditService, "start", services.ResourceRun, runID, map[string]interface{}{
		"config_id": req.ConfigID,
		"headless":  req.Headless,
	})

	if c.Query("async") == "true" {
		go h.runService.Execute(h.baseCtx, prepared)

		c.JSON(http.StatusAccepted, gin.H{
			"message":    "run started",
			"run_id":     runID,
			"config_id":  prepared.Config.ID,
			"status_url": h.pathPrefix + "/api/runs/" + runID,
			"cancel_url": h.pathPrefix + "/api/runs/" + runID + "/cancel",
		})
		return
	}

	run, err := h.runService.Execute(h.baseCtx, prepared)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// List returns recent runs.
// GET /api/runs?config_id=&limit=
func (h *RunHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	runs, err := h.runService.List(c.Query("config_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

// Get returns a run with its transcript.
// GET /api/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.runService.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Cancel stops a running run. The run is recorded as failed once its
// browser has closed.
// POST /api/runs/:id/cancel
func (h *RunHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.runService.Cancel(id); err != nil {
		respondError(c, err)
		return
	}

	audit(c, h.auditService, "cancel", services.ResourceRun, id, nil)
	c.JSON(http.StatusAccepted, gin.H{
		"message":    "cancellation requested",
		"status_url": h.pathPrefix + "/api/runs/" + id,
	})
}
