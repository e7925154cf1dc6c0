package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/card-runner/internal/metrics"
	"github.com/pandeptwidyaop/card-runner/internal/services"
	"github.com/pandeptwidyaop/card-runner/internal/version"
)

// hostSnapshotTimeout bounds the host snapshot of a status request.
const hostSnapshotTimeout = 3 * time.Second

// SystemHandler reports on the host the browsers run on.
type SystemHandler struct {
	runService *services.RunService
	collect    func(ctx context.Context, dataDir string) (*metrics.HostSnapshot, error)
	dataDir    string
}

func NewSystemHandler(runService *services.RunService, dataDir string) *SystemHandler {
	return &SystemHandler{
		runService: runService,
		collect:    metrics.CollectHost,
		dataDir:    dataDir,
	}
}

// SystemStatus represents the system status response.
type SystemStatus struct {
	Host           *metrics.HostSnapshot `json:"host"`
	Platform       string                `json:"platform"`
	Arch           string                `json:"arch"`
	CurrentVersion string                `json:"current_version"`
	ActiveRuns     int                   `json:"active_runs"`
}

// Status returns the host snapshot and the number of runs holding a browser.
// GET /api/system
func (h *SystemHandler) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), hostSnapshotTimeout)
	defer cancel()

	host, err := h.collect(ctx, h.dataDir)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, SystemStatus{
		Host:           host,
		Platform:       runtime.GOOS,
		Arch:           runtime.GOARCH,
		CurrentVersion: version.Version,
		ActiveRuns:     h.runService.ActiveCount(),
	})
}

// Version returns build information.
// GET /api/version
func Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Info())
}
