package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/card-runner/internal/models"
	"github.com/pandeptwidyaop/card-runner/internal/services"
	"github.com/pandeptwidyaop/card-runner/internal/version"
)

// ConfigHandler serves automation configurations and their backups.
type ConfigHandler struct {
	configService *services.ConfigService
	auditService  *services.AuditService
}

func NewConfigHandler(configService *services.ConfigService, auditService *services.AuditService) *ConfigHandler {
	return &ConfigHandler{
		configService: configService,
		auditService:  auditService,
	}
}

// List returns all configs, most recently updated first.
// GET /api/configs
func (h *ConfigHandler) List(c *gin.Context) {
	configs, err := h.configService.List()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

// Create stores a new config. Settings are validated only when a run starts.
// POST /api/configs
func (h *ConfigHandler) Create(c *gin.Context) {
	var req models.CreateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.configService.Create(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	audit(c, h.auditService, "create", services.ResourceConfig, cfg.ID, map[string]interface{}{"name": cfg.Name})
	c.JSON(http.StatusCreated, cfg)
}

// Get returns a config with its recent runs.
// GET /api/configs/:id
func (h *ConfigHandler) Get(c *gin.Context) {
	cfg, err := h.configService.GetWithRuns(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Update changes the name and/or settings of a config.
// PUT /api/configs/:id
func (h *ConfigHandler) Update(c *gin.Context) {
	var req models.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.configService.Update(c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	audit(c, h.auditService, "update", services.ResourceConfig, cfg.ID, map[string]interface{}{"name": cfg.Name})
	c.JSON(http.StatusOK, cfg)
}

// Delete removes a config and its runs.
// DELETE /api/configs/:id
func (h *ConfigHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.configService.Delete(id); err != nil {
		respondError(c, err)
		return
	}

	audit(c, h.auditService, "delete", services.ResourceConfig, id, nil)
	c.JSON(http.StatusOK, gin.H{"message": "config deleted"})
}

// Export downloads every config as a backup document.
// GET /api/configs/export
func (h *ConfigHandler) Export(c *gin.Context) {
	backup, err := h.configService.Export(version.Version)
	if err != nil {
		respondError(c, err)
		return
	}

	audit(c, h.auditService, "export", services.ResourceConfig, "", map[string]interface{}{"config_count": len(backup.Configs)})
	c.Header("Content-Disposition", "attachment; filename=card-runner-configs.json")
	c.JSON(http.StatusOK, backup)
}

// Import creates configs from a backup document. Existing names are
// skipped unless ?overwrite=true.
// POST /api/configs/import
func (h *ConfigHandler) Import(c *gin.Context) {
	var backup models.BackupData
	if err := c.ShouldBindJSON(&backup); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid backup data: " + err.Error()})
		return
	}
	if len(backup.Configs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no configs found in backup"})
		return
	}

	overwrite := c.Query("overwrite") == "true"
	result, err := h.configService.Import(&backup, overwrite)
	if err != nil {
		respondError(c, err)
		return
	}

	audit(c, h.auditService, "import", services.ResourceConfig, "", map[string]interface{}{
		"created": result.Created,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"errors":  len(result.Errors),
	})
	c.JSON(http.StatusOK, result)
}
