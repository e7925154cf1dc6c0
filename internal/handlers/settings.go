package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/card-runner/internal/models"
	"github.com/pandeptwidyaop/card-runner/internal/services"
)

// SettingsHandler manages the issuer API credentials.
type SettingsHandler struct {
	settingsService *services.SettingsService
	cardService     *services.CardService
	auditService    *services.AuditService
}

func NewSettingsHandler(settingsService *services.SettingsService, cardService *services.CardService, auditService *services.AuditService) *SettingsHandler {
	return &SettingsHandler{
		settingsService: settingsService,
		cardService:     cardService,
		auditService:    auditService,
	}
}

// Get returns the settings with the API key masked.
// GET /api/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	st, err := h.settingsService.Get()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Update changes the fields present in the request.
// PUT /api/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	var req models.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.settingsService.Update(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	// Never log the key itself.
	audit(c, h.auditService, "update", services.ResourceSettings, st.ID, map[string]interface{}{
		"env":            st.Env,
		"api_key_change": req.APIKey != nil,
	})
	c.JSON(http.StatusOK, st)
}

// Cardholders lists the cardholders of the account, to help find the
// cardholder ID.
// GET /api/settings/cardholders?page=&pageSize=
func (h *SettingsHandler) Cardholders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))

	list, err := h.cardService.ListCardholders(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
