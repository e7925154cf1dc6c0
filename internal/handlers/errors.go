// Package handlers provides the HTTP handlers of the JSON API.
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/card-runner/internal/airwallex"
	"github.com/pandeptwidyaop/card-runner/internal/automation"
	"github.com/pandeptwidyaop/card-runner/internal/middleware"
	"github.com/pandeptwidyaop/card-runner/internal/services"
	"github.com/pandeptwidyaop/card-runner/internal/validation"
)

// errorStatus maps a service error to an HTTP status.
func errorStatus(err error) int {
	var verr *automation.ValidationError
	var apiErr *airwallex.APIError

	switch {
	case errors.Is(err, services.ErrConfigNotFound),
		errors.Is(err, services.ErrRunNotFound),
		errors.Is(err, services.ErrCardNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrRunNotActive):
		return http.StatusConflict
	case errors.Is(err, automation.ErrInvalidSettingsJSON),
		errors.As(err, &verr),
		errors.Is(err, services.ErrSettingsNotObject),
		errors.Is(err, validation.ErrNameEmpty),
		errors.Is(err, validation.ErrInputTooLong),
		errors.Is(err, validation.ErrInputInvalid),
		services.IsSettingsError(err):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": msg} with the mapped status.
func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// audit records an action of the current user.
func audit(c *gin.Context, svc *services.AuditService, action, resourceType, resourceID string, details map[string]interface{}) {
	svc.LogAction(middleware.CurrentUser(c), action, resourceType, resourceID, details, c.ClientIP(), c.GetHeader("User-Agent"))
}
