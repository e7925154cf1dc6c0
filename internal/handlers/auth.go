package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/card-runner/internal/middleware"
	"github.com/pandeptwidyaop/card-runner/internal/services"
	"github.com/pandeptwidyaop/card-runner/internal/validation"
)

// AuthHandler handles operator login and sessions.
type AuthHandler struct {
	authService  *services.AuthService
	auditService *services.AuditService
	secureCookie bool
}

func NewAuthHandler(authService *services.AuthService, auditService *services.AuditService, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		auditService: auditService,
		secureCookie: secureCookie,
	}
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks the credentials and sets the session cookie.
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	session, user, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			h.auditService.LogLogin(user, req.Username, c.ClientIP(), c.GetHeader("User-Agent"), false)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	h.auditService.LogLogin(user, user.Username, c.ClientIP(), c.GetHeader("User-Agent"), true)

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(
		middleware.SessionCookieName,
		session.ID,
		int(session.ExpiresAt.Sub(session.CreatedAt).Seconds()),
		"/",
		"",
		h.secureCookie,
		true,
	)

	c.JSON(http.StatusOK, gin.H{
		"message":    "login successful",
		"expires_at": session.ExpiresAt,
	})
}

// Logout ends the current session.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if user := middleware.CurrentUser(c); user != nil {
		h.auditService.LogLogout(user, c.ClientIP(), c.GetHeader("User-Agent"))
	}

	if sessionID, err := c.Cookie(middleware.SessionCookieName); err == nil && sessionID != "" {
		_ = h.authService.DeleteSession(sessionID)
	}

	c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the current user.
// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	u := middleware.CurrentUser(c)
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       u.ID,
		"username": u.Username,
		"is_admin": u.IsAdmin,
	})
}

// ChangePasswordRequest represents a request to change user password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword replaces the password of the current user. The user has
// to log in again afterwards.
// POST /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.ValidatePasswordWithDefault(req.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authService.ChangePassword(user.ID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid old password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change password"})
		return
	}

	audit(c, h.auditService, "password_changed", services.ResourceAuth, "", nil)
	c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "password changed successfully"})
}
