package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pollwave/backend/internal/middleware"
	"github.com/pollwave/backend/internal/models"
	"github.com/pollwave/backend/internal/store"
)

const maxDeviceIDLength = 128

type AuthHandler struct {
	users  store.UserStore
	secret []byte
	now    func() time.Time
}

// AnonLogin signs in a device anonymously, creating its user on first use.
func (h *AuthHandler) AnonLogin(c *gin.Context) {
	var input models.AnonLoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return
	}
	deviceID := strings.TrimSpace(input.DeviceID)
	if deviceID == "" || len(deviceID) > maxDeviceIDLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return
	}

	now := h.now().UTC()
	user, err := h.users.TouchDeviceUser(c.Request.Context(), deviceID, now)
	if err != nil {
		writeError(c, err)
		return
	}

	token, err := middleware.IssueToken(h.secret, user.ID, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{Token: token, User: user})
}

// GetMe returns the current authenticated user id
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": userID})
}
