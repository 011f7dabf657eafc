package http

import (
	"net/http"

	"project_associa/internal/entities"

	"github.com/gin-gonic/gin"
)

// Config
func (h *Handler) GetAllConfigs(c *gin.Context) {
	_, associationID := attendantScope(c)
	configs, err := h.Dashboard.GetAllConfigs(c.Request.Context(), associationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load config"})
		return
	}
	c.JSON(http.StatusOK, configs)
}

func (h *Handler) SetConfig(c *gin.Context) {
	_, associationID := attendantScope(c)
	var payload struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	// Input validation
	if !entities.IsConfigKey(payload.Key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid config key"})
		return
	}
	if !ValidateLength(payload.Value, 0, MaxConfigValLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Config value too long"})
		return
	}
	payload.Value = SanitizeString(payload.Value)

	if err := h.Dashboard.SetConfig(c.Request.Context(), associationID, payload.Key, payload.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save config"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
