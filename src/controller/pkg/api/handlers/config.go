package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openflow-firewall/src/controller/pkg/api/models"
)

// ConfigHandler serves the effective configuration
type ConfigHandler struct {
	settings models.ConfigResponse
}

// NewConfigHandler creates a handler reporting settings
func NewConfigHandler(settings models.ConfigResponse) *ConfigHandler {
	return &ConfigHandler{settings: settings}
}

// GetConfig handles GET /api/v1/config
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings)
}
