package handlers

import (
	"net/http"

	"example.com/backstage/services/fleet/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ConfigHandler handles cached device configuration and analysis requests
type ConfigHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewConfigHandler creates a new ConfigHandler instance
func NewConfigHandler(svc service.Service, log *logrus.Logger) *ConfigHandler {
	return &ConfigHandler{
		service: svc,
		log:     log,
	}
}

// GetDeviceConfig returns the device's cached settings
func (h *ConfigHandler) GetDeviceConfig(c *gin.Context) {
	cfg, err := h.service.GetDeviceConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": c.Param("id"),
		"config":    cfg,
	})
}

// SetDeviceConfig merges the posted settings into the cached configuration
func (h *ConfigHandler) SetDeviceConfig(c *gin.Context) {
	var partial map[string]float64
	if err := c.ShouldBindJSON(&partial); err != nil {
		badRequest(c, "Configuration must be an object of numeric settings")
		return
	}

	cfg, err := h.service.SetDeviceConfig(c.Request.Context(), c.Param("id"), partial)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": c.Param("id"),
		"config":    cfg,
	})
}

// ListDeviceConfigs returns every cached configuration keyed by device id
func (h *ConfigHandler) ListDeviceConfigs(c *gin.Context) {
	configs, err := h.service.ListDeviceConfigs(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"configs": configs,
		"count":   len(configs),
	})
}

// AnalyzeDevice asks the analysis backend to assess the device's recent readings
func (h *ConfigHandler) AnalyzeDevice(c *gin.Context) {
	result, err := h.service.AnalyzeDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
