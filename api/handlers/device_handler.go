// api/handlers/device_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"example.com/backstage/services/fleet/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultDeviceListLimit = 100

// DeviceHandler handles device-related requests
type DeviceHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewDeviceHandler creates a new DeviceHandler instance
func NewDeviceHandler(svc service.Service, log *logrus.Logger) *DeviceHandler {
	return &DeviceHandler{
		service: svc,
		log:     log,
	}
}

type registerDeviceRequest struct {
	Name     string          `json:"name"`
	Location *string         `json:"location"`
	Metadata json.RawMessage `json:"metadata"`
}

type updateDeviceRequest struct {
	Status   *string `json:"status"`
	Location *string `json:"location"`
}

// RegisterDevice handles device registration
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.WithError(err).Warn("Invalid device format")
		badRequest(c, "Invalid device format")
		return
	}

	device, err := h.service.RegisterDevice(c.Request.Context(), service.RegisterDeviceInput{
		Name:     req.Name,
		Location: req.Location,
		Metadata: req.Metadata,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, device)
}

// GetDevice returns a device with the sizes of its child collections
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	summary, err := h.service.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ListDevices handles listing devices
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultDeviceListLimit)
	if !ok {
		return
	}

	devices, err := h.service.ListDevices(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

// UpdateDevice handles status and location changes
func (h *DeviceHandler) UpdateDevice(c *gin.Context) {
	var req updateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	device, err := h.service.UpdateDevice(c.Request.Context(), c.Param("id"), service.UpdateDeviceInput{
		Status:   req.Status,
		Location: req.Location,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, device)
}

// DeleteDevice removes a device and everything it owns
func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	if err := h.service.DeleteDevice(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetEventStats returns event publisher statistics
func (h *DeviceHandler) GetEventStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.EventStats())
}
