package handlers

import (
	"fmt"
	"net/http"

	"example.com/backstage/services/fleet/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultReadingLimit = 100

// TelemetryHandler handles sensor reading requests
type TelemetryHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewTelemetryHandler creates a new TelemetryHandler instance
func NewTelemetryHandler(svc service.Service, log *logrus.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		service: svc,
		log:     log,
	}
}

type recordReadingRequest struct {
	SensorType string   `json:"sensor_type"`
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit"`
}

// RecordReading ingests one reading for the device
func (h *TelemetryHandler) RecordReading(c *gin.Context) {
	var req recordReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid reading format")
		return
	}
	if req.Value == nil {
		badRequest(c, "value is required")
		return
	}

	reading, err := h.service.RecordReading(c.Request.Context(), c.Param("id"), req.SensorType, *req.Value, req.Unit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, reading)
}

// QueryReadings lists the newest readings matching sensor_type, timeframe and limit
func (h *TelemetryHandler) QueryReadings(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultReadingLimit)
	if !ok {
		return
	}

	page, err := h.service.QueryReadings(c.Request.Context(), c.Param("id"), c.Query("sensor_type"), c.Query("timeframe"), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// ExportReadings downloads the selected readings as CSV or XLSX
func (h *TelemetryHandler) ExportReadings(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultReadingLimit)
	if !ok {
		return
	}

	export, err := h.service.ExportReadings(c.Request.Context(), c.Param("id"),
		c.Query("sensor_type"), c.Query("timeframe"), limit, c.DefaultQuery("format", service.ExportCSV))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	c.Data(http.StatusOK, export.ContentType, export.Data)
}
