package handlers

import (
	"net/http"

	"example.com/backstage/services/fleet/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultAlertLimit = 100

// WorkflowHandler handles command and alert requests
type WorkflowHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewWorkflowHandler creates a new WorkflowHandler instance
func NewWorkflowHandler(svc service.Service, log *logrus.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		service: svc,
		log:     log,
	}
}

type createCommandRequest struct {
	Action string   `json:"action"`
	Value  *float64 `json:"value"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

type createAlertRequest struct {
	AlertType string `json:"alert_type"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
	Code      string `json:"code"`
}

// CreateCommand queues a command for the device
func (h *WorkflowHandler) CreateCommand(c *gin.Context) {
	var req createCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid command format")
		return
	}

	command, err := h.service.CreateCommand(c.Request.Context(), c.Param("id"), req.Action, req.Value)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, command)
}

// ListCommands lists the device's commands in the requested status (pending by default)
func (h *WorkflowHandler) ListCommands(c *gin.Context) {
	commands, err := h.service.ListCommands(c.Request.Context(), c.Param("id"), c.Query("status"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": c.Param("id"),
		"commands":  commands,
		"count":     len(commands),
	})
}

// UpdateCommandStatus completes or rejects a pending command
func (h *WorkflowHandler) UpdateCommandStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	command, err := h.service.UpdateCommandStatus(c.Request.Context(), c.Param("id"), c.Param("commandID"), req.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, command)
}

// CreateAlert raises an alert for the device
func (h *WorkflowHandler) CreateAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid alert format")
		return
	}

	alert, err := h.service.CreateAlert(c.Request.Context(), c.Param("id"), service.CreateAlertInput{
		AlertType: req.AlertType,
		Message:   req.Message,
		Severity:  req.Severity,
		Code:      req.Code,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, alert)
}

// ListAlerts lists the device's newest alerts
func (h *WorkflowHandler) ListAlerts(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultAlertLimit)
	if !ok {
		return
	}

	page, err := h.service.ListAlerts(c.Request.Context(), c.Param("id"), c.Query("status"), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// SetAlertStatus moves an alert through triage
func (h *WorkflowHandler) SetAlertStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	alert, err := h.service.SetAlertStatus(c.Request.Context(), c.Param("alertID"), req.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}
