package routes

import (
	"example.com/backstage/services/fleet/api/handlers"
	"example.com/backstage/services/fleet/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRoutes sets up all the routes for the server
func SetupRoutes(r *gin.Engine, svc service.Service, log *logrus.Logger) {
	// Health check
	r.GET("/health", handlers.HealthCheck)

	api := r.Group("/api/v1")

	deviceHandler := handlers.NewDeviceHandler(svc, log)
	telemetryHandler := handlers.NewTelemetryHandler(svc, log)
	workflowHandler := handlers.NewWorkflowHandler(svc, log)
	configHandler := handlers.NewConfigHandler(svc, log)

	devices := api.Group("/devices")
	{
		devices.POST("", deviceHandler.RegisterDevice)
		devices.GET("", deviceHandler.ListDevices)
		devices.GET("/:id", deviceHandler.GetDevice)
		devices.PATCH("/:id", deviceHandler.UpdateDevice)
		devices.DELETE("/:id", deviceHandler.DeleteDevice)

		// Telemetry
		devices.POST("/:id/readings", telemetryHandler.RecordReading)
		devices.GET("/:id/readings", telemetryHandler.QueryReadings)
		devices.GET("/:id/readings/export", telemetryHandler.ExportReadings)

		// Commands
		devices.POST("/:id/commands", workflowHandler.CreateCommand)
		devices.GET("/:id/commands", workflowHandler.ListCommands)
		devices.PUT("/:id/commands/:commandID/status", workflowHandler.UpdateCommandStatus)

		// Alerts
		devices.POST("/:id/alerts", workflowHandler.CreateAlert)
		devices.GET("/:id/alerts", workflowHandler.ListAlerts)

		// Cached configuration and analysis
		devices.GET("/:id/config", configHandler.GetDeviceConfig)
		devices.PATCH("/:id/config", configHandler.SetDeviceConfig)
		devices.POST("/:id/analyze", configHandler.AnalyzeDevice)
	}

	api.PUT("/alerts/:alertID/status", workflowHandler.SetAlertStatus)
	api.GET("/configs", configHandler.ListDeviceConfigs)

	// System monitoring
	api.GET("/stats/events", deviceHandler.GetEventStats)
}
