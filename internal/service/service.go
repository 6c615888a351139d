package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"example.com/backstage/services/fleet/internal/analysis"
	"example.com/backstage/services/fleet/internal/apperrors"
	"example.com/backstage/services/fleet/internal/cache"
	"example.com/backstage/services/fleet/internal/messaging"
	"example.com/backstage/services/fleet/internal/models"
	"example.com/backstage/services/fleet/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Service defines the business logic operations
type Service interface {
	// Device operations
	RegisterDevice(ctx context.Context, in RegisterDeviceInput) (*models.Device, error)
	GetDevice(ctx context.Context, id string) (*models.DeviceSummary, error)
	ListDevices(ctx context.Context, status string, limit int) ([]*models.Device, error)
	UpdateDevice(ctx context.Context, id string, in UpdateDeviceInput) (*models.Device, error)
	DeleteDevice(ctx context.Context, id string) error
	MarkStaleDevicesOffline(ctx context.Context, offlineAfter time.Duration) (int64, error)

	// Telemetry operations
	RecordReading(ctx context.Context, deviceID, sensorType string, value float64, unit string) (*models.SensorReading, error)
	QueryReadings(ctx context.Context, deviceID, sensorType, timeframe string, limit int) (*models.ReadingPage, error)
	ExportReadings(ctx context.Context, deviceID, sensorType, timeframe string, limit int, format string) (*Export, error)

	// Command operations
	CreateCommand(ctx context.Context, deviceID, action string, value *float64) (*models.Command, error)
	ListCommands(ctx context.Context, deviceID, status string) ([]*models.Command, error)
	UpdateCommandStatus(ctx context.Context, deviceID, commandID, status string) (*models.Command, error)

	// Alert operations
	CreateAlert(ctx context.Context, deviceID string, in CreateAlertInput) (*models.Alert, error)
	ListAlerts(ctx context.Context, deviceID, status string, limit int) (*models.AlertPage, error)
	SetAlertStatus(ctx context.Context, alertID, status string) (*models.Alert, error)

	// Device configuration operations
	SetDeviceConfig(ctx context.Context, deviceID string, partial map[string]float64) (models.DeviceConfig, error)
	GetDeviceConfig(ctx context.Context, deviceID string) (models.DeviceConfig, error)
	ListDeviceConfigs(ctx context.Context) (map[string]models.DeviceConfig, error)

	// Analysis
	AnalyzeDevice(ctx context.Context, deviceID string) (*AnalysisResult, error)

	// Monitoring and lifecycle
	EventStats() map[string]interface{}
	Shutdown() error
}

// RegisterDeviceInput carries the fields accepted on registration
type RegisterDeviceInput struct {
	Name     string
	Location *string
	Metadata json.RawMessage
}

// UpdateDeviceInput carries the mutable device fields; nil means unchanged
type UpdateDeviceInput struct {
	Status   *string
	Location *string
}

// service is an implementation of the Service interface
type service struct {
	repo       repository.Repository
	cache      cache.RedisClient
	publisher  *messaging.Publisher
	analyzer   analysis.Provider
	log        *logrus.Logger
	maxLimit   int
	configTTL  time.Duration
	sampleSize int
	now        func() time.Time
}

// ServiceConfig holds the configuration for the service
type ServiceConfig struct {
	Repository      repository.Repository
	Cache           cache.RedisClient
	MessagingClient messaging.ServiceBusClient
	Analyzer        analysis.Provider
	Logger          *logrus.Logger
	Publisher       messaging.PublisherConfig

	// MaxLimit caps reading and alert list sizes
	MaxLimit int
	// ConfigTTL is applied to cached device configuration; zero keeps entries forever
	ConfigTTL time.Duration
	// SampleSize is the number of newest readings sent for analysis
	SampleSize int
	// Clock overrides time.Now, for tests
	Clock func() time.Time
}

const (
	defaultMaxLimit    = 1000
	defaultSampleSize  = 100
	maxDeviceListLimit = 100
)

// NewService creates a new service instance
func NewService(config ServiceConfig) (Service, error) {
	if config.Repository == nil {
		return nil, errors.New("repository is required")
	}
	if config.Cache == nil {
		return nil, errors.New("cache is required")
	}
	if config.MessagingClient == nil {
		return nil, errors.New("messaging client is required")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = defaultMaxLimit
	}
	if config.SampleSize <= 0 {
		config.SampleSize = defaultSampleSize
	}
	if config.Clock == nil {
		config.Clock = func() time.Time { return time.Now().UTC() }
	}

	publisher := messaging.NewPublisher(config.MessagingClient, config.Logger, config.Publisher)

	return &service{
		repo:       config.Repository,
		cache:      config.Cache,
		publisher:  publisher,
		analyzer:   config.Analyzer,
		log:        config.Logger,
		maxLimit:   config.MaxLimit,
		configTTL:  config.ConfigTTL,
		sampleSize: config.SampleSize,
		now:        config.Clock,
	}, nil
}

// storeError classifies a repository error. Errors that already carry a kind pass through.
func storeError(err error, what string) error {
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("%s not found", what)
	case errors.Is(err, repository.ErrDuplicateKey):
		return apperrors.Conflict(err, "%s already exists", what)
	default:
		return apperrors.Unavailable(err, "store unavailable")
	}
}

// requireDevice loads a device through repo or returns NotFound
func requireDevice(ctx context.Context, repo repository.Repository, id string) (*models.Device, error) {
	device, err := repo.FindDeviceByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "device "+id)
	}
	return device, nil
}

// publish hands an event to the publisher; failures never fail the caller
func (s *service) publish(eventType, deviceID string, payload interface{}) {
	if err := s.publisher.Publish(messaging.NewEvent(eventType, deviceID, payload)); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event_type": eventType,
			"device_id":  deviceID,
		}).Warn("Failed to enqueue event")
	}
}

// Device operations

func (s *service) RegisterDevice(ctx context.Context, in RegisterDeviceInput) (*models.Device, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.InvalidArgument("device name is required")
	}
	if len(in.Metadata) > 0 && !json.Valid(in.Metadata) {
		return nil, apperrors.InvalidArgument("metadata must be valid JSON")
	}

	now := s.now()
	device := &models.Device{
		Name:     name,
		Location: in.Location,
		Status:   models.DeviceStatusActive,
		LastSeen: &now,
	}
	if len(in.Metadata) > 0 {
		device.Metadata = datatypes.JSON(in.Metadata)
	}

	if err := s.repo.CreateDevice(ctx, device); err != nil {
		return nil, storeError(err, "device")
	}

	s.log.WithFields(logrus.Fields{
		"device_id": device.ID,
		"name":      device.Name,
	}).Info("Device registered")

	return device, nil
}

func (s *service) GetDevice(ctx context.Context, id string) (*models.DeviceSummary, error) {
	device, err := requireDevice(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}

	readings, alerts, commands, err := s.repo.CountDeviceChildren(ctx, id)
	if err != nil {
		return nil, storeError(err, "device "+id)
	}

	return &models.DeviceSummary{
		Device:        device,
		ReadingsCount: readings,
		AlertsCount:   alerts,
		CommandsCount: commands,
	}, nil
}

func (s *service) ListDevices(ctx context.Context, status string, limit int) ([]*models.Device, error) {
	if limit < 1 || limit > maxDeviceListLimit {
		return nil, apperrors.InvalidArgument("limit must be between 1 and %d", maxDeviceListLimit)
	}

	var deviceStatus models.DeviceStatus
	if status != "" {
		parsed, err := models.ParseDeviceStatus(status)
		if err != nil {
			return nil, apperrors.InvalidArgument("%v", err)
		}
		deviceStatus = parsed
	}

	devices, err := s.repo.ListDevices(ctx, deviceStatus, limit)
	if err != nil {
		return nil, storeError(err, "devices")
	}
	return devices, nil
}

func (s *service) UpdateDevice(ctx context.Context, id string, in UpdateDeviceInput) (*models.Device, error) {
	var status models.DeviceStatus
	if in.Status != nil {
		parsed, err := models.ParseDeviceStatus(*in.Status)
		if err != nil {
			return nil, apperrors.InvalidArgument("%v", err)
		}
		status = parsed
	}

	device, err := requireDevice(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}

	if status != "" {
		device.Status = status
	}
	if in.Location != nil {
		device.Location = in.Location
	}
	now := s.now()
	device.LastSeen = &now

	if err := s.repo.UpdateDevice(ctx, device); err != nil {
		return nil, storeError(err, "device "+id)
	}

	return device, nil
}

// DeleteDevice removes the device with all of its readings, commands and
// alerts, then drops its cached configuration.
func (s *service) DeleteDevice(ctx context.Context, id string) error {
	err := s.repo.WithTransaction(ctx, func(ctx context.Context, txRepo repository.Repository) error {
		if _, err := requireDevice(ctx, txRepo, id); err != nil {
			return err
		}
		return txRepo.DeleteDevice(ctx, id)
	})
	if err != nil {
		return storeError(err, "device "+id)
	}

	if err := s.cache.Delete(ctx, configKey(id)); err != nil {
		s.log.WithError(err).WithField("device_id", id).Warn("Failed to delete cached device configuration")
	}

	s.publish(messaging.EventDeviceDeleted, id, nil)
	s.log.WithField("device_id", id).Info("Device deleted")
	return nil
}

// MarkStaleDevicesOffline flips devices not seen within offlineAfter to offline
func (s *service) MarkStaleDevicesOffline(ctx context.Context, offlineAfter time.Duration) (int64, error) {
	if offlineAfter <= 0 {
		return 0, apperrors.InvalidArgument("offline threshold must be positive")
	}

	n, err := s.repo.MarkStaleDevicesOffline(ctx, s.now().Add(-offlineAfter))
	if err != nil {
		return 0, storeError(err, "devices")
	}
	if n > 0 {
		s.log.WithField("devices", n).Info("Marked stale devices offline")
	}
	return n, nil
}

// EventStats returns current publisher statistics
func (s *service) EventStats() map[string]interface{} {
	return s.publisher.Stats()
}

// Shutdown drains pending events
func (s *service) Shutdown() error {
	s.log.Info("Shutting down service...")
	s.publisher.Stop()
	s.log.Info("Service shutdown complete")
	return nil
}
