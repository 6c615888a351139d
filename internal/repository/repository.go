package repository

import (
	"context"
	"database/sql"
	"time"

	"example.com/backstage/services/fleet/internal/database"
	"example.com/backstage/services/fleet/internal/models"

	"gorm.io/gorm"
)

// Repository provides data access methods
type Repository interface {
	// Transaction support
	WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo Repository) error) error

	// Device operations
	CreateDevice(ctx context.Context, device *models.Device) error
	UpdateDevice(ctx context.Context, device *models.Device) error
	FindDeviceByID(ctx context.Context, id string) (*models.Device, error)
	ListDevices(ctx context.Context, status models.DeviceStatus, limit int) ([]*models.Device, error)
	DeleteDevice(ctx context.Context, id string) error
	TouchDevice(ctx context.Context, id string, seenAt time.Time) error
	CountDeviceChildren(ctx context.Context, id string) (readings, alerts, commands int64, err error)
	MarkStaleDevicesOffline(ctx context.Context, seenBefore time.Time) (int64, error)

	// SensorReading operations
	CreateReading(ctx context.Context, reading *models.SensorReading) error
	QueryReadings(ctx context.Context, q models.ReadingQuery) ([]models.SensorReading, int64, error)

	// Command operations
	CreateCommand(ctx context.Context, command *models.Command) error
	FindCommandByID(ctx context.Context, id string) (*models.Command, error)
	ListCommands(ctx context.Context, deviceID string, status models.CommandStatus) ([]*models.Command, error)
	UpdateCommandStatus(ctx context.Context, id string, from, to models.CommandStatus, at time.Time) (bool, error)

	// Alert operations
	CreateAlert(ctx context.Context, alert *models.Alert) error
	FindAlertByID(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, deviceID string, status models.AlertStatus, limit int) ([]models.Alert, int64, error)
	UpdateAlertStatus(ctx context.Context, id string, from, to models.AlertStatus, at time.Time) (bool, error)
}

// repo is an implementation of the Repository interface
type repo struct {
	db database.DB
}

// Helper type for transaction support
type dbWrapper struct {
	db *gorm.DB
}

func (w *dbWrapper) DB() (*gorm.DB, error) {
	return w.db, nil
}

func (w *dbWrapper) Close() error {
	return nil
}

// NewRepository creates a new repository instance
func NewRepository(db database.DB) Repository {
	return &repo{
		db: db,
	}
}

// conn returns a session bound to the request context
func (r *repo) conn(ctx context.Context) (*gorm.DB, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}
	return gormDB.WithContext(ctx), nil
}

// WithTransaction executes the given function within a database transaction
func (r *repo) WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo Repository) error) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return gormDB.Transaction(func(tx *gorm.DB) error {
		txRepo := &repo{
			db: &dbWrapper{db: tx},
		}
		return fn(ctx, txRepo)
	})
}

// Device operations implementation

func (r *repo) CreateDevice(ctx context.Context, device *models.Device) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Create(device).Error, "create device")
}

func (r *repo) UpdateDevice(ctx context.Context, device *models.Device) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Omit("Readings", "Commands", "Alerts").Save(device).Error, "update device")
}

func (r *repo) FindDeviceByID(ctx context.Context, id string) (*models.Device, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var device models.Device
	if err := gormDB.Where("id = ?", id).First(&device).Error; err != nil {
		return nil, translate(err, "find device")
	}

	return &device, nil
}

func (r *repo) ListDevices(ctx context.Context, status models.DeviceStatus, limit int) ([]*models.Device, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var devices []*models.Device
	query := gormDB.Order("created_at ASC")

	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&devices).Error; err != nil {
		return nil, translate(err, "list devices")
	}

	return devices, nil
}

// DeleteDevice removes the device and every child row. Callers that need
// all-or-nothing semantics run it inside WithTransaction.
func (r *repo) DeleteDevice(ctx context.Context, id string) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	for _, child := range []interface{}{&models.SensorReading{}, &models.Command{}, &models.Alert{}} {
		if err := gormDB.Where("device_id = ?", id).Delete(child).Error; err != nil {
			return translate(err, "delete device children")
		}
	}

	result := gormDB.Where("id = ?", id).Delete(&models.Device{})
	if result.Error != nil {
		return translate(result.Error, "delete device")
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "delete device")
	}

	return nil
}

// TouchDevice records device activity: last_seen moves to seenAt and the device is active again
func (r *repo) TouchDevice(ctx context.Context, id string, seenAt time.Time) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	result := gormDB.Model(&models.Device{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_seen": seenAt,
			"status":    models.DeviceStatusActive,
		})
	if result.Error != nil {
		return translate(result.Error, "touch device")
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "touch device")
	}

	return nil
}

func (r *repo) CountDeviceChildren(ctx context.Context, id string) (int64, int64, int64, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return 0, 0, 0, err
	}

	var readings, alerts, commands int64
	if err := gormDB.Model(&models.SensorReading{}).Where("device_id = ?", id).Count(&readings).Error; err != nil {
		return 0, 0, 0, translate(err, "count readings")
	}
	if err := gormDB.Model(&models.Alert{}).Where("device_id = ?", id).Count(&alerts).Error; err != nil {
		return 0, 0, 0, translate(err, "count alerts")
	}
	if err := gormDB.Model(&models.Command{}).Where("device_id = ?", id).Count(&commands).Error; err != nil {
		return 0, 0, 0, translate(err, "count commands")
	}

	return readings, alerts, commands, nil
}

// MarkStaleDevicesOffline flips active devices not seen since seenBefore to offline
func (r *repo) MarkStaleDevicesOffline(ctx context.Context, seenBefore time.Time) (int64, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}

	result := gormDB.Model(&models.Device{}).
		Where("status = ? AND last_seen IS NOT NULL AND last_seen < ?", models.DeviceStatusActive, seenBefore).
		Update("status", models.DeviceStatusOffline)
	if result.Error != nil {
		return 0, translate(result.Error, "mark stale devices offline")
	}

	return result.RowsAffected, nil
}

// SensorReading operations implementation

func (r *repo) CreateReading(ctx context.Context, reading *models.SensorReading) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Create(reading).Error, "create reading")
}

// QueryReadings returns the newest q.Limit readings matching q and the total
// number of matching readings. The count and the page are read in one
// repeatable-read transaction so they describe the same snapshot.
func (r *repo) QueryReadings(ctx context.Context, q models.ReadingQuery) ([]models.SensorReading, int64, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, 0, err
	}

	var (
		total    int64
		readings = make([]models.SensorReading, 0)
	)
	err = gormDB.Transaction(func(tx *gorm.DB) error {
		filtered := func() *gorm.DB {
			query := tx.Model(&models.SensorReading{}).Where("device_id = ?", q.DeviceID)
			if q.SensorType != "" {
				query = query.Where("sensor_type = ?", q.SensorType)
			}
			if q.Since != nil {
				query = query.Where("timestamp >= ?", *q.Since)
			}
			return query
		}

		if err := filtered().Count(&total).Error; err != nil {
			return translate(err, "count readings")
		}

		query := filtered().Order("timestamp DESC")
		if q.Limit > 0 {
			query = query.Limit(q.Limit)
		}
		return translate(query.Find(&readings).Error, "query readings")
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, err
	}

	return readings, total, nil
}

// Command operations implementation

func (r *repo) CreateCommand(ctx context.Context, command *models.Command) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Create(command).Error, "create command")
}

func (r *repo) FindCommandByID(ctx context.Context, id string) (*models.Command, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var command models.Command
	if err := gormDB.Where("id = ?", id).First(&command).Error; err != nil {
		return nil, translate(err, "find command")
	}

	return &command, nil
}

func (r *repo) ListCommands(ctx context.Context, deviceID string, status models.CommandStatus) ([]*models.Command, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	commands := make([]*models.Command, 0)
	query := gormDB.Where("device_id = ?", deviceID).Order("created_at ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Find(&commands).Error; err != nil {
		return nil, translate(err, "list commands")
	}

	return commands, nil
}

// UpdateCommandStatus moves a command from one status to another only if it
// is still in the expected status, stamping updated_at with at. It reports
// whether a row was changed.
func (r *repo) UpdateCommandStatus(ctx context.Context, id string, from, to models.CommandStatus, at time.Time) (bool, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return false, err
	}

	result := gormDB.Model(&models.Command{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": at})
	if result.Error != nil {
		return false, translate(result.Error, "update command status")
	}

	return result.RowsAffected == 1, nil
}

// Alert operations implementation

func (r *repo) CreateAlert(ctx context.Context, alert *models.Alert) error {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return err
	}

	return translate(gormDB.Create(alert).Error, "create alert")
}

func (r *repo) FindAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var alert models.Alert
	if err := gormDB.Where("id = ?", id).First(&alert).Error; err != nil {
		return nil, translate(err, "find alert")
	}

	return &alert, nil
}

func (r *repo) ListAlerts(ctx context.Context, deviceID string, status models.AlertStatus, limit int) ([]models.Alert, int64, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return nil, 0, err
	}

	filtered := func() *gorm.DB {
		query := gormDB.Model(&models.Alert{}).Where("device_id = ?", deviceID)
		if status != "" {
			query = query.Where("status = ?", status)
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, translate(err, "count alerts")
	}

	alerts := make([]models.Alert, 0)
	query := filtered().Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&alerts).Error; err != nil {
		return nil, 0, translate(err, "list alerts")
	}

	return alerts, total, nil
}

// UpdateAlertStatus is the alert counterpart of UpdateCommandStatus
func (r *repo) UpdateAlertStatus(ctx context.Context, id string, from, to models.AlertStatus, at time.Time) (bool, error) {
	gormDB, err := r.conn(ctx)
	if err != nil {
		return false, err
	}

	result := gormDB.Model(&models.Alert{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": at})
	if result.Error != nil {
		return false, translate(result.Error, "update alert status")
	}

	return result.RowsAffected == 1, nil
}
