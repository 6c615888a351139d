package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Model is the base model with common fields for mutable entities
type Model struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not provide one
func (m *Model) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Device model represents a registered IoT endpoint
type Device struct {
	Model
	Name     string         `json:"name" gorm:"Column:name;not null"`
	Location *string        `json:"location" gorm:"Column:location"`
	Status   DeviceStatus   `json:"status" gorm:"Column:status;type:varchar(16);index"`
	LastSeen *time.Time     `json:"last_seen" gorm:"Column:last_seen;index"`
	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"Column:metadata"`

	Readings []SensorReading `json:"-" gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE"`
	Commands []Command       `json:"-" gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE"`
	Alerts   []Alert         `json:"-" gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE"`
}

// SensorReading is one immutable timestamped measurement
type SensorReading struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DeviceID   string     `json:"device_id" gorm:"Column:device_id;type:varchar(36);not null;index:idx_readings_device_kind_ts,priority:1"`
	SensorType SensorKind `json:"sensor_type" gorm:"Column:sensor_type;type:varchar(16);not null;index:idx_readings_device_kind_ts,priority:2"`
	Value      float64    `json:"value" gorm:"Column:value;not null"`
	Unit       string     `json:"unit" gorm:"Column:unit"`
	Timestamp  time.Time  `json:"timestamp" gorm:"Column:timestamp;not null;index:idx_readings_device_kind_ts,priority:3"`
}

// BeforeCreate assigns a UUID when the caller did not provide one
func (r *SensorReading) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// Command is an instruction queued for a device
type Command struct {
	Model
	DeviceID string        `json:"device_id" gorm:"Column:device_id;type:varchar(36);not null;index:idx_commands_device_status,priority:1"`
	Action   ActionKind    `json:"action" gorm:"Column:action;type:varchar(32);not null"`
	Value    *float64      `json:"value" gorm:"Column:value"`
	Status   CommandStatus `json:"status" gorm:"Column:status;type:varchar(16);not null;index:idx_commands_device_status,priority:2"`
}

// Alert is a detected condition tied to a device
type Alert struct {
	ID           string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DeviceID     string      `json:"device_id" gorm:"Column:device_id;type:varchar(36);not null;index:idx_alerts_device_ts,priority:1"`
	AlertType    AlertKind   `json:"alert_type" gorm:"Column:alert_type;type:varchar(16)"`
	Code         string      `json:"code" gorm:"Column:code"`
	Message      string      `json:"message" gorm:"Column:message;type:text"`
	Severity     string      `json:"severity" gorm:"Column:severity"`
	Status       AlertStatus `json:"status" gorm:"Column:status;type:varchar(16);index"`
	Acknowledged bool        `json:"acknowledged" gorm:"Column:acknowledged;default:false"`
	Timestamp    time.Time   `json:"timestamp" gorm:"Column:timestamp;not null;index:idx_alerts_device_ts,priority:2"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// BeforeCreate assigns a UUID and creation timestamp when missing
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return nil
}

// DeviceSummary is a device together with the sizes of its child collections
type DeviceSummary struct {
	Device        *Device `json:"device"`
	ReadingsCount int64   `json:"readings_count"`
	AlertsCount   int64   `json:"alerts_count"`
	CommandsCount int64   `json:"commands_count"`
}

// ReadingQuery filters a device's readings; zero values mean "no filter"
type ReadingQuery struct {
	DeviceID   string
	SensorType SensorKind
	Since      *time.Time
	Limit      int
}

// ReadingPage is a limited result plus the count of all matching readings
type ReadingPage struct {
	DeviceID   string          `json:"device_id"`
	DeviceName string          `json:"device_name"`
	Total      int64           `json:"total"`
	Readings   []SensorReading `json:"readings"`
}

// AlertPage is a limited alert list plus the count of all matching alerts
type AlertPage struct {
	DeviceID   string  `json:"device_id"`
	DeviceName string  `json:"device_name"`
	Total      int64   `json:"total"`
	Alerts     []Alert `json:"alerts"`
}

// DeviceConfig is the cache-resident mapping of setting name to value
type DeviceConfig map[ConfigSetting]float64
