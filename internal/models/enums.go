package models

import (
	"fmt"
	"time"
)

// DeviceStatus is the liveness state of a device
type DeviceStatus string

const (
	DeviceStatusActive  DeviceStatus = "active"
	DeviceStatusOffline DeviceStatus = "offline"
)

// ParseDeviceStatus validates a device status token
func ParseDeviceStatus(s string) (DeviceStatus, error) {
	switch DeviceStatus(s) {
	case DeviceStatusActive, DeviceStatusOffline:
		return DeviceStatus(s), nil
	}
	return "", fmt.Errorf("unknown device status %q", s)
}

// SensorKind identifies the sensor that produced a reading
type SensorKind string

const (
	SensorTemperature SensorKind = "temperature"
	SensorHumidity    SensorKind = "humidity"
	SensorFire        SensorKind = "fire"
	SensorMotion      SensorKind = "motion"
	SensorBattery     SensorKind = "battery"
	SensorAlert       SensorKind = "alert"
)

// ParseSensorKind validates a sensor kind token
func ParseSensorKind(s string) (SensorKind, error) {
	switch SensorKind(s) {
	case SensorTemperature, SensorHumidity, SensorFire, SensorMotion, SensorBattery, SensorAlert:
		return SensorKind(s), nil
	}
	return "", fmt.Errorf("unknown sensor type %q", s)
}

// ActionKind is the fixed vocabulary of device commands
type ActionKind string

const (
	ActionToggleAlert         ActionKind = "toggle_alert"
	ActionToggleServo         ActionKind = "toggle_servo"
	ActionSetServoPosition    ActionKind = "set_servo_position"
	ActionSetTemperatureLimit ActionKind = "set_temperature_limit"
	ActionSetFireLimit        ActionKind = "set_fire_limit"
	ActionSetHumidityLimit    ActionKind = "set_humidity_limit"
)

// ParseActionKind validates a command action token
func ParseActionKind(s string) (ActionKind, error) {
	switch ActionKind(s) {
	case ActionToggleAlert, ActionToggleServo, ActionSetServoPosition,
		ActionSetTemperatureLimit, ActionSetFireLimit, ActionSetHumidityLimit:
		return ActionKind(s), nil
	}
	return "", fmt.Errorf("unknown command action %q", s)
}

// CommandStatus is the state of a command
type CommandStatus string

const (
	CommandPending  CommandStatus = "pending"
	CommandFinished CommandStatus = "finished"
	CommandRejected CommandStatus = "rejected"
)

// ParseCommandStatus validates a command status token
func ParseCommandStatus(s string) (CommandStatus, error) {
	switch CommandStatus(s) {
	case CommandPending, CommandFinished, CommandRejected:
		return CommandStatus(s), nil
	}
	return "", fmt.Errorf("unknown command status %q", s)
}

// Terminal reports whether no transition may leave s
func (s CommandStatus) Terminal() bool {
	switch s {
	case CommandFinished, CommandRejected:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether s -> next is a legal command edge
func (s CommandStatus) CanTransitionTo(next CommandStatus) bool {
	switch s {
	case CommandPending:
		switch next {
		case CommandFinished, CommandRejected:
			return true
		}
	case CommandFinished, CommandRejected:
	}
	return false
}

// AlertKind classifies an alert by the condition that raised it
type AlertKind string

const (
	AlertStudy       AlertKind = "study"
	AlertError       AlertKind = "error"
	AlertTemperature AlertKind = "temperature"
	AlertHumidity    AlertKind = "humidity"
	AlertMotion      AlertKind = "motion"
	AlertBattery     AlertKind = "battery"
	AlertFire        AlertKind = "fire"
)

// ParseAlertKind validates an alert kind token
func ParseAlertKind(s string) (AlertKind, error) {
	switch AlertKind(s) {
	case AlertStudy, AlertError, AlertTemperature, AlertHumidity, AlertMotion, AlertBattery, AlertFire:
		return AlertKind(s), nil
	}
	return "", fmt.Errorf("unknown alert type %q", s)
}

// AlertStatus is the triage state of an alert
type AlertStatus string

const (
	AlertNew        AlertStatus = "new"
	AlertInProgress AlertStatus = "in_progress"
	AlertResolved   AlertStatus = "resolved"
	AlertClosed     AlertStatus = "closed"
)

// ParseAlertStatus validates an alert status token
func ParseAlertStatus(s string) (AlertStatus, error) {
	switch AlertStatus(s) {
	case AlertNew, AlertInProgress, AlertResolved, AlertClosed:
		return AlertStatus(s), nil
	}
	return "", fmt.Errorf("unknown alert status %q", s)
}

// CanTransitionTo reports whether s -> next is a legal alert edge.
// Same-state requests are handled by the caller as no-ops.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch s {
	case AlertNew:
		return next == AlertInProgress || next == AlertResolved
	case AlertInProgress:
		return next == AlertResolved || next == AlertClosed
	case AlertResolved:
		return next == AlertClosed
	case AlertClosed:
		return false
	}
	return false
}

// TimeWindow is one of the fixed look-back buckets for reading queries
type TimeWindow string

const (
	Window1h  TimeWindow = "1h"
	Window3h  TimeWindow = "3h"
	Window6h  TimeWindow = "6h"
	Window8h  TimeWindow = "8h"
	Window12h TimeWindow = "12h"
	Window24h TimeWindow = "24h"
	Window7d  TimeWindow = "7d"
	Window30d TimeWindow = "30d"
)

var windowDurations = map[TimeWindow]time.Duration{
	Window1h:  time.Hour,
	Window3h:  3 * time.Hour,
	Window6h:  6 * time.Hour,
	Window8h:  8 * time.Hour,
	Window12h: 12 * time.Hour,
	Window24h: 24 * time.Hour,
	Window7d:  7 * 24 * time.Hour,
	Window30d: 30 * 24 * time.Hour,
}

// ParseTimeWindow validates a window token
func ParseTimeWindow(s string) (TimeWindow, error) {
	if _, ok := windowDurations[TimeWindow(s)]; ok {
		return TimeWindow(s), nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// Duration returns the look-back length of the window
func (w TimeWindow) Duration() time.Duration {
	return windowDurations[w]
}

// Since returns the lower bound of the window measured back from now
func (w TimeWindow) Since(now time.Time) time.Time {
	return now.Add(-w.Duration())
}

// ConfigSetting is the fixed vocabulary of cache-resident device settings
type ConfigSetting string

const (
	SettingTemperatureLimit ConfigSetting = "temperature_limit"
	SettingHumidityLimit    ConfigSetting = "humidity_limit"
	SettingFireLimit        ConfigSetting = "fire_limit"
	SettingServoPosition    ConfigSetting = "servo_position"
)

// ParseConfigSetting validates a setting name
func ParseConfigSetting(s string) (ConfigSetting, error) {
	switch ConfigSetting(s) {
	case SettingTemperatureLimit, SettingHumidityLimit, SettingFireLimit, SettingServoPosition:
		return ConfigSetting(s), nil
	}
	return "", fmt.Errorf("unknown setting %q", s)
}
