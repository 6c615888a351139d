package service

import (
	"context"
	"strings"

	"example.com/backstage/services/fleet/internal/apperrors"
	"example.com/backstage/services/fleet/internal/messaging"
	"example.com/backstage/services/fleet/internal/models"

	"github.com/sirupsen/logrus"
)

// CreateAlertInput carries the fields of a new alert
type CreateAlertInput struct {
	AlertType string
	Message   string
	Severity  string
	Code      string
}

type alertStatusChange struct {
	AlertID string             `json:"alert_id"`
	From    models.AlertStatus `json:"from"`
	To      models.AlertStatus `json:"to"`
}

// CreateAlert raises a new, unacknowledged alert for the device
func (s *service) CreateAlert(ctx context.Context, deviceID string, in CreateAlertInput) (*models.Alert, error) {
	kind, err := models.ParseAlertKind(in.AlertType)
	if err != nil {
		return nil, apperrors.InvalidArgument("%v", err)
	}

	if _, err := requireDevice(ctx, s.repo, deviceID); err != nil {
		return nil, err
	}

	alert := &models.Alert{
		DeviceID:  deviceID,
		AlertType: kind,
		Code:      strings.TrimSpace(in.Code),
		Message:   in.Message,
		Severity:  strings.TrimSpace(in.Severity),
		Status:    models.AlertNew,
		Timestamp: s.now(),
	}
	if err := s.repo.CreateAlert(ctx, alert); err != nil {
		return nil, storeError(err, "device "+deviceID)
	}

	s.log.WithFields(logrus.Fields{
		"device_id":  deviceID,
		"alert_id":   alert.ID,
		"alert_type": kind,
		"severity":   alert.Severity,
	}).Info("Alert created")

	s.publish(messaging.EventAlertCreated, deviceID, alert)
	return alert, nil
}

// ListAlerts returns the device's newest alerts, optionally filtered by status
func (s *service) ListAlerts(ctx context.Context, deviceID, status string, limit int) (*models.AlertPage, error) {
	if limit < 1 || limit > s.maxLimit {
		return nil, apperrors.InvalidArgument("limit must be between 1 and %d", s.maxLimit)
	}

	var alertStatus models.AlertStatus
	if status != "" {
		parsed, err := models.ParseAlertStatus(status)
		if err != nil {
			return nil, apperrors.InvalidArgument("%v", err)
		}
		alertStatus = parsed
	}

	device, err := requireDevice(ctx, s.repo, deviceID)
	if err != nil {
		return nil, err
	}

	alerts, total, err := s.repo.ListAlerts(ctx, deviceID, alertStatus, limit)
	if err != nil {
		return nil, storeError(err, "alerts")
	}

	return &models.AlertPage{
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Total:      total,
		Alerts:     alerts,
	}, nil
}

// SetAlertStatus moves an alert along its triage workflow. Requesting the
// current status succeeds without writing.
func (s *service) SetAlertStatus(ctx context.Context, alertID, status string) (*models.Alert, error) {
	next, err := models.ParseAlertStatus(status)
	if err != nil {
		return nil, apperrors.InvalidArgument("%v", err)
	}

	alert, err := s.repo.FindAlertByID(ctx, alertID)
	if err != nil {
		return nil, storeError(err, "alert "+alertID)
	}

	current := alert.Status
	if current == next {
		return alert, nil
	}
	if !current.CanTransitionTo(next) {
		return nil, apperrors.InvalidStateTransition("alert %s cannot move from %s to %s", alertID, current, next)
	}

	now := s.now()
	ok, err := s.repo.UpdateAlertStatus(ctx, alertID, current, next, now)
	if err != nil {
		return nil, storeError(err, "alert "+alertID)
	}
	if !ok {
		// Another request moved the alert first; it may already be where we want it
		latest, err := s.repo.FindAlertByID(ctx, alertID)
		if err != nil {
			return nil, storeError(err, "alert "+alertID)
		}
		if latest.Status == next {
			return latest, nil
		}
		return nil, apperrors.InvalidStateTransition("alert %s is no longer %s", alertID, current)
	}

	alert.Status = next
	alert.UpdatedAt = now

	s.log.WithFields(logrus.Fields{
		"device_id": alert.DeviceID,
		"alert_id":  alertID,
		"from":      current,
		"to":        next,
	}).Info("Alert status updated")

	s.publish(messaging.EventAlertStatusChanged, alert.DeviceID, alertStatusChange{AlertID: alertID, From: current, To: next})
	return alert, nil
}
