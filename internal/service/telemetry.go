package service

import (
	"context"
	"math"
	"strings"

	"example.com/backstage/services/fleet/internal/apperrors"
	"example.com/backstage/services/fleet/internal/messaging"
	"example.com/backstage/services/fleet/internal/models"
	"example.com/backstage/services/fleet/internal/repository"

	"github.com/sirupsen/logrus"
)

// RecordReading persists a reading and marks the device as seen in one transaction
func (s *service) RecordReading(ctx context.Context, deviceID, sensorType string, value float64, unit string) (*models.SensorReading, error) {
	kind, err := models.ParseSensorKind(sensorType)
	if err != nil {
		return nil, apperrors.InvalidArgument("%v", err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, apperrors.InvalidArgument("reading value must be finite")
	}

	now := s.now()
	reading := &models.SensorReading{
		DeviceID:   deviceID,
		SensorType: kind,
		Value:      value,
		Unit:       strings.TrimSpace(unit),
		Timestamp:  now,
	}

	err = s.repo.WithTransaction(ctx, func(ctx context.Context, txRepo repository.Repository) error {
		if _, err := requireDevice(ctx, txRepo, deviceID); err != nil {
			return err
		}
		if err := txRepo.CreateReading(ctx, reading); err != nil {
			return err
		}
		return txRepo.TouchDevice(ctx, deviceID, now)
	})
	if err != nil {
		return nil, storeError(err, "device "+deviceID)
	}

	s.log.WithFields(logrus.Fields{
		"device_id":   deviceID,
		"sensor_type": kind,
		"value":       value,
	}).Debug("Reading recorded")

	s.publish(messaging.EventReadingRecorded, deviceID, reading)
	return reading, nil
}

// readingQuery validates the query parameters shared by listing and export
func (s *service) readingQuery(deviceID, sensorType, timeframe string, limit int) (models.ReadingQuery, error) {
	q := models.ReadingQuery{DeviceID: deviceID, Limit: limit}

	if limit < 1 || limit > s.maxLimit {
		return q, apperrors.InvalidArgument("limit must be between 1 and %d", s.maxLimit)
	}
	if sensorType != "" {
		kind, err := models.ParseSensorKind(sensorType)
		if err != nil {
			return q, apperrors.InvalidArgument("%v", err)
		}
		q.SensorType = kind
	}
	if timeframe != "" {
		window, err := models.ParseTimeWindow(timeframe)
		if err != nil {
			return q, apperrors.InvalidArgument("%v", err)
		}
		since := window.Since(s.now())
		q.Since = &since
	}

	return q, nil
}

// QueryReadings returns the newest matching readings and the total match count
func (s *service) QueryReadings(ctx context.Context, deviceID, sensorType, timeframe string, limit int) (*models.ReadingPage, error) {
	q, err := s.readingQuery(deviceID, sensorType, timeframe, limit)
	if err != nil {
		return nil, err
	}

	device, err := requireDevice(ctx, s.repo, deviceID)
	if err != nil {
		return nil, err
	}

	readings, total, err := s.repo.QueryReadings(ctx, q)
	if err != nil {
		return nil, storeError(err, "readings")
	}

	return &models.ReadingPage{
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Total:      total,
		Readings:   readings,
	}, nil
}
