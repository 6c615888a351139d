package service

import (
	"context"
	"errors"
	"time"

	"example.com/backstage/services/fleet/internal/apperrors"
	"example.com/backstage/services/fleet/internal/models"
)

// AnalysisResult is the assessment returned for a device
type AnalysisResult struct {
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	SampleSize  int       `json:"sample_size"`
	Analysis    string    `json:"analysis"`
	GeneratedAt time.Time `json:"generated_at"`
}

// analyzedKinds are the sensor categories sent to the analysis backend
var analyzedKinds = []models.SensorKind{models.SensorFire, models.SensorTemperature, models.SensorHumidity}

// groupReadings buckets readings by category, oldest first
func groupReadings(readings []models.SensorReading) map[string][]float64 {
	grouped := make(map[string][]float64, len(analyzedKinds))
	for _, kind := range analyzedKinds {
		grouped[string(kind)] = []float64{}
	}

	// readings arrive newest first
	for i := len(readings) - 1; i >= 0; i-- {
		r := readings[i]
		if values, ok := grouped[string(r.SensorType)]; ok {
			grouped[string(r.SensorType)] = append(values, r.Value)
		}
	}
	return grouped
}

// AnalyzeDevice sends the device's newest readings to the analysis backend
func (s *service) AnalyzeDevice(ctx context.Context, deviceID string) (*AnalysisResult, error) {
	device, err := requireDevice(ctx, s.repo, deviceID)
	if err != nil {
		return nil, err
	}

	readings, _, err := s.repo.QueryReadings(ctx, models.ReadingQuery{DeviceID: deviceID, Limit: s.sampleSize})
	if err != nil {
		return nil, storeError(err, "readings")
	}

	if s.analyzer == nil {
		return nil, apperrors.Unavailable(errors.New("no analysis provider configured"), "analysis unavailable")
	}

	text, err := s.analyzer.Analyze(ctx, deviceID, groupReadings(readings))
	if err != nil {
		s.log.WithError(err).WithField("device_id", deviceID).Warn("Analysis failed")
		return nil, apperrors.Unavailable(err, "analysis unavailable")
	}

	return &AnalysisResult{
		DeviceID:    device.ID,
		DeviceName:  device.Name,
		SampleSize:  len(readings),
		Analysis:    text,
		GeneratedAt: s.now(),
	}, nil
}
