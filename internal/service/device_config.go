package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"example.com/backstage/services/fleet/internal/apperrors"
	"example.com/backstage/services/fleet/internal/cache"
	"example.com/backstage/services/fleet/internal/models"

	"github.com/sirupsen/logrus"
)

const configKeyPrefix = "device:values:"

func configKey(deviceID string) string {
	return configKeyPrefix + deviceID
}

// readConfig loads the cached configuration; a miss yields an empty map
func (s *service) readConfig(ctx context.Context, deviceID string) (models.DeviceConfig, error) {
	raw, err := s.cache.Get(ctx, configKey(deviceID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.DeviceConfig{}, nil
	}
	if err != nil {
		return nil, apperrors.Unavailable(err, "configuration cache unavailable")
	}

	cfg := models.DeviceConfig{}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, apperrors.Unavailable(err, "cached configuration for device %s is unreadable", deviceID)
	}
	return cfg, nil
}

// SetDeviceConfig merges the provided settings into the cached configuration.
// The read, merge and write run as one optimistic cache transaction so
// concurrent partial writes never drop each other's settings.
func (s *service) SetDeviceConfig(ctx context.Context, deviceID string, partial map[string]float64) (models.DeviceConfig, error) {
	updates := make(models.DeviceConfig, len(partial))
	for name, value := range partial {
		setting, err := models.ParseConfigSetting(name)
		if err != nil {
			return nil, apperrors.InvalidArgument("%v", err)
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, apperrors.InvalidArgument("setting %s must be finite", name)
		}
		updates[setting] = value
	}

	if _, err := requireDevice(ctx, s.repo, deviceID); err != nil {
		return nil, err
	}

	if len(updates) == 0 {
		return s.readConfig(ctx, deviceID)
	}

	var (
		merged    models.DeviceConfig
		decodeErr error
	)
	err := s.cache.Update(ctx, configKey(deviceID), func(raw string, miss bool) (string, error) {
		current := models.DeviceConfig{}
		if !miss {
			if err := json.Unmarshal([]byte(raw), &current); err != nil {
				decodeErr = apperrors.Unavailable(err, "cached configuration for device %s is unreadable", deviceID)
				return "", decodeErr
			}
		}
		for setting, value := range updates {
			current[setting] = value
		}

		data, err := json.Marshal(current)
		if err != nil {
			return "", err
		}
		merged = current
		return string(data), nil
	}, s.configTTL)
	switch {
	case decodeErr != nil:
		return nil, decodeErr
	case errors.Is(err, cache.ErrUpdateConflict):
		return nil, apperrors.Conflict(err, "configuration for device %s is being updated concurrently", deviceID)
	case err != nil:
		return nil, apperrors.Unavailable(err, "configuration cache unavailable")
	}

	s.log.WithFields(logrus.Fields{
		"device_id": deviceID,
		"settings":  len(updates),
	}).Info("Device configuration updated")

	return merged, nil
}

// GetDeviceConfig returns the cached configuration, empty when none is set
func (s *service) GetDeviceConfig(ctx context.Context, deviceID string) (models.DeviceConfig, error) {
	if _, err := requireDevice(ctx, s.repo, deviceID); err != nil {
		return nil, err
	}
	return s.readConfig(ctx, deviceID)
}

// ListDeviceConfigs returns every cached configuration keyed by device id
func (s *service) ListDeviceConfigs(ctx context.Context) (map[string]models.DeviceConfig, error) {
	keys, err := s.cache.Keys(ctx, configKeyPrefix)
	if err != nil {
		return nil, apperrors.Unavailable(err, "configuration cache unavailable")
	}

	configs := make(map[string]models.DeviceConfig, len(keys))
	for _, key := range keys {
		deviceID := strings.TrimPrefix(key, configKeyPrefix)

		raw, err := s.cache.Get(ctx, key)
		if errors.Is(err, cache.ErrCacheMiss) {
			// expired between SCAN and GET
			continue
		}
		if err != nil {
			return nil, apperrors.Unavailable(err, "configuration cache unavailable")
		}

		cfg := models.DeviceConfig{}
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Skipping unreadable cached configuration")
			continue
		}
		configs[deviceID] = cfg
	}

	return configs, nil
}
