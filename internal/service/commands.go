package service

import (
	"context"
	"math"

	"example.com/backstage/services/fleet/internal/apperrors"
	"example.com/backstage/services/fleet/internal/messaging"
	"example.com/backstage/services/fleet/internal/models"

	"github.com/sirupsen/logrus"
)

// commandStatusChange is the payload of command.status_changed events
type commandStatusChange struct {
	CommandID string               `json:"command_id"`
	From      models.CommandStatus `json:"from"`
	To        models.CommandStatus `json:"to"`
}

// CreateCommand queues a pending command for the device
func (s *service) CreateCommand(ctx context.Context, deviceID, action string, value *float64) (*models.Command, error) {
	kind, err := models.ParseActionKind(action)
	if err != nil {
		return nil, apperrors.InvalidArgument("%v", err)
	}
	if value != nil && (math.IsNaN(*value) || math.IsInf(*value, 0)) {
		return nil, apperrors.InvalidArgument("command value must be finite")
	}

	if _, err := requireDevice(ctx, s.repo, deviceID); err != nil {
		return nil, err
	}

	now := s.now()
	command := &models.Command{
		Model:    models.Model{CreatedAt: now, UpdatedAt: now},
		DeviceID: deviceID,
		Action:   kind,
		Value:    value,
		Status:   models.CommandPending,
	}
	if err := s.repo.CreateCommand(ctx, command); err != nil {
		return nil, storeError(err, "device "+deviceID)
	}

	s.log.WithFields(logrus.Fields{
		"device_id":  deviceID,
		"command_id": command.ID,
		"action":     kind,
	}).Info("Command created")

	s.publish(messaging.EventCommandCreated, deviceID, command)
	return command, nil
}

// ListCommands returns the device's commands in a status, oldest first.
// An empty status selects pending commands.
func (s *service) ListCommands(ctx context.Context, deviceID, status string) ([]*models.Command, error) {
	commandStatus := models.CommandPending
	if status != "" {
		parsed, err := models.ParseCommandStatus(status)
		if err != nil {
			return nil, apperrors.InvalidArgument("%v", err)
		}
		commandStatus = parsed
	}

	if _, err := requireDevice(ctx, s.repo, deviceID); err != nil {
		return nil, err
	}

	commands, err := s.repo.ListCommands(ctx, deviceID, commandStatus)
	if err != nil {
		return nil, storeError(err, "commands")
	}
	return commands, nil
}

// UpdateCommandStatus moves a pending command to finished or rejected
func (s *service) UpdateCommandStatus(ctx context.Context, deviceID, commandID, status string) (*models.Command, error) {
	next, err := models.ParseCommandStatus(status)
	if err != nil {
		return nil, apperrors.InvalidArgument("%v", err)
	}

	if _, err := requireDevice(ctx, s.repo, deviceID); err != nil {
		return nil, err
	}

	command, err := s.repo.FindCommandByID(ctx, commandID)
	if err != nil {
		return nil, storeError(err, "command "+commandID)
	}
	if command.DeviceID != deviceID {
		return nil, apperrors.NotFound("command %s not found", commandID)
	}

	current := command.Status
	if !current.CanTransitionTo(next) {
		return nil, apperrors.InvalidStateTransition("command %s cannot move from %s to %s", commandID, current, next)
	}

	now := s.now()
	ok, err := s.repo.UpdateCommandStatus(ctx, commandID, current, next, now)
	if err != nil {
		return nil, storeError(err, "command "+commandID)
	}
	if !ok {
		return nil, apperrors.InvalidStateTransition("command %s is no longer %s", commandID, current)
	}

	command.Status = next
	command.UpdatedAt = now

	s.log.WithFields(logrus.Fields{
		"device_id":  deviceID,
		"command_id": commandID,
		"from":       current,
		"to":         next,
	}).Info("Command status updated")

	s.publish(messaging.EventCommandStatusChanged, deviceID, commandStatusChange{CommandID: commandID, From: current, To: next})
	return command, nil
}
