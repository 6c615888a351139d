package service

import (
	"context"
	"testing"
	"time"

	"example.com/backstage/services/fleet/internal/apperrors"
	"example.com/backstage/services/fleet/internal/messaging"
	"example.com/backstage/services/fleet/internal/models"
	"example.com/backstage/services/fleet/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCommand_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	device := f.device(t, "servo")

	_, err := f.svc.CreateCommand(ctx, device.ID, "reboot", nil)
	assertKind(t, err, apperrors.KindInvalidArgument)

	_, err = f.svc.CreateCommand(ctx, "missing", "toggle_servo", nil)
	assertKind(t, err, apperrors.KindNotFound)

	cmd, err := f.svc.CreateCommand(ctx, device.ID, "set_servo_position", floatPtr(90))
	require.NoError(t, err)
	require.NotNil(t, cmd.Value)
	assert.Equal(t, 90.0, *cmd.Value)
}

func TestListCommands_DefaultsToPendingInCreationOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	device := f.device(t, "servo")

	first, err := f.svc.CreateCommand(ctx, device.ID, "toggle_alert", nil)
	require.NoError(t, err)
	second, err := f.svc.CreateCommand(ctx, device.ID, "toggle_servo", nil)
	require.NoError(t, err)
	done, err := f.svc.CreateCommand(ctx, device.ID, "set_fire_limit", floatPtr(3))
	require.NoError(t, err)
	_, err = f.svc.UpdateCommandStatus(ctx, device.ID, done.ID, "finished")
	require.NoError(t, err)

	pending, err := f.svc.ListCommands(ctx, device.ID, "")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	finished, err := f.svc.ListCommands(ctx, device.ID, "finished")
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, done.ID, finished[0].ID)

	_, err = f.svc.ListCommands(ctx, device.ID, "queued")
	assertKind(t, err, apperrors.KindInvalidArgument)
	_, err = f.svc.ListCommands(ctx, "missing", "")
	assertKind(t, err, apperrors.KindNotFound)
}

func TestUpdateCommandStatus_TerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	device := f.device(t, "servo")

	for _, terminal := range []string{"finished", "rejected"} {
		cmd, err := f.svc.CreateCommand(ctx, device.ID, "toggle_servo", nil)
		require.NoError(t, err)
		_, err = f.svc.UpdateCommandStatus(ctx, device.ID, cmd.ID, terminal)
		require.NoError(t, err)

		for _, next := range []string{"pending", "finished", "rejected"} {
			_, err := f.svc.UpdateCommandStatus(ctx, device.ID, cmd.ID, next)
			assertKind(t, err, apperrors.KindInvalidStateTransition)
		}

		stored, err := f.repo.FindCommandByID(ctx, cmd.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CommandStatus(terminal), stored.Status)
	}
}

func TestUpdateCommandStatus_Lookup(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	device := f.device(t, "servo")
	other := f.device(t, "other")

	cmd, err := f.svc.CreateCommand(ctx, device.ID, "toggle_servo", nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateCommandStatus(ctx, other.ID, cmd.ID, "finished")
	assertKind(t, err, apperrors.KindNotFound)
	_, err = f.svc.UpdateCommandStatus(ctx, "missing", cmd.ID, "finished")
	assertKind(t, err, apperrors.KindNotFound)
	_, err = f.svc.UpdateCommandStatus(ctx, device.ID, "missing", "finished")
	assertKind(t, err, apperrors.KindNotFound)
	_, err = f.svc.UpdateCommandStatus(ctx, device.ID, cmd.ID, "done")
	assertKind(t, err, apperrors.KindInvalidArgument)

	// pending -> pending is not an edge
	_, err = f.svc.UpdateCommandStatus(ctx, device.ID, cmd.ID, "pending")
	assertKind(t, err, apperrors.KindInvalidStateTransition)
}

func TestAlertWorkflow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	device := f.device(t, "hall")

	newAlert := func() *models.Alert {
		alert, err := f.svc.CreateAlert(ctx, device.ID, CreateAlertInput{AlertType: "fire", Message: "smoke", Severity: "critical", Code: "F1"})
		require.NoError(t, err)
		assert.Equal(t, models.AlertNew, alert.Status)
		assert.False(t, alert.Acknowledged)
		return alert
	}

	// new -> resolved
	a := newAlert()
	updated, err := f.svc.SetAlertStatus(ctx, a.ID, "resolved")
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, updated.Status)

	// resolved -> resolved is a no-op
	before, err := f.repo.FindAlertByID(ctx, a.ID)
	require.NoError(t, err)
	same, err := f.svc.SetAlertStatus(ctx, a.ID, "resolved")
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, same.Status)
	after, err := f.repo.FindAlertByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	assert.True(t, before.Timestamp.Equal(after.Timestamp))
	assert.Equal(t, before.Message, after.Message)

	// resolved -> closed, then closed is terminal
	_, err = f.svc.SetAlertStatus(ctx, a.ID, "closed")
	require.NoError(t, err)
	_, err = f.svc.SetAlertStatus(ctx, a.ID, "new")
	assertKind(t, err, apperrors.KindInvalidStateTransition)

	// new -> in_progress -> closed; in_progress -> new is illegal
	b := newAlert()
	_, err = f.svc.SetAlertStatus(ctx, b.ID, "in_progress")
	require.NoError(t, err)
	_, err = f.svc.SetAlertStatus(ctx, b.ID, "new")
	assertKind(t, err, apperrors.KindInvalidStateTransition)
	_, err = f.svc.SetAlertStatus(ctx, b.ID, "closed")
	require.NoError(t, err)

	// new -> closed skips triage
	c := newAlert()
	_, err = f.svc.SetAlertStatus(ctx, c.ID, "closed")
	assertKind(t, err, apperrors.KindInvalidStateTransition)

	_, err = f.svc.SetAlertStatus(ctx, c.ID, "archived")
	assertKind(t, err, apperrors.KindInvalidArgument)
	_, err = f.svc.SetAlertStatus(ctx, "missing", "closed")
	assertKind(t, err, apperrors.KindNotFound)
}

func TestCreateAlert_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	device := f.device(t, "hall")

	_, err := f.svc.CreateAlert(ctx, device.ID, CreateAlertInput{AlertType: "flood"})
	assertKind(t, err, apperrors.KindInvalidArgument)
	_, err = f.svc.CreateAlert(ctx, "missing", CreateAlertInput{AlertType: "fire"})
	assertKind(t, err, apperrors.KindNotFound)
}

func TestListAlerts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	device := f.device(t, "hall")

	var last *models.Alert
	for i := 0; i < 3; i++ {
		alert, err := f.svc.CreateAlert(ctx, device.ID, CreateAlertInput{AlertType: "motion", Severity: "low"})
		require.NoError(t, err)
		last = alert
	}
	_, err := f.svc.SetAlertStatus(ctx, last.ID, "in_progress")
	require.NoError(t, err)

	page, err := f.svc.ListAlerts(ctx, device.ID, "", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Alerts, 2)
	assert.Equal(t, last.ID, page.Alerts[0].ID)

	page, err = f.svc.ListAlerts(ctx, device.ID, "new", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	_, err = f.svc.ListAlerts(ctx, device.ID, "", 0)
	assertKind(t, err, apperrors.KindInvalidArgument)
	_, err = f.svc.ListAlerts(ctx, device.ID, "pending", 10)
	assertKind(t, err, apperrors.KindInvalidArgument)
	_, err = f.svc.ListAlerts(ctx, "missing", "", 10)
	assertKind(t, err, apperrors.KindNotFound)
}

// contendedRepo lets a competing request win every alert status update first
type contendedRepo struct {
	repository.Repository
	rival models.AlertStatus
}

func (r *contendedRepo) UpdateAlertStatus(ctx context.Context, id string, from, to models.AlertStatus, at time.Time) (bool, error) {
	if _, err := r.Repository.UpdateAlertStatus(ctx, id, from, r.rival, at); err != nil {
		return false, err
	}
	return r.Repository.UpdateAlertStatus(ctx, id, from, to, at)
}

func TestSetAlertStatus_LosingSameTargetRaceSucceeds(t *testing.T) {
	f := newFixtureWithRepo(t, nil, func(repo repository.Repository) repository.Repository {
		return &contendedRepo{Repository: repo, rival: models.AlertResolved}
	})
	ctx := context.Background()
	device := f.device(t, "hall")

	alert, err := f.svc.CreateAlert(ctx, device.ID, CreateAlertInput{AlertType: "fire", Message: "smoke"})
	require.NoError(t, err)

	updated, err := f.svc.SetAlertStatus(ctx, alert.ID, "resolved")
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, updated.Status)

	// only the winner reports the change
	require.NoError(t, f.svc.Shutdown())
	assert.NotContains(t, f.bus.types(), messaging.EventAlertStatusChanged)
}

func TestSetAlertStatus_LosingRaceToOtherStatusFails(t *testing.T) {
	f := newFixtureWithRepo(t, nil, func(repo repository.Repository) repository.Repository {
		return &contendedRepo{Repository: repo, rival: models.AlertInProgress}
	})
	ctx := context.Background()
	device := f.device(t, "hall")

	alert, err := f.svc.CreateAlert(ctx, device.ID, CreateAlertInput{AlertType: "fire", Message: "smoke"})
	require.NoError(t, err)

	_, err = f.svc.SetAlertStatus(ctx, alert.ID, "resolved")
	assertKind(t, err, apperrors.KindInvalidStateTransition)

	stored, err := f.repo.FindAlertByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertInProgress, stored.Status)
}

func TestStatusUpdates_ReturnStoredUpdatedAt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	device := f.device(t, "servo")

	cmd, err := f.svc.CreateCommand(ctx, device.ID, "toggle_servo", nil)
	require.NoError(t, err)
	cmd, err = f.svc.UpdateCommandStatus(ctx, device.ID, cmd.ID, "finished")
	require.NoError(t, err)
	storedCmd, err := f.repo.FindCommandByID(ctx, cmd.ID)
	require.NoError(t, err)
	assert.True(t, cmd.UpdatedAt.Equal(storedCmd.UpdatedAt), "returned %v stored %v", cmd.UpdatedAt, storedCmd.UpdatedAt)

	alert, err := f.svc.CreateAlert(ctx, device.ID, CreateAlertInput{AlertType: "fire", Message: "smoke"})
	require.NoError(t, err)
	alert, err = f.svc.SetAlertStatus(ctx, alert.ID, "in_progress")
	require.NoError(t, err)
	storedAlert, err := f.repo.FindAlertByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, alert.UpdatedAt.Equal(storedAlert.UpdatedAt), "returned %v stored %v", alert.UpdatedAt, storedAlert.UpdatedAt)
}
