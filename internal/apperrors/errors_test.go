package apperrors

import (
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := NotFound("device %s not found", "d1")

	assert.Equal(t, KindNotFound, KindOf(base))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("handler: %w", base)))
	assert.Equal(t, KindNotFound, KindOf(pkgerrors.Wrap(base, "service")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestIsMatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", InvalidStateTransition("command is %s", "finished"))

	assert.True(t, errors.Is(err, ErrInvalidStateTransition))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Unavailable(cause, "configuration cache unavailable")

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "configuration cache unavailable: dial tcp: connection refused", err.Error())
	assert.Equal(t, "configuration cache unavailable", MessageOf(err))
	assert.Equal(t, "Internal server error", MessageOf(cause))
}
