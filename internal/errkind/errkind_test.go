package errkind_test

import (
	"errors"
	"testing"

	"eve.evalgo.org/internal/errkind"
	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := errkind.Wrap(errkind.BusPublish, "publish rebase-complete event", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errkind.Is(err, errkind.BusPublish))
	assert.False(t, errkind.Is(err, errkind.Timeout))
}

func TestFatalKinds(t *testing.T) {
	assert.True(t, errkind.GraphInvariantViolation.Fatal())
	assert.True(t, errkind.SnapshotMissing.Fatal())
	assert.False(t, errkind.RebaseConflict.Fatal())
	assert.False(t, errkind.CacheDeserialize.Fatal())
}

func TestErrorMessageIncludesKindAndCause(t *testing.T) {
	err := errkind.Wrap(errkind.Timeout, "veritech call", errors.New("deadline exceeded"))
	msg := err.Error()
	assert.Contains(t, msg, "timeout")
	assert.Contains(t, msg, "veritech call")
	assert.Contains(t, msg, "deadline exceeded")
}
