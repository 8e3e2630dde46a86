package tasktracker_test

import (
	"context"
	"testing"
	"time"

	"eve.evalgo.org/internal/tasktracker"
	"github.com/stretchr/testify/assert"
)

func TestShutdownWaitsForTrackedTasksToExitOnCancellation(t *testing.T) {
	tr := tasktracker.New()
	started := make(chan struct{})
	tr.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})

	<-started
	assert.True(t, tr.Shutdown(time.Second))
}

func TestShutdownReportsTimeoutWhenTaskIgnoresCancellation(t *testing.T) {
	tr := tasktracker.New()
	tr.Go(func(ctx context.Context) {
		<-time.After(time.Hour)
	})

	assert.False(t, tr.Shutdown(50*time.Millisecond))
}
