package shuttle_test

import (
	"context"
	"testing"

	"eve.evalgo.org/internal/bus"
	"eve.evalgo.org/internal/shuttle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDurableWriter struct {
	appended []shuttle.AuditLogEvent
}

func (f *fakeDurableWriter) Append(_ context.Context, _ string, ev shuttle.AuditLogEvent) error {
	f.appended = append(f.appended, ev)
	return nil
}

func TestForwardRelaysAllPendingEventsAndWritesMarker(t *testing.T) {
	transport := bus.NewMemTransport()
	ctx := context.Background()

	durableSubject := bus.DefaultSubjects().AuditLogs("workspace-1")
	durableSub, err := transport.Subscribe(ctx, durableSubject, "test-reader")
	require.NoError(t, err)
	defer durableSub.Close()

	recorder := shuttle.NewRecorder(transport, "workspace-1", "change-set-1", "session-1")
	require.NoError(t, recorder.Record(ctx, shuttle.ComponentCreated, "actor-1", "component-1"))
	require.NoError(t, recorder.Record(ctx, shuttle.AttributeValueUpdated, "actor-1", "av-1"))
	require.NoError(t, recorder.Record(ctx, shuttle.ActionDispatched, "actor-1", "action-1"))
	assert.Equal(t, 3, recorder.EventCount())

	durable := &fakeDurableWriter{}
	sh := shuttle.New(transport, durable)
	forwarded, err := sh.Forward(ctx, "workspace-1", "change-set-1", "session-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, forwarded)
	assert.Len(t, durable.appended, 3)

	// Three events plus one final marker on the durable subject.
	seen := 0
	for {
		select {
		case <-durableSub.Messages():
			seen++
		default:
			assert.Equal(t, 4, seen)
			return
		}
	}
}

func TestForwardCapsAtMaxMessages(t *testing.T) {
	transport := bus.NewMemTransport()
	ctx := context.Background()
	recorder := shuttle.NewRecorder(transport, "workspace-1", "change-set-1", "session-2")
	for i := 0; i < 5; i++ {
		require.NoError(t, recorder.Record(ctx, shuttle.ComponentCreated, "actor-1", "component-x"))
	}

	durable := &fakeDurableWriter{}
	sh := shuttle.New(transport, durable)
	forwarded, err := sh.Forward(ctx, "workspace-1", "change-set-1", "session-2", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, forwarded)
}

func TestReadPullsEventsWithoutAck(t *testing.T) {
	transport := bus.NewMemTransport()
	ctx := context.Background()

	recorder := shuttle.NewRecorder(transport, "workspace-2", "change-set-1", "session-1")
	require.NoError(t, recorder.Record(ctx, shuttle.RebasePerformed, "actor-1", "change-set-1"))

	// Subscribe the durable reader before forwarding, matching
	// MemTransport's fan-out-only delivery model.
	events, err := shuttle.Read(ctx, transport, "workspace-2", 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	durable := &fakeDurableWriter{}
	sh := shuttle.New(transport, durable)
	sub, err := transport.Subscribe(ctx, bus.DefaultSubjects().AuditLogs("workspace-2"), "audit-reader-2")
	require.NoError(t, err)
	defer sub.Close()

	_, err = sh.Forward(ctx, "workspace-2", "change-set-1", "session-1", 10)
	require.NoError(t, err)

	msg := <-sub.Messages()
	assert.NotEmpty(t, msg.Body)
}
