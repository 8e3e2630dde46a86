package bus_test

import (
	"context"
	"testing"
	"time"

	"eve.evalgo.org/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemTransportDeliversToSubscriber(t *testing.T) {
	ctx := context.Background()
	tr := bus.NewMemTransport()

	sub, err := tr.Subscribe(ctx, "rebaser.requests.wsA.csB", "group1")
	require.NoError(t, err)

	msg := bus.Message{
		Subject: "rebaser.requests.wsA.csB",
		Headers: bus.Headers{MessageID: "m1"},
		Body:    []byte("payload"),
	}
	require.NoError(t, tr.Publish(ctx, msg, bus.PublishOptions{}))

	select {
	case got := <-sub.Messages():
		assert.Equal(t, "payload", string(got.Body))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemTransportDedupKeyCollapsesBursts(t *testing.T) {
	ctx := context.Background()
	tr := bus.NewMemTransport()

	sub, err := tr.Subscribe(ctx, "rebaser.tasks.wsA.csB", "group1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		msg := bus.Message{Subject: "rebaser.tasks.wsA.csB", Body: []byte("wakeup")}
		require.NoError(t, tr.Publish(ctx, msg, bus.PublishOptions{DedupKey: "wsA:csB"}))
	}

	select {
	case <-sub.Messages():
	case <-time.After(time.Second):
		t.Fatal("expected at least one delivery")
	}

	select {
	case extra := <-sub.Messages():
		t.Fatalf("expected bursts to collapse to one delivery, got extra message %+v", extra)
	case <-time.After(50 * time.Millisecond):
		// no extra delivery, as expected
	}
}

func TestSubjectHelpersMatchSpecHierarchy(t *testing.T) {
	s := bus.DefaultSubjects()

	assert.Equal(t, "rebaser.requests.ws1.cs1", s.RebaserRequests("ws1", "cs1"))
	assert.Equal(t, "rebaser.tasks.ws1.cs1", s.RebaserTasks("ws1", "cs1"))
	assert.Equal(t, "layerdb.events.ws1.cs1.entries.insert", s.LayerDBEvents("ws1", "cs1", "entries", "insert"))
	assert.Equal(t, "pending_events.audit_log.ws1.cs1.sess1", s.PendingEventsAuditLog("ws1", "cs1", "sess1"))
	assert.Equal(t, "audit_logs.ws1", s.AuditLogs("ws1"))
}
