package rebaser_test

import (
	"context"
	"testing"
	"time"

	"eve.evalgo.org/internal/bus"
	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/rebaser"
	"eve.evalgo.org/internal/wsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientServerRoundTripReportsSuccess(t *testing.T) {
	transport := bus.NewMemTransport()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := rebaser.NewServer(transport, rebaser.JSONCodec{}, func(_ context.Context, _ rebaser.EnqueueUpdatesRequest) ([]wsg.Conflict, error) {
		return nil, nil
	})
	go server.Serve(ctx, "workspace-1", "change-set-1")

	client := rebaser.NewClient(transport, rebaser.JSONCodec{})
	_, sub, err := client.EnqueueUpdatesWithReply(ctx, "workspace-1", "change-set-1", chash.Of([]byte("appetite for destruction")))
	require.NoError(t, err)
	defer sub.Close()

	select {
	case msg := <-sub.Messages():
		resp, err := client.DecodeReply(msg)
		require.NoError(t, err)
		assert.Equal(t, rebaser.StatusSuccess, resp.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rebase reply")
	}
}

func TestClientServerRoundTripReportsConflicts(t *testing.T) {
	transport := bus.NewMemTransport()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conflictingNode := wsg.Conflict{Kind: wsg.ConflictModifyRemove}
	server := rebaser.NewServer(transport, rebaser.JSONCodec{}, func(_ context.Context, _ rebaser.EnqueueUpdatesRequest) ([]wsg.Conflict, error) {
		return []wsg.Conflict{conflictingNode}, nil
	})
	go server.Serve(ctx, "workspace-1", "change-set-2")

	client := rebaser.NewClient(transport, rebaser.JSONCodec{})
	_, sub, err := client.EnqueueUpdatesWithReply(ctx, "workspace-1", "change-set-2", chash.Of([]byte("use your illusion")))
	require.NoError(t, err)
	defer sub.Close()

	select {
	case msg := <-sub.Messages():
		resp, err := client.DecodeReply(msg)
		require.NoError(t, err)
		assert.Equal(t, rebaser.StatusConflict, resp.Status)
		assert.Len(t, resp.ConflictKeys, 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rebase reply")
	}
}

func TestEnqueueUpdatesWithoutReplyDoesNotBlock(t *testing.T) {
	transport := bus.NewMemTransport()
	client := rebaser.NewClient(transport, rebaser.JSONCodec{})

	requestID, err := client.EnqueueUpdates(context.Background(), "workspace-1", "change-set-3", chash.Of([]byte("chinese democracy")))
	require.NoError(t, err)
	assert.NotZero(t, requestID)
}
