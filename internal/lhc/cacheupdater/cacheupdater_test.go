package cacheupdater_test

import (
	"context"
	"testing"
	"time"

	"eve.evalgo.org/internal/bus"
	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/lhc/cacheupdater"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvictor struct {
	removed []chash.Hash
}

func (f *fakeEvictor) Remove(_ string, key chash.Hash) { f.removed = append(f.removed, key) }

func TestUpdaterEvictsRemoteInvalidation(t *testing.T) {
	transport := bus.NewMemTransport()
	evictor := &fakeEvictor{}
	u := cacheupdater.New(transport, evictor, "instance-local")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go u.Run(ctx, "ws1", "cs1", "entries", "invalidate")

	time.Sleep(50 * time.Millisecond)

	key := chash.Of([]byte("skid row"))
	subject := bus.DefaultSubjects().LayerDBEvents("ws1", "cs1", "entries", "invalidate")
	require.NoError(t, transport.Publish(ctx, bus.Message{
		Subject: subject,
		Headers: bus.Headers{InstanceID: "instance-remote", Key: key.String()},
	}, bus.PublishOptions{}))

	require.Eventually(t, func() bool { return len(evictor.removed) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, key, evictor.removed[0])
}

func TestUpdaterSkipsSelfOriginatedEvent(t *testing.T) {
	transport := bus.NewMemTransport()
	evictor := &fakeEvictor{}
	u := cacheupdater.New(transport, evictor, "instance-local")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go u.Run(ctx, "ws1", "cs1", "entries", "invalidate")

	time.Sleep(50 * time.Millisecond)

	subject := bus.DefaultSubjects().LayerDBEvents("ws1", "cs1", "entries", "invalidate")
	require.NoError(t, transport.Publish(ctx, bus.Message{
		Subject: subject,
		Headers: bus.Headers{InstanceID: "instance-local", Key: chash.Of([]byte("x")).String()},
	}, bus.PublishOptions{}))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, evictor.removed)
}
