//go:build integration

package amqptransport_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"eve.evalgo.org/internal/bus"
	"eve.evalgo.org/internal/bus/amqptransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRabbitMQContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-management-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor: wait.ForLog("Server startup complete").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672")
	require.NoError(t, err)

	url := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
	time.Sleep(2 * time.Second)

	return url, func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
}

func TestAMQPTransportPublishSubscribeRoundTrip(t *testing.T) {
	url, cleanup := setupRabbitMQContainer(t)
	defer cleanup()

	tr, err := amqptransport.New(url)
	require.NoError(t, err)
	defer tr.Close()

	ctx := context.Background()
	sub, err := tr.Subscribe(ctx, "rebaser.requests.ws1.cs1", "rebaser-server")
	require.NoError(t, err)
	defer sub.Close()

	msg := bus.Message{
		Subject: "rebaser.requests.ws1.cs1",
		Headers: bus.Headers{MessageID: "m1"},
		Body:    []byte("enqueue-updates-payload"),
	}
	require.NoError(t, tr.Publish(ctx, msg, bus.PublishOptions{}))

	select {
	case got := <-sub.Messages():
		assert.Equal(t, "enqueue-updates-payload", string(got.Body))
		require.NoError(t, sub.Ack(ctx, got))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}
