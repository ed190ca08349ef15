//go:build container
// +build container

package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lvanfai123/moving-service-sub001/models"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisIdempotency_FirstWriteWins(t *testing.T) {
	client := startRedis(t)
	store := NewRedisIdempotencyStore(client, time.Hour)
	ctx := context.Background()
	key := confirmKey("p1", "intent-1")

	_, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	paidAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first := &models.ConfirmResult{PaymentID: "p1", IntentID: "intent-1", Status: models.PaymentStatusPaid, PaidAt: paidAt}
	second := &models.ConfirmResult{PaymentID: "p1", IntentID: "intent-1", Status: models.PaymentStatusFailed, PaidAt: paidAt.Add(time.Hour)}

	require.NoError(t, store.Put(ctx, key, first))
	require.NoError(t, store.Put(ctx, key, second))

	cached, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.PaymentStatusPaid, cached.Status)
	assert.True(t, cached.PaidAt.Equal(paidAt))

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Minute)
}
