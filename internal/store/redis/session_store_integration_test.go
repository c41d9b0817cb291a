//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/bookstore/internal/store"
)

func setupRedisContainer(t *testing.T, ctx context.Context) *SessionStore {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewClient(ctx, &ClientConfig{
		Addr:           fmt.Sprintf("%s:%s", host, port.Port()),
		StartupTimeout: 30 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewSessionStore(client)
}

func TestIntegration_SessionTTL(t *testing.T) {
	ctx := context.Background()
	st := setupRedisContainer(t, ctx)

	require.NoError(t, st.Set(ctx, "bookstore:session:ttl", []byte(`{"role":"customer"}`), 2*time.Second))

	payload, err := st.Get(ctx, "bookstore:session:ttl")
	require.NoError(t, err)
	require.JSONEq(t, `{"role":"customer"}`, string(payload))

	require.Eventually(t, func() bool {
		_, err := st.Get(ctx, "bookstore:session:ttl")
		return err == store.ErrSessionNotFound
	}, 10*time.Second, 200*time.Millisecond)
}
