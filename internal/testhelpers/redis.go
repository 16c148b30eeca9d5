package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meridianpay/gateway/internal/config"
	"github.com/meridianpay/gateway/internal/infrastructure/redis"
)

type TestRedis struct {
	Container testcontainers.Container
	Client    *goredis.Client
	Config    config.RedisConfig
}

func SetupTestRedis(t *testing.T) *TestRedis {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisConfig := config.RedisConfig{
		Addr:         fmt.Sprintf("%s:%d", host, port.Int()),
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	client, err := redis.Connect(ctx, redisConfig, logger)
	require.NoError(t, err)

	return &TestRedis{
		Container: container,
		Client:    client,
		Config:    redisConfig,
	}
}

func (tr *TestRedis) Cleanup(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, tr.Client.Close())
	require.NoError(t, tr.Container.Terminate(ctx))
}

// FlushDB resets state between test cases.
func (tr *TestRedis) FlushDB(t *testing.T) {
	require.NoError(t, tr.Client.FlushDB(context.Background()).Err())
}
