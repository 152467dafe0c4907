// Package postgrestest starts a throwaway Postgres for integration tests.
package postgrestest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nguyentantai21042004/protocol-flow/internal/postgres"
)

// EnvVar enables the container-backed tests when set.
const EnvVar = "PROTOCOL_INTEGRATION"

// Enabled reports whether integration tests were requested.
func Enabled() bool {
	return os.Getenv(EnvVar) != ""
}

// Start runs postgres:16-alpine, connects and migrates the schema.
// The returned func closes the pool and terminates the container.
func Start(ctx context.Context) (*pgxpool.Pool, func(), error) {
	// Ryuk breaks in some CI sandboxes.
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "protocol",
				"POSTGRES_PASSWORD": "protocol",
				"POSTGRES_DB":       "protocol",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("container host: %w", err)
	}
	// testcontainers may report "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("mapped port: %w", err)
	}

	url := fmt.Sprintf("postgres://protocol:protocol@%s:%s/protocol?sslmode=disable", host, port.Port())
	pool, err := postgres.Connect(ctx, url)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(context.Background())
	}
	return pool, cleanup, nil
}
