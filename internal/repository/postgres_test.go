package repository

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/septivank/sensor-telemetry/internal/db"
)

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.ApplyPostgresSchema(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE readings, devices")
	require.NoError(t, err)

	runStoreSuite(t, NewPostgresStore(pool))
}
