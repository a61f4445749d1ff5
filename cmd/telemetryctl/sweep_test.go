package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/septivank/sensor-telemetry/internal/config"
	"github.com/septivank/sensor-telemetry/internal/db"
	"github.com/septivank/sensor-telemetry/internal/repository"
	"github.com/septivank/sensor-telemetry/internal/sensor"
)

// seedSQLite creates a database with one device, two stale readings and one fresh reading
func seedSQLite(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "telemetry.db")
	t.Setenv("DATABASE_DRIVER", config.DriverSQLite)
	t.Setenv("SQLITE_PATH", path)

	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer conn.Close()

	store := repository.NewSQLiteStore(conn)
	now := time.Now().UTC()
	require.NoError(t, store.InsertDevice(ctx, &db.Device{DeviceID: "MCO001", OwnerID: "a@x.com", DisplayName: "MCO001", CreatedAt: now.Add(-30 * 24 * time.Hour)}))

	for _, age := range []time.Duration{10 * 24 * time.Hour, 8 * 24 * time.Hour, time.Hour} {
		ts := now.Add(-age)
		require.NoError(t, store.InsertReading(ctx, &db.Reading{
			ID:         uuid.New(),
			DeviceID:   "MCO001",
			OwnerID:    "a@x.com",
			SensorType: sensor.CarbonMonoxide,
			Value:      12.5,
			Timestamp:  ts,
			ReceivedAt: ts,
		}))
	}
	return path
}

func remainingReadings(t *testing.T, path string) int {
	t.Helper()

	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer conn.Close()

	readings, err := repository.NewSQLiteStore(conn).QueryReadings(ctx, repository.ReadingFilter{
		DeviceID: "MCO001",
		OwnerID:  "a@x.com",
		From:     time.Unix(0, 0),
		To:       time.Now().Add(time.Hour),
		Limit:    100,
	})
	require.NoError(t, err)
	return len(readings)
}

func TestSweep_DefaultHorizon(t *testing.T) {
	path := seedSQLite(t)

	out, err := execute(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2 readings")
	assert.Equal(t, 1, remainingReadings(t, path))
}

func TestSweep_HorizonFlag(t *testing.T) {
	path := seedSQLite(t)

	out, err := execute(t, "sweep", "--horizon", "216h")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 readings")
	assert.Equal(t, 2, remainingReadings(t, path))
}

func TestSweep_HorizonFromEnvironment(t *testing.T) {
	path := seedSQLite(t)
	t.Setenv("RETENTION_HORIZON", "30m")

	out, err := execute(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 3 readings")
	assert.Equal(t, 0, remainingReadings(t, path))
}

func TestSweep_DryRunDeletesNothing(t *testing.T) {
	path := seedSQLite(t)

	out, err := execute(t, "sweep", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "would delete readings before")
	assert.Equal(t, 3, remainingReadings(t, path))
}

func TestSweep_NegativeHorizon(t *testing.T) {
	seedSQLite(t)

	_, err := execute(t, "sweep", "--horizon", "-1h")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "horizon must be positive")
}

func TestSweep_ConfigError(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", config.DriverPostgres)
	t.Setenv("DATABASE_URL", "")

	_, err := execute(t, "sweep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
