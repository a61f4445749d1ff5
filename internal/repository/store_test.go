package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/septivank/sensor-telemetry/internal/db"
	"github.com/septivank/sensor-telemetry/internal/sensor"
)

// base is truncated to microseconds so both backends round-trip it exactly
var base = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC).Truncate(time.Microsecond)

func newReading(deviceID, ownerID string, typ sensor.Type, value float64, ts time.Time) *db.Reading {
	return &db.Reading{
		ID:         uuid.New(),
		DeviceID:   deviceID,
		OwnerID:    ownerID,
		SensorType: typ,
		Value:      value,
		Timestamp:  ts,
		ReceivedAt: ts,
	}
}

// runStoreSuite exercises the Store contract against an empty database
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("insert device and resolve owner", func(t *testing.T) {
		err := store.InsertDevice(ctx, &db.Device{DeviceID: "MCO001", OwnerID: "a@x.com", DisplayName: "MCO001", CreatedAt: base})
		require.NoError(t, err)

		owner, err := store.GetDeviceOwner(ctx, "MCO001")
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", owner)
	})

	t.Run("duplicate device under another owner", func(t *testing.T) {
		err := store.InsertDevice(ctx, &db.Device{DeviceID: "MCO001", OwnerID: "b@y.com", DisplayName: "other", CreatedAt: base})
		require.ErrorIs(t, err, ErrDuplicate)

		owner, err := store.GetDeviceOwner(ctx, "MCO001")
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", owner, "owner must be unchanged")
	})

	t.Run("unknown device owner", func(t *testing.T) {
		_, err := store.GetDeviceOwner(ctx, "UNKNOWN1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list devices in registration order", func(t *testing.T) {
		require.NoError(t, store.InsertDevice(ctx, &db.Device{DeviceID: "MCO002", OwnerID: "a@x.com", DisplayName: "kitchen", CreatedAt: base.Add(time.Second)}))
		require.NoError(t, store.InsertDevice(ctx, &db.Device{DeviceID: "MCO003", OwnerID: "b@y.com", DisplayName: "MCO003", CreatedAt: base.Add(2 * time.Second)}))

		devices, err := store.ListDevicesByOwner(ctx, "a@x.com")
		require.NoError(t, err)
		require.Len(t, devices, 2)
		assert.Equal(t, "MCO001", devices[0].DeviceID)
		assert.Equal(t, "MCO002", devices[1].DeviceID)
		assert.Equal(t, "kitchen", devices[1].DisplayName)
		assert.Nil(t, devices[0].LastSeenAt)

		none, err := store.ListDevicesByOwner(ctx, "nobody@z.com")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("query readings newest first with limit", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			ts := base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, store.InsertReading(ctx, newReading("MCO001", "a@x.com", sensor.CarbonMonoxide, float64(i), ts)))
		}
		// duplicate of the newest reading is kept as its own row
		require.NoError(t, store.InsertReading(ctx, newReading("MCO001", "a@x.com", sensor.CarbonMonoxide, 4, base.Add(4*time.Minute))))

		readings, err := store.QueryReadings(ctx, ReadingFilter{
			DeviceID: "MCO001",
			OwnerID:  "a@x.com",
			From:     base,
			To:       base.Add(time.Hour),
			Limit:    10,
		})
		require.NoError(t, err)
		require.Len(t, readings, 6)
		for i := 1; i < len(readings); i++ {
			assert.False(t, readings[i].Timestamp.After(readings[i-1].Timestamp), "readings must be descending")
		}
		assert.Equal(t, sensor.CarbonMonoxide, readings[0].SensorType)
		assert.WithinDuration(t, base.Add(4*time.Minute), readings[0].Timestamp, 0)

		limited, err := store.QueryReadings(ctx, ReadingFilter{
			DeviceID: "MCO001",
			OwnerID:  "a@x.com",
			From:     base,
			To:       base.Add(time.Hour),
			Limit:    2,
		})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("query window bounds are inclusive", func(t *testing.T) {
		readings, err := store.QueryReadings(ctx, ReadingFilter{
			DeviceID: "MCO001",
			OwnerID:  "a@x.com",
			From:     base.Add(time.Minute),
			To:       base.Add(3 * time.Minute),
			Limit:    10,
		})
		require.NoError(t, err)
		require.Len(t, readings, 3)
		assert.Equal(t, 3.0, readings[0].Value)
		assert.Equal(t, 1.0, readings[2].Value)
	})

	t.Run("query is scoped to owner", func(t *testing.T) {
		readings, err := store.QueryReadings(ctx, ReadingFilter{
			DeviceID: "MCO001",
			OwnerID:  "b@y.com",
			From:     base,
			To:       base.Add(time.Hour),
			Limit:    10,
		})
		require.NoError(t, err)
		assert.Empty(t, readings)
	})

	t.Run("last seen reflects newest reading", func(t *testing.T) {
		devices, err := store.ListDevicesByOwner(ctx, "a@x.com")
		require.NoError(t, err)
		require.Len(t, devices, 2)
		require.NotNil(t, devices[0].LastSeenAt)
		assert.WithinDuration(t, base.Add(4*time.Minute), *devices[0].LastSeenAt, 0)
		assert.Nil(t, devices[1].LastSeenAt)
	})

	t.Run("purge removes readings before cutoff", func(t *testing.T) {
		deleted, err := store.PurgeReadingsBefore(ctx, base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		readings, err := store.QueryReadings(ctx, ReadingFilter{
			DeviceID: "MCO001",
			OwnerID:  "a@x.com",
			From:     base,
			To:       base.Add(time.Hour),
			Limit:    10,
		})
		require.NoError(t, err)
		assert.Len(t, readings, 4)
	})
}
