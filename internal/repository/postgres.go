package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/septivank/sensor-telemetry/internal/db"
)

const pgUniqueViolation = "23505"

// PostgresStore handles database operations against PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InsertDevice registers a device. Returns ErrDuplicate if the device id is taken.
func (r *PostgresStore) InsertDevice(ctx context.Context, device *db.Device) error {
	query := `
		INSERT INTO devices (device_id, owner_id, display_name, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, device.DeviceID, device.OwnerID, device.DisplayName, device.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("device %s: %w", device.DeviceID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert device: %w", err)
	}

	return nil
}

// GetDeviceOwner returns the owner of a device or ErrNotFound
func (r *PostgresStore) GetDeviceOwner(ctx context.Context, deviceID string) (string, error) {
	query := `
		SELECT owner_id
		FROM devices
		WHERE device_id = $1
	`

	var ownerID string
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to query device owner: %w", err)
	}

	return ownerID, nil
}

// ListDevicesByOwner returns an owner's devices in registration order with their last-seen time
func (r *PostgresStore) ListDevicesByOwner(ctx context.Context, ownerID string) ([]db.Device, error) {
	query := `
		SELECT d.device_id, d.owner_id, d.display_name, d.created_at,
			(SELECT MAX(r.reading_ts) FROM readings r
				WHERE r.device_id = d.device_id AND r.owner_id = d.owner_id) AS last_seen
		FROM devices d
		WHERE d.owner_id = $1
		ORDER BY d.created_at, d.device_id
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []db.Device
	for rows.Next() {
		var device db.Device
		if err := rows.Scan(
			&device.DeviceID,
			&device.OwnerID,
			&device.DisplayName,
			&device.CreatedAt,
			&device.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return devices, nil
}

// InsertReading inserts a single reading
func (r *PostgresStore) InsertReading(ctx context.Context, reading *db.Reading) error {
	query := `
		INSERT INTO readings (
			id, device_id, owner_id, sensor_type, value, reading_ts, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		reading.ID,
		reading.DeviceID,
		reading.OwnerID,
		string(reading.SensorType),
		reading.Value,
		reading.Timestamp,
		reading.ReceivedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	return nil
}

// QueryReadings returns readings inside the filter window, newest first
func (r *PostgresStore) QueryReadings(ctx context.Context, filter ReadingFilter) ([]db.Reading, error) {
	query := `
		SELECT id, device_id, owner_id, sensor_type, value, reading_ts, received_at
		FROM readings
		WHERE device_id = $1 AND owner_id = $2 AND reading_ts >= $3 AND reading_ts <= $4
		ORDER BY reading_ts DESC, received_at DESC
		LIMIT $5
	`

	rows, err := r.pool.Query(ctx, query, filter.DeviceID, filter.OwnerID, filter.From, filter.To, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []db.Reading
	for rows.Next() {
		var (
			reading    db.Reading
			sensorType string
		)
		if err := rows.Scan(
			&reading.ID,
			&reading.DeviceID,
			&reading.OwnerID,
			&sensorType,
			&reading.Value,
			&reading.Timestamp,
			&reading.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		reading.SensorType = sensorTypeFromColumn(sensorType)
		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return readings, nil
}

// PurgeReadingsBefore deletes readings older than cutoff and returns the number removed
func (r *PostgresStore) PurgeReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM readings WHERE reading_ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge readings: %w", err)
	}
	return tag.RowsAffected(), nil
}
