package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/septivank/sensor-telemetry/internal/db"
	"github.com/septivank/sensor-telemetry/internal/sensor"
)

// SQLiteStore handles database operations against SQLite.
// Timestamps are stored as UTC unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over a database opened with db.OpenSQLite
func NewSQLiteStore(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

func (s *SQLiteStore) InsertDevice(ctx context.Context, device *db.Device) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (device_id, owner_id, display_name, created_at) VALUES (?, ?, ?, ?)`,
		device.DeviceID, device.OwnerID, device.DisplayName, device.CreatedAt.UnixNano(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return fmt.Errorf("device %s: %w", device.DeviceID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDeviceOwner(ctx context.Context, deviceID string) (string, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM devices WHERE device_id = ?`, deviceID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to query device owner: %w", err)
	}
	return ownerID, nil
}

func (s *SQLiteStore) ListDevicesByOwner(ctx context.Context, ownerID string) ([]db.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.device_id, d.owner_id, d.display_name, d.created_at,
			(SELECT MAX(r.reading_ts) FROM readings r
				WHERE r.device_id = d.device_id AND r.owner_id = d.owner_id)
		FROM devices d
		WHERE d.owner_id = ?
		ORDER BY d.seq
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []db.Device
	for rows.Next() {
		var (
			device    db.Device
			createdAt int64
			lastSeen  sql.NullInt64
		)
		if err := rows.Scan(&device.DeviceID, &device.OwnerID, &device.DisplayName, &createdAt, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		device.CreatedAt = fromUnixNano(createdAt)
		if lastSeen.Valid {
			t := fromUnixNano(lastSeen.Int64)
			device.LastSeenAt = &t
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return devices, nil
}

func (s *SQLiteStore) InsertReading(ctx context.Context, reading *db.Reading) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (id, device_id, owner_id, sensor_type, value, reading_ts, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		reading.ID.String(),
		reading.DeviceID,
		reading.OwnerID,
		string(reading.SensorType),
		reading.Value,
		reading.Timestamp.UnixNano(),
		reading.ReceivedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (s *SQLiteStore) QueryReadings(ctx context.Context, filter ReadingFilter) ([]db.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, owner_id, sensor_type, value, reading_ts, received_at
		FROM readings
		WHERE device_id = ? AND owner_id = ? AND reading_ts >= ? AND reading_ts <= ?
		ORDER BY reading_ts DESC, received_at DESC, seq DESC
		LIMIT ?
	`, filter.DeviceID, filter.OwnerID, filter.From.UnixNano(), filter.To.UnixNano(), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []db.Reading
	for rows.Next() {
		var (
			reading    db.Reading
			id         string
			sensorType string
			readingTS  int64
			receivedAt int64
		)
		if err := rows.Scan(&id, &reading.DeviceID, &reading.OwnerID, &sensorType, &reading.Value, &readingTS, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		reading.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid reading id %q: %w", id, err)
		}
		reading.SensorType = sensorTypeFromColumn(sensorType)
		reading.Timestamp = fromUnixNano(readingTS)
		reading.ReceivedAt = fromUnixNano(receivedAt)
		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return readings, nil
}

func (s *SQLiteStore) PurgeReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM readings WHERE reading_ts < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge readings: %w", err)
	}
	return result.RowsAffected()
}

func fromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

// sensorTypeFromColumn maps a stored type name back to the enum. Rows are only
// written after validation, so an unknown name is kept verbatim.
func sensorTypeFromColumn(name string) sensor.Type {
	if t, err := sensor.ParseType(name); err == nil {
		return t
	}
	return sensor.Type(name)
}
