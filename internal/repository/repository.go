package repository

import (
	"context"
	"errors"
	"time"

	"github.com/septivank/sensor-telemetry/internal/db"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint
	ErrDuplicate = errors.New("duplicate key")
)

// ReadingFilter selects readings for one device and owner inside an inclusive time range
type ReadingFilter struct {
	DeviceID string
	OwnerID  string
	From     time.Time
	To       time.Time
	Limit    int
}

// Store is the persistence contract shared by the PostgreSQL and SQLite backends
type Store interface {
	InsertDevice(ctx context.Context, device *db.Device) error
	GetDeviceOwner(ctx context.Context, deviceID string) (string, error)
	ListDevicesByOwner(ctx context.Context, ownerID string) ([]db.Device, error)
	InsertReading(ctx context.Context, reading *db.Reading) error
	// QueryReadings returns matching readings newest first
	QueryReadings(ctx context.Context, filter ReadingFilter) ([]db.Reading, error)
	PurgeReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
