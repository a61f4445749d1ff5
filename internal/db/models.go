package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/septivank/sensor-telemetry/internal/sensor"
)

// Device represents a registered device in the database
type Device struct {
	DeviceID    string
	OwnerID     string
	DisplayName string
	CreatedAt   time.Time
	// LastSeenAt is the newest reading timestamp, nil when the device never reported
	LastSeenAt *time.Time
}

// Reading represents a stored sensor reading in the database
type Reading struct {
	ID         uuid.UUID
	DeviceID   string
	OwnerID    string
	SensorType sensor.Type
	Value      float64
	Timestamp  time.Time
	ReceivedAt time.Time
}
