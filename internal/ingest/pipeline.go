// Package ingest turns a raw (deviceId, sensorType, payload) triple into a
// stored reading: parse, validate, resolve the owning account, persist.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/alarm"
	"github.com/septivank/sensor-telemetry/internal/db"
	"github.com/septivank/sensor-telemetry/internal/logging"
	"github.com/septivank/sensor-telemetry/internal/sensor"
)

var (
	// ErrBadValue is returned when the payload is not a finite number
	ErrBadValue = sensor.ErrBadValue
	// ErrUnknownType is returned for sensor types outside the closed set
	ErrUnknownType = sensor.ErrUnknownType
	// ErrUnknownDevice is returned when the device is not registered. The reading is dropped.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrStorageUnavailable is returned when the owner lookup or the insert fails
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// OwnerResolver maps a device id to its owning account
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, deviceID string) (string, bool, error)
}

// ReadingStore persists a single reading
type ReadingStore interface {
	InsertReading(ctx context.Context, reading *db.Reading) error
}

// StoredReading is a persisted reading together with its alarm evaluation
type StoredReading struct {
	db.Reading
	Alarm alarm.Result
}

// Observer is notified after a reading has been persisted
type Observer interface {
	ReadingStored(ctx context.Context, reading StoredReading) error
}

// Pipeline validates and persists readings
type Pipeline struct {
	owners    OwnerResolver
	store     ReadingStore
	detector  *alarm.Detector
	observers []Observer
	logger    *zap.Logger
}

// NewPipeline creates a new ingestion pipeline. detector may be nil.
func NewPipeline(
	owners OwnerResolver,
	store ReadingStore,
	detector *alarm.Detector,
	logger *zap.Logger,
	observers ...Observer,
) *Pipeline {
	return &Pipeline{
		owners:    owners,
		store:     store,
		detector:  detector,
		observers: observers,
		logger:    logger,
	}
}

// Ingest stores one reading stamped with arrivalTime. The reading is written
// at most once; failures are reported, never retried.
func (p *Pipeline) Ingest(ctx context.Context, deviceID, sensorType, rawValue string, arrivalTime time.Time) error {
	logger := logging.WithDevice(p.logger, deviceID, sensorType)

	value, err := sensor.ParseValue(rawValue)
	if err != nil {
		logger.Debug("rejected reading", zap.String("payload", rawValue), zap.Error(err))
		return fmt.Errorf("device %s: %w", deviceID, err)
	}

	typ, err := sensor.ParseType(sensorType)
	if err != nil {
		logger.Debug("rejected reading", zap.Error(err))
		return fmt.Errorf("device %s: %w", deviceID, err)
	}

	ownerID, found, err := p.owners.ResolveOwner(ctx, deviceID)
	if err != nil {
		logger.Error("failed to resolve device owner", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if !found {
		logger.Warn("dropping reading from unregistered device")
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	ts := arrivalTime.UTC()
	reading := db.Reading{
		ID:         uuid.New(),
		DeviceID:   deviceID,
		OwnerID:    ownerID,
		SensorType: typ,
		Value:      value,
		Timestamp:  ts,
		ReceivedAt: ts,
	}

	if err := p.store.InsertReading(ctx, &reading); err != nil {
		logger.Error("failed to store reading", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	stored := StoredReading{Reading: reading}
	if p.detector != nil {
		stored.Alarm = p.detector.Evaluate(typ, value)
		if stored.Alarm.Alarm {
			logger.Warn("sensor alarm",
				zap.Float64("value", value),
				zap.String("reason", stored.Alarm.Reason),
			)
		}
	}

	for _, observer := range p.observers {
		if err := observer.ReadingStored(ctx, stored); err != nil {
			// Log error but don't fail: the reading is already persisted
			logger.Error("reading observer failed", zap.Error(err))
		}
	}

	logger.Debug("reading stored",
		zap.String("reading_id", reading.ID.String()),
		zap.Float64("value", value),
	)

	return nil
}
