// Package registry owns device registration, ownership lookup and the derived
// online/offline status shown on the dashboard.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/db"
	"github.com/septivank/sensor-telemetry/internal/repository"
	"github.com/septivank/sensor-telemetry/tools/timeparser"
)

// MaxDeviceIDLength bounds device ids so they fit in a single MQTT topic level
const MaxDeviceIDLength = 64

var (
	// ErrAlreadyRegistered is returned when the device id exists under any owner
	ErrAlreadyRegistered = errors.New("device already registered")
	// ErrInvalidDevice is returned for empty or malformed device ids
	ErrInvalidDevice = errors.New("invalid device id")
	// ErrInvalidOwner is returned when no owner identity is supplied
	ErrInvalidOwner = errors.New("invalid owner id")
)

// Status is the derived connectivity state of a device
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Device is a registered device as seen by its owner
type Device struct {
	ID         string
	Name       string
	OwnerID    string
	CreatedAt  time.Time
	LastSeenAt *time.Time
	Status     Status
}

// Store is the subset of the repository the registry needs
type Store interface {
	InsertDevice(ctx context.Context, device *db.Device) error
	GetDeviceOwner(ctx context.Context, deviceID string) (string, error)
	ListDevicesByOwner(ctx context.Context, ownerID string) ([]db.Device, error)
}

// OwnerCache caches device ownership. Ownership never changes, so entries never go stale.
type OwnerCache interface {
	GetOwner(ctx context.Context, deviceID string) (string, bool, error)
	SetOwner(ctx context.Context, deviceID, ownerID string) error
}

// Registry handles device registration and ownership lookups
type Registry struct {
	store        Store
	cache        OwnerCache
	onlineWindow time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewRegistry creates a new registry. cache may be nil.
func NewRegistry(store Store, cache OwnerCache, onlineWindow time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		store:        store,
		cache:        cache,
		onlineWindow: onlineWindow,
		logger:       logger,
		now:          time.Now,
	}
}

// ValidateDeviceID checks that a device id is usable as an MQTT topic level
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDevice)
	}
	if len(deviceID) > MaxDeviceIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidDevice, MaxDeviceIDLength)
	}
	if strings.ContainsAny(deviceID, "/+#") {
		return fmt.Errorf("%w: %q contains a topic separator or wildcard", ErrInvalidDevice, deviceID)
	}
	return nil
}

// NormalizeDeviceID strips surrounding whitespace so an id is stored and looked up the same way
func NormalizeDeviceID(deviceID string) string {
	return strings.TrimSpace(deviceID)
}

// Register binds a new device to ownerID. Registration is create-only:
// an id that exists under any owner is rejected and the existing binding is kept.
func (r *Registry) Register(ctx context.Context, deviceID, ownerID, displayName string) (Device, error) {
	deviceID = NormalizeDeviceID(deviceID)
	if err := ValidateDeviceID(deviceID); err != nil {
		return Device{}, err
	}
	if strings.TrimSpace(ownerID) == "" {
		return Device{}, ErrInvalidOwner
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = deviceID
	}

	row := &db.Device{
		DeviceID:    deviceID,
		OwnerID:     ownerID,
		DisplayName: displayName,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.store.InsertDevice(ctx, row); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return Device{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, deviceID)
		}
		return Device{}, fmt.Errorf("failed to register device: %w", err)
	}

	r.cacheOwner(ctx, deviceID, ownerID)

	r.logger.Info("device registered",
		zap.String("device_id", deviceID),
		zap.String("owner_id", ownerID),
	)

	return Device{
		ID:        row.DeviceID,
		Name:      row.DisplayName,
		OwnerID:   row.OwnerID,
		CreatedAt: row.CreatedAt,
		Status:    StatusOffline,
	}, nil
}

// ListDevices returns the owner's devices in registration order
func (r *Registry) ListDevices(ctx context.Context, ownerID string) ([]Device, error) {
	rows, err := r.store.ListDevicesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	now := r.now()
	devices := make([]Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, Device{
			ID:         row.DeviceID,
			Name:       row.DisplayName,
			OwnerID:    row.OwnerID,
			CreatedAt:  row.CreatedAt,
			LastSeenAt: row.LastSeenAt,
			Status:     r.status(row.LastSeenAt, now),
		})
	}
	return devices, nil
}

// ResolveOwner returns the owner of deviceID. found is false for unregistered devices.
func (r *Registry) ResolveOwner(ctx context.Context, deviceID string) (string, bool, error) {
	if r.cache != nil {
		owner, ok, err := r.cache.GetOwner(ctx, deviceID)
		if err != nil {
			r.logger.Warn("owner cache lookup failed", zap.String("device_id", deviceID), zap.Error(err))
		} else if ok {
			return owner, true, nil
		}
	}

	owner, err := r.store.GetDeviceOwner(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to resolve device owner: %w", err)
	}

	r.cacheOwner(ctx, deviceID, owner)
	return owner, true, nil
}

func (r *Registry) cacheOwner(ctx context.Context, deviceID, ownerID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetOwner(ctx, deviceID, ownerID); err != nil {
		r.logger.Warn("owner cache update failed", zap.String("device_id", deviceID), zap.Error(err))
	}
}

func (r *Registry) status(lastSeen *time.Time, now time.Time) Status {
	if lastSeen != nil && timeparser.IsWithinTolerance(*lastSeen, now, r.onlineWindow) {
		return StatusOnline
	}
	return StatusOffline
}
