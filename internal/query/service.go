// Package query serves a device's readings to its owner.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/db"
	"github.com/septivank/sensor-telemetry/internal/repository"
)

var (
	// ErrForbidden is returned when the requester does not own the device
	ErrForbidden = errors.New("forbidden")
	// ErrTimeout is returned when the query deadline expires
	ErrTimeout = errors.New("query timed out")
	// ErrInvalidWindow is returned when From is after To
	ErrInvalidWindow = errors.New("invalid time window")
)

// Window is an inclusive time range. Zero bounds are filled from the default window.
type Window struct {
	From time.Time
	To   time.Time
}

// OwnerResolver maps a device id to its owning account
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, deviceID string) (string, bool, error)
}

// ReadingStore runs filtered reading queries
type ReadingStore interface {
	QueryReadings(ctx context.Context, filter repository.ReadingFilter) ([]db.Reading, error)
}

// Options holds query limits
type Options struct {
	DefaultWindow time.Duration
	MaxLimit      int
	Timeout       time.Duration
}

// Service answers owner-scoped reading queries
type Service struct {
	owners OwnerResolver
	store  ReadingStore
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new query service
func NewService(owners OwnerResolver, store ReadingStore, opts Options, logger *zap.Logger) *Service {
	return &Service{
		owners: owners,
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// QueryReadings returns up to limit readings of deviceID inside window, newest
// first. Only the device owner may read them; an unregistered device yields an
// empty result. limit <= 0 or above the cap means the cap.
func (s *Service) QueryReadings(ctx context.Context, deviceID, requesterID string, window Window, limit int) ([]db.Reading, error) {
	from, to, err := s.resolveWindow(window)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	owner, found, err := s.owners.ResolveOwner(ctx, deviceID)
	if err != nil {
		return nil, s.storageError(ctx, "failed to resolve device owner", err)
	}
	if !found {
		return []db.Reading{}, nil
	}
	if owner != requesterID {
		s.logger.Warn("query denied",
			zap.String("device_id", deviceID),
			zap.String("requester_id", requesterID),
		)
		return nil, fmt.Errorf("%w: device %s", ErrForbidden, deviceID)
	}

	readings, err := s.store.QueryReadings(ctx, repository.ReadingFilter{
		DeviceID: deviceID,
		OwnerID:  owner,
		From:     from,
		To:       to,
		Limit:    limit,
	})
	if err != nil {
		return nil, s.storageError(ctx, "failed to query readings", err)
	}
	if readings == nil {
		readings = []db.Reading{}
	}

	return readings, nil
}

func (s *Service) resolveWindow(window Window) (time.Time, time.Time, error) {
	to := window.To
	if to.IsZero() {
		to = s.now()
	}
	from := window.From
	if from.IsZero() {
		from = to.Add(-s.opts.DefaultWindow)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %s is after to %s",
			ErrInvalidWindow, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from.UTC(), to.UTC(), nil
}

func (s *Service) storageError(ctx context.Context, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
