package query

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/db"
	"github.com/septivank/sensor-telemetry/internal/registry"
	"github.com/septivank/sensor-telemetry/internal/repository"
	"github.com/septivank/sensor-telemetry/internal/sensor"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

var testOpts = Options{
	DefaultWindow: 7 * 24 * time.Hour,
	MaxLimit:      1000,
	Timeout:       time.Second,
}

type fixture struct {
	store   *repository.SQLiteStore
	service *Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()

	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "query.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := repository.NewSQLiteStore(conn)
	reg := registry.NewRegistry(store, nil, 5*time.Minute, zap.NewNop())
	_, err = reg.Register(ctx, "MCO001", "a@x.com", "")
	require.NoError(t, err)

	svc := NewService(reg, store, opts, zap.NewNop())
	svc.now = func() time.Time { return now }

	return &fixture{store: store, service: svc}
}

func (f *fixture) insert(t *testing.T, value float64, ts time.Time) {
	t.Helper()
	require.NoError(t, f.store.InsertReading(context.Background(), &db.Reading{
		ID:         uuid.New(),
		DeviceID:   "MCO001",
		OwnerID:    "a@x.com",
		SensorType: sensor.CarbonMonoxide,
		Value:      value,
		Timestamp:  ts,
		ReceivedAt: ts,
	}))
}

func TestQueryReadings_OwnerScenario(t *testing.T) {
	f := newFixture(t, testOpts)
	ctx := context.Background()

	t1, t2, t3 := now.Add(-3*time.Hour), now.Add(-2*time.Hour), now.Add(-time.Hour)
	f.insert(t, 1, t1)
	f.insert(t, 3, t3)
	f.insert(t, 2, t2)

	readings, err := f.service.QueryReadings(ctx, "MCO001", "a@x.com", Window{}, 0)
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.True(t, readings[0].Timestamp.Equal(t3))
	assert.True(t, readings[1].Timestamp.Equal(t2))
	assert.True(t, readings[2].Timestamp.Equal(t1))

	_, err = f.service.QueryReadings(ctx, "MCO001", "b@y.com", Window{}, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	unknown, err := f.service.QueryReadings(ctx, "UNKNOWN1", "a@x.com", Window{}, 0)
	require.NoError(t, err)
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)
}

func TestQueryReadings_ForbiddenWithoutData(t *testing.T) {
	f := newFixture(t, testOpts)

	_, err := f.service.QueryReadings(context.Background(), "MCO001", "b@y.com", Window{}, 10)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestQueryReadings_DefaultWindowExcludesOldReadings(t *testing.T) {
	f := newFixture(t, testOpts)
	f.insert(t, 1, now.Add(-8*24*time.Hour))
	f.insert(t, 2, now.Add(-6*24*time.Hour))

	readings, err := f.service.QueryReadings(context.Background(), "MCO001", "a@x.com", Window{}, 0)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 2.0, readings[0].Value)
}

func TestQueryReadings_ExplicitWindowAndPaging(t *testing.T) {
	f := newFixture(t, testOpts)
	for i := 0; i < 10; i++ {
		f.insert(t, float64(i), now.Add(-time.Duration(10-i)*time.Minute))
	}
	ctx := context.Background()

	page1, err := f.service.QueryReadings(ctx, "MCO001", "a@x.com", Window{}, 4)
	require.NoError(t, err)
	require.Len(t, page1, 4)
	assert.Equal(t, 9.0, page1[0].Value)

	oldest := page1[len(page1)-1].Timestamp
	page2, err := f.service.QueryReadings(ctx, "MCO001", "a@x.com", Window{To: oldest.Add(-time.Nanosecond)}, 4)
	require.NoError(t, err)
	require.Len(t, page2, 4)
	assert.Equal(t, 5.0, page2[0].Value)

	bounded, err := f.service.QueryReadings(ctx, "MCO001", "a@x.com", Window{
		From: now.Add(-5 * time.Minute),
		To:   now.Add(-3 * time.Minute),
	}, 0)
	require.NoError(t, err)
	assert.Len(t, bounded, 3)
}

func TestQueryReadings_InvalidWindow(t *testing.T) {
	f := newFixture(t, testOpts)

	_, err := f.service.QueryReadings(context.Background(), "MCO001", "a@x.com", Window{
		From: now,
		To:   now.Add(-time.Hour),
	}, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestQueryReadings_OrderingAndCapProperty(t *testing.T) {
	opts := testOpts
	opts.MaxLimit = 25
	f := newFixture(t, opts)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 60; i++ {
		offset := time.Duration(rng.Int63n(int64(48 * time.Hour)))
		f.insert(t, float64(i), now.Add(-offset))
	}

	for _, limit := range []int{-1, 0, 1, 10, 25, 26, 5000} {
		readings, err := f.service.QueryReadings(context.Background(), "MCO001", "a@x.com", Window{}, limit)
		require.NoError(t, err)

		assert.LessOrEqual(t, len(readings), opts.MaxLimit, "limit %d", limit)
		if limit > 0 && limit <= opts.MaxLimit {
			assert.Len(t, readings, limit)
		} else {
			assert.Len(t, readings, opts.MaxLimit)
		}
		for i := 1; i < len(readings); i++ {
			assert.False(t, readings[i].Timestamp.After(readings[i-1].Timestamp), "limit %d index %d", limit, i)
		}
	}
}

type blockingStore struct{}

func (blockingStore) QueryReadings(ctx context.Context, _ repository.ReadingFilter) ([]db.Reading, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type staticOwners map[string]string

func (o staticOwners) ResolveOwner(_ context.Context, deviceID string) (string, bool, error) {
	owner, ok := o[deviceID]
	return owner, ok, nil
}

func TestQueryReadings_Timeout(t *testing.T) {
	opts := testOpts
	opts.Timeout = 20 * time.Millisecond
	svc := NewService(staticOwners{"MCO001": "a@x.com"}, blockingStore{}, opts, zap.NewNop())

	start := time.Now()
	_, err := svc.QueryReadings(context.Background(), "MCO001", "a@x.com", Window{}, 0)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestQueryReadings_CallerDeadlineWins(t *testing.T) {
	svc := NewService(staticOwners{"MCO001": "a@x.com"}, blockingStore{}, testOpts, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := svc.QueryReadings(ctx, "MCO001", "a@x.com", Window{}, 0)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), testOpts.Timeout)
}

type failingStore struct{ err error }

func (s failingStore) QueryReadings(context.Context, repository.ReadingFilter) ([]db.Reading, error) {
	return nil, s.err
}

func TestQueryReadings_StorageError(t *testing.T) {
	cause := errors.New("disk I/O error")
	svc := NewService(staticOwners{"MCO001": "a@x.com"}, failingStore{err: cause}, testOpts, zap.NewNop())

	_, err := svc.QueryReadings(context.Background(), "MCO001", "a@x.com", Window{}, 0)
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimeout)
}
