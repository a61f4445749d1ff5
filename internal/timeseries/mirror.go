// Package timeseries mirrors stored readings into InfluxDB for dashboards
// that chart long ranges.
package timeseries

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/ingest"
)

// Measurement is the InfluxDB measurement readings are written to
const Measurement = "sensor_data"

// Options holds InfluxDB connection settings
type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// pointWriter is the part of api.WriteAPI the mirror uses
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Mirror writes each stored reading as a point. Writes are batched and
// asynchronous; failures surface on the error channel and are logged.
type Mirror struct {
	writer pointWriter
	close  func()
}

// NewMirror creates the mirror. It returns nil without error when URL is
// empty, which disables mirroring.
func NewMirror(lc fx.Lifecycle, logger *zap.Logger, opts Options) (*Mirror, error) {
	if opts.URL == "" {
		logger.Info("INFLUXDB_URL not set, time-series mirror disabled")
		return nil, nil
	}
	if opts.Org == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("INFLUXDB_ORG and INFLUXDB_BUCKET are required when INFLUXDB_URL is set")
	}

	client := influxdb2.NewClient(opts.URL, opts.Token)
	writeAPI := client.WriteAPI(opts.Org, opts.Bucket)

	m := &Mirror{writer: writeAPI, close: client.Close}

	errorsCh := writeAPI.Errors()
	go func() {
		for err := range errorsCh {
			logger.Error("influxdb write failed", zap.Error(err))
		}
	}()

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ok, err := client.Ping(ctx)
			if err != nil || !ok {
				logger.Warn("influxdb not reachable, points will be retried", zap.String("url", opts.URL), zap.Error(err))
				return nil
			}
			logger.Info("influxdb connection established successfully", zap.String("bucket", opts.Bucket))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			m.Close()
			logger.Info("influxdb mirror closed")
			return nil
		},
	})

	return m, nil
}

// NewPoint converts a stored reading into an InfluxDB point
func NewPoint(reading ingest.StoredReading) *write.Point {
	return influxdb2.NewPoint(
		Measurement,
		map[string]string{
			"device_id":   reading.DeviceID,
			"sensor_type": string(reading.SensorType),
		},
		map[string]interface{}{
			"value": reading.Value,
		},
		reading.Timestamp,
	)
}

// ReadingStored queues the reading for the next batch
func (m *Mirror) ReadingStored(_ context.Context, reading ingest.StoredReading) error {
	m.writer.WritePoint(NewPoint(reading))
	return nil
}

// Close flushes pending points and closes the client
func (m *Mirror) Close() {
	m.writer.Flush()
	if m.close != nil {
		m.close()
	}
}
