package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/alarm"
	"github.com/septivank/sensor-telemetry/internal/api"
	"github.com/septivank/sensor-telemetry/internal/broker"
	"github.com/septivank/sensor-telemetry/internal/cache"
	"github.com/septivank/sensor-telemetry/internal/config"
	"github.com/septivank/sensor-telemetry/internal/db"
	"github.com/septivank/sensor-telemetry/internal/ingest"
	"github.com/septivank/sensor-telemetry/internal/mq"
	"github.com/septivank/sensor-telemetry/internal/query"
	"github.com/septivank/sensor-telemetry/internal/registry"
	"github.com/septivank/sensor-telemetry/internal/repository"
	"github.com/septivank/sensor-telemetry/internal/sensor"
	"github.com/septivank/sensor-telemetry/internal/timeseries"
)

const requestTimeout = 60 * time.Second

func startTelemetry(link *broker.Link, srv *http.Server, cfg *config.Config, logger *zap.Logger) {
	logger.Info("sensor telemetry service wired",
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("http_addr", srv.Addr),
		zap.Strings("topics", broker.TopicFilters()),
	)
}

// ProvideConfig loads the configuration and checks the server-only settings
func ProvideConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProvideStore opens the configured database backend
func ProvideStore(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (repository.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(context.Background(), cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite database opened", zap.String("path", cfg.Database.SQLitePath))
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return conn.Close()
			},
		})
		return repository.NewSQLiteStore(conn), nil
	default:
		pool, err := db.NewPool(lc, logger, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return repository.NewPostgresStore(pool), nil
	}
}

// ProvideOwnerCache creates the Redis owner cache, or nil when disabled
func ProvideOwnerCache(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (registry.OwnerCache, error) {
	c, err := cache.NewOwnerCache(lc, logger, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.OwnerTTL,
	})
	if err != nil || c == nil {
		return nil, err
	}
	return c, nil
}

// ProvideRegistry creates the device registry
func ProvideRegistry(store repository.Store, ownerCache registry.OwnerCache, cfg *config.Config, logger *zap.Logger) *registry.Registry {
	return registry.NewRegistry(store, ownerCache, cfg.Devices.OnlineWindow, logger)
}

// ProvideAlarmDetector creates the alarm detector from configured thresholds
func ProvideAlarmDetector(cfg *config.Config) *alarm.Detector {
	return alarm.NewDetector(map[sensor.Type]float64{
		sensor.CarbonMonoxide: cfg.Alarm.COPPM,
		sensor.Methane:        cfg.Alarm.MethanePPM,
		sensor.Temperature:    cfg.Alarm.TemperatureC,
	})
}

// ProvideMQConnection creates a new RabbitMQ connection instance, or nil when disabled
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher creates the reading event publisher, or nil when RabbitMQ is disabled
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	if conn == nil {
		return nil, nil
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, cfg.RabbitMQ.PublishTimeout, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideMirror creates the InfluxDB mirror, or nil when disabled
func ProvideMirror(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*timeseries.Mirror, error) {
	return timeseries.NewMirror(lc, logger, timeseries.Options{
		URL:    cfg.InfluxDB.URL,
		Token:  cfg.InfluxDB.Token,
		Org:    cfg.InfluxDB.Org,
		Bucket: cfg.InfluxDB.Bucket,
	})
}

// ProvidePipeline creates the ingestion pipeline with the enabled observers
func ProvidePipeline(
	reg *registry.Registry,
	store repository.Store,
	detector *alarm.Detector,
	publisher *mq.Publisher,
	mirror *timeseries.Mirror,
	logger *zap.Logger,
) *ingest.Pipeline {
	var observers []ingest.Observer
	if publisher != nil {
		observers = append(observers, publisher)
	}
	if mirror != nil {
		observers = append(observers, mirror)
	}
	return ingest.NewPipeline(reg, store, detector, logger, observers...)
}

// ProvideQueryService creates the query service
func ProvideQueryService(reg *registry.Registry, store repository.Store, cfg *config.Config, logger *zap.Logger) *query.Service {
	return query.NewService(reg, store, query.Options{
		DefaultWindow: cfg.Query.DefaultWindow,
		MaxLimit:      cfg.Query.MaxLimit,
		Timeout:       cfg.Query.Timeout,
	}, logger)
}

// ProvideBrokerLink creates the MQTT broker link and ties it to the app lifecycle
func ProvideBrokerLink(lc fx.Lifecycle, pipeline *ingest.Pipeline, cfg *config.Config, logger *zap.Logger) *broker.Link {
	link := broker.NewLink(broker.Options{
		BrokerURL:            cfg.MQTT.BrokerURL,
		ClientID:             cfg.MQTT.ClientID,
		Username:             cfg.MQTT.Username,
		Password:             cfg.MQTT.Password,
		ConnectTimeout:       cfg.MQTT.ConnectTimeout,
		KeepAlive:            cfg.MQTT.KeepAlive,
		MaxReconnectInterval: cfg.MQTT.MaxReconnectInterval,
		Workers:              cfg.MQTT.Workers,
		QueueSize:            cfg.MQTT.QueueSize,
		IngestTimeout:        cfg.MQTT.IngestTimeout,
	}, pipeline, logger.Named("broker"))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return link.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			link.Stop()
			return nil
		},
	})

	return link
}

// ProvideHTTPServer creates the HTTP API server and ties it to the app lifecycle
func ProvideHTTPServer(
	lc fx.Lifecycle,
	reg *registry.Registry,
	queries *query.Service,
	pipeline *ingest.Pipeline,
	link *broker.Link,
	cfg *config.Config,
	logger *zap.Logger,
) (*http.Server, error) {
	server, err := api.NewServer(reg, queries, pipeline, link, api.Options{
		JWTSecret:      cfg.Auth.JWTSecret,
		JWTIssuer:      cfg.Auth.JWTIssuer,
		JWTAudience:    cfg.Auth.JWTAudience,
		IngestToken:    cfg.Auth.IngestToken,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
		RequestTimeout: requestTimeout,
	}, logger.Named("http"))
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServicePort),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("[HTTP] cannot listen on %s: %w", srv.Addr, err)
			}
			logger.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})

	return srv, nil
}
