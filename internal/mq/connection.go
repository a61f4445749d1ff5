package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const heartbeat = 10 * time.Second

// Connection is the shared RabbitMQ connection used for reading events
type Connection struct {
	conn *amqp.Connection
}

// NewConnection dials RabbitMQ. It returns nil without error when url is
// empty, which disables event publishing.
func NewConnection(lc fx.Lifecycle, logger *zap.Logger, url string) (*Connection, error) {
	if url == "" {
		logger.Info("RABBITMQ_URL not set, event publishing disabled")
		return nil, nil
	}

	logger.Info("connecting to rabbitmq for reading events")

	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName("sensor-telemetry")

	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat:  heartbeat,
		Properties: props,
	})
	if err != nil {
		logger.Error("rabbitmq connection failed", zap.Error(err))
		return nil, fmt.Errorf("[RABBITMQ CONNECTION FAILED] cannot connect to RabbitMQ. Please check: 1) RabbitMQ is running, 2) RABBITMQ_URL is correct, 3) Credentials are valid. Error: %w", err)
	}

	c := &Connection{conn: conn}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				// nil after a clean Close
				if amqpErr, ok := <-closed; ok && amqpErr != nil {
					logger.Error("rabbitmq connection lost, reading events will not be published",
						zap.Int("code", amqpErr.Code),
						zap.String("reason", amqpErr.Reason),
					)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if c.IsClosed() {
				return nil
			}
			if err := conn.Close(); err != nil {
				logger.Error("failed to close rabbitmq connection", zap.Error(err))
				return err
			}
			logger.Info("rabbitmq connection closed")
			return nil
		},
	})

	return c, nil
}

// Channel opens a new channel on the connection
func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

// IsClosed reports whether the broker or a local Close shut the connection
func (c *Connection) IsClosed() bool {
	return c.conn.IsClosed()
}
