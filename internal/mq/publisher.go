package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/ingest"
)

// channel is the part of *amqp.Channel the publisher uses
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes reading events to a topic exchange
type Publisher struct {
	mu       sync.Mutex
	channel  channel
	exchange string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher and declares its exchange
func NewPublisher(conn *Connection, exchange string, timeout time.Duration, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// Declare exchange
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return newPublisher(ch, exchange, timeout, logger), nil
}

func newPublisher(ch channel, exchange string, timeout time.Duration, logger *zap.Logger) *Publisher {
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		timeout:  timeout,
		logger:   logger,
	}
}

// ReadingStoredEvent represents the event published after a reading is persisted
type ReadingStoredEvent struct {
	ReadingID   string  `json:"reading_id"`
	DeviceID    string  `json:"device_id"`
	OwnerID     string  `json:"owner_id"`
	SensorType  string  `json:"sensor_type"`
	Value       float64 `json:"value"`
	Timestamp   string  `json:"timestamp"`
	Alarm       bool    `json:"alarm"`
	AlarmReason string  `json:"alarm_reason,omitempty"`
}

// NewReadingStoredEvent builds the event and routing key for a stored reading.
// Alarms are routed under alarm.<type> so consumers can bind to them alone.
func NewReadingStoredEvent(reading ingest.StoredReading) (ReadingStoredEvent, string) {
	event := ReadingStoredEvent{
		ReadingID:   reading.ID.String(),
		DeviceID:    reading.DeviceID,
		OwnerID:     reading.OwnerID,
		SensorType:  string(reading.SensorType),
		Value:       reading.Value,
		Timestamp:   reading.Timestamp.UTC().Format(time.RFC3339Nano),
		Alarm:       reading.Alarm.Alarm,
		AlarmReason: reading.Alarm.Reason,
	}

	routingKey := "reading." + event.SensorType
	if event.Alarm {
		routingKey = "alarm." + event.SensorType
	}
	return event, routingKey
}

// ReadingStored publishes a ReadingStoredEvent for a persisted reading
func (p *Publisher) ReadingStored(ctx context.Context, reading ingest.StoredReading) error {
	event, routingKey := NewReadingStoredEvent(reading)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.mu.Lock()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ReadingID,
		},
	)
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published reading event",
		zap.String("routing_key", routingKey),
		zap.String("device_id", event.DeviceID),
		zap.String("reading_id", event.ReadingID),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
