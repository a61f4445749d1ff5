// Package broker maintains the MQTT session that receives device telemetry
// and hands each message to the ingestion pipeline.
package broker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/ingest"
)

// Ingester consumes a single raw reading
type Ingester interface {
	Ingest(ctx context.Context, deviceID, sensorType, rawValue string, arrivalTime time.Time) error
}

// Options holds broker session and worker settings
type Options struct {
	BrokerURL            string
	ClientID             string
	Username             string
	Password             string
	ConnectTimeout       time.Duration
	KeepAlive            time.Duration
	MaxReconnectInterval time.Duration
	Workers              int
	QueueSize            int
	IngestTimeout        time.Duration
}

// NewClientOptions builds paho options for opts. An empty client id gets a random suffix.
func NewClientOptions(opts Options) *mqtt.ClientOptions {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "sensor-telemetry-" + uuid.NewString()[:8]
	}

	return mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(clientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetConnectTimeout(opts.ConnectTimeout).
		SetKeepAlive(opts.KeepAlive).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(opts.MaxReconnectInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second)
}

type message struct {
	deviceID   string
	sensorType string
	payload    string
	arrival    time.Time
}

// Link is a single logical MQTT session feeding a fixed set of ingest workers.
// Messages are sharded by device id so each device's readings are ingested in
// arrival order.
type Link struct {
	opts      Options
	ingester  Ingester
	logger    *zap.Logger
	newClient func(*mqtt.ClientOptions) mqtt.Client
	now       func() time.Time

	client mqtt.Client
	stats  counters

	mu      sync.RWMutex
	queues  []chan message
	running bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewLink creates a broker link. Nothing connects until Start.
func NewLink(opts Options, ingester Ingester, logger *zap.Logger) *Link {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.IngestTimeout <= 0 {
		opts.IngestTimeout = 5 * time.Second
	}
	return &Link{
		opts:      opts,
		ingester:  ingester,
		logger:    logger,
		newClient: mqtt.NewClient,
		now:       time.Now,
	}
}

// Start launches the workers and connects to the broker. If the broker is not
// reachable within the connect timeout, or before ctx ends, the session keeps
// retrying in the background and Start returns nil.
func (l *Link) Start(ctx context.Context) error {
	options := NewClientOptions(l.opts).
		SetOnConnectHandler(l.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			l.logger.Warn("mqtt connection lost, reconnecting", zap.Error(err))
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			l.logger.Info("reconnecting to mqtt broker")
		})
	client := l.newClient(options)

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("broker link already started")
	}

	workCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.client = client
	l.queues = make([]chan message, l.opts.Workers)
	for i := range l.queues {
		l.queues[i] = make(chan message, l.opts.QueueSize)
		l.wg.Add(1)
		go l.worker(workCtx, l.queues[i])
	}
	l.running = true
	l.mu.Unlock()

	l.logger.Info("connecting to mqtt broker",
		zap.String("broker", l.opts.BrokerURL),
		zap.Int("workers", l.opts.Workers),
		zap.Int("queue_size", l.opts.QueueSize),
	)

	token := client.Connect()
	timer := time.NewTimer(l.opts.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			l.Stop()
			return fmt.Errorf("[MQTT CONNECTION FAILED] cannot connect to %s: %w", l.opts.BrokerURL, err)
		}
	case <-timer.C:
		l.logger.Warn("mqtt broker not reachable yet, retrying in background",
			zap.String("broker", l.opts.BrokerURL))
	case <-ctx.Done():
		l.logger.Warn("mqtt broker not reachable before startup deadline, retrying in background",
			zap.String("broker", l.opts.BrokerURL), zap.Error(ctx.Err()))
	}

	return nil
}

// Stop disconnects from the broker, lets the workers drain their queues and waits for them
func (l *Link) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	client := l.client
	l.mu.Unlock()

	// Disconnect outside the lock: paho may still be delivering a message
	// and onMessage takes the read lock.
	client.Disconnect(250)

	l.mu.Lock()
	for _, q := range l.queues {
		close(q)
	}
	l.mu.Unlock()

	l.wg.Wait()
	l.cancel()

	l.logger.Info("broker link stopped", zap.Any("stats", l.Stats()))
}

// Stats returns a snapshot of the link counters
func (l *Link) Stats() Stats {
	return l.stats.snapshot()
}

// Connected reports whether the MQTT session is currently up
func (l *Link) Connected() bool {
	l.mu.RLock()
	client := l.client
	l.mu.RUnlock()
	return client != nil && client.IsConnected()
}

func (l *Link) onConnect(client mqtt.Client) {
	filters := make(map[string]byte)
	for _, f := range TopicFilters() {
		filters[f] = 0
	}

	token := client.SubscribeMultiple(filters, l.onMessage)
	if !token.WaitTimeout(l.opts.ConnectTimeout) {
		l.logger.Error("mqtt subscribe timed out")
		return
	}
	if err := token.Error(); err != nil {
		l.logger.Error("mqtt subscribe failed", zap.Error(err))
		return
	}

	l.logger.Info("subscribed to telemetry topics", zap.Strings("filters", TopicFilters()))
}

// onMessage runs on the paho router goroutine and must never block
func (l *Link) onMessage(_ mqtt.Client, msg mqtt.Message) {
	arrival := l.now()
	l.stats.received.Add(1)

	deviceID, sensorType, err := ParseTopic(msg.Topic())
	if err != nil {
		l.stats.malformed.Add(1)
		l.logger.Debug("dropping message", zap.Error(err))
		return
	}

	m := message{
		deviceID:   deviceID,
		sensorType: sensorType,
		payload:    string(msg.Payload()),
		arrival:    arrival,
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.running {
		l.stats.dropped.Add(1)
		return
	}

	select {
	case l.queues[shard(deviceID, len(l.queues))] <- m:
	default:
		l.stats.dropped.Add(1)
		l.logger.Warn("ingest queue full, dropping message",
			zap.String("device_id", deviceID),
			zap.String("sensor_type", sensorType),
		)
	}
}

func (l *Link) worker(ctx context.Context, queue <-chan message) {
	defer l.wg.Done()

	for m := range queue {
		l.handle(ctx, m)
	}
}

func (l *Link) handle(ctx context.Context, m message) {
	ingestCtx, cancel := context.WithTimeout(ctx, l.opts.IngestTimeout)
	defer cancel()

	err := l.ingester.Ingest(ingestCtx, m.deviceID, m.sensorType, m.payload, m.arrival)
	switch {
	case err == nil:
		l.stats.ingested.Add(1)
	case errors.Is(err, ingest.ErrBadValue),
		errors.Is(err, ingest.ErrUnknownType),
		errors.Is(err, ingest.ErrUnknownDevice):
		l.stats.rejected.Add(1)
	default:
		l.stats.failed.Add(1)
	}
}

func shard(deviceID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(deviceID))
	return int(h.Sum32() % uint32(n))
}
