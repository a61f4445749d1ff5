package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/broker"
	"github.com/septivank/sensor-telemetry/internal/registry"
	"github.com/septivank/sensor-telemetry/internal/sensor"
)

var newMQTTClient = mqtt.NewClient

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	BrokerURL string
	DeviceID  string
	Type      string
	Value     float64
	Step      float64
	Count     int
	Interval  time.Duration
	Timeout   time.Duration
}

// NewPublishCommand creates the command that publishes sample readings to the broker.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish sample readings as a device would",
		Long: `Publish --count readings on <device>/<type>, adding --step to the value each time.

The broker defaults to MQTT_BROKER_URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.BrokerURL, "broker", "", "broker URL (default MQTT_BROKER_URL)")
	cmd.Flags().StringVar(&opts.DeviceID, "device", "", "device id (required)")
	cmd.Flags().StringVar(&opts.Type, "type", string(sensor.CarbonMonoxide), "sensor type (co|metan|temperature|humidity)")
	cmd.Flags().Float64Var(&opts.Value, "value", 0, "first value to publish")
	cmd.Flags().Float64Var(&opts.Step, "step", 0, "amount added to the value after each message")
	cmd.Flags().IntVar(&opts.Count, "count", 1, "number of messages to send")
	cmd.Flags().DurationVar(&opts.Interval, "interval", time.Second, "delay between messages")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "connect and publish timeout")

	return cmd
}

func runPublish(cmd *cobra.Command, opts *PublishOptions) error {
	if err := registry.ValidateDeviceID(opts.DeviceID); err != nil {
		return err
	}
	typ, err := sensor.ParseType(opts.Type)
	if err != nil {
		return err
	}
	if opts.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", opts.Count)
	}

	brokerURL := opts.BrokerURL
	if brokerURL == "" {
		brokerURL = os.Getenv("MQTT_BROKER_URL")
	}
	if brokerURL == "" {
		return errors.New("no broker: pass --broker or set MQTT_BROKER_URL")
	}

	clientOpts := broker.NewClientOptions(broker.Options{
		BrokerURL:            brokerURL,
		Username:             os.Getenv("MQTT_USERNAME"),
		Password:             os.Getenv("MQTT_PASSWORD"),
		ConnectTimeout:       opts.Timeout,
		KeepAlive:            30 * time.Second,
		MaxReconnectInterval: opts.Timeout,
	})
	// fail fast instead of retrying in the background
	clientOpts.SetConnectRetry(false)
	clientOpts.SetAutoReconnect(false)

	client := newMQTTClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return fmt.Errorf("connect to %s timed out after %s", brokerURL, opts.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", brokerURL, err)
	}
	defer client.Disconnect(250)

	topic := broker.Topic(opts.DeviceID, typ)
	out := cmd.OutOrStdout()

	for i := 0; i < opts.Count; i++ {
		if i > 0 && opts.Interval > 0 {
			time.Sleep(opts.Interval)
		}

		payload := strconv.FormatFloat(opts.Value+float64(i)*opts.Step, 'f', -1, 64)
		token := client.Publish(topic, 0, false, payload)
		if !token.WaitTimeout(opts.Timeout) {
			return fmt.Errorf("publish %d timed out", i+1)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %d: %w", i+1, err)
		}

		opts.logger.Debug("reading published", zap.String("topic", topic), zap.String("payload", payload))
		fmt.Fprintf(out, "sent %s %s %s\n", topic, payload, typ.Unit())
	}

	fmt.Fprintf(out, "published %d readings to %s\n", opts.Count, topic)
	return nil
}
