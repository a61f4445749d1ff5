package broker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/septivank/sensor-telemetry/internal/sensor"
)

// ErrMalformedTopic is returned for topics that are not exactly <deviceId>/<sensorType>
var ErrMalformedTopic = errors.New("malformed topic")

// ParseTopic splits a telemetry topic into device id and sensor type name
func ParseTopic(topic string) (deviceID, sensorType string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
	return parts[0], parts[1], nil
}

// Topic builds the topic a device publishes a sensor type on
func Topic(deviceID string, t sensor.Type) string {
	return deviceID + "/" + string(t)
}

// TopicFilters returns one single-level wildcard filter per sensor type
func TopicFilters() []string {
	types := sensor.All()
	filters := make([]string, 0, len(types))
	for _, t := range types {
		filters = append(filters, "+/"+string(t))
	}
	return filters
}
