package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported values for DATABASE_DRIVER
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	LogLevel    string
	Database    DatabaseConfig
	MQTT        MQTTConfig
	RabbitMQ    RabbitMQConfig
	Redis       RedisConfig
	InfluxDB    InfluxDBConfig
	Auth        AuthConfig
	Query       QueryConfig
	Devices     DevicesConfig
	Retention   RetentionConfig
	Alarm       AlarmConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string
	URL        string
	SQLitePath string
}

// MQTTConfig holds broker link settings
type MQTTConfig struct {
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

// RabbitMQConfig holds event publishing settings. Publishing is disabled when URL is empty.
type RabbitMQConfig struct {
	URL            string
	EventsExchange string
	PublishTimeout time.Duration
}

// RedisConfig holds owner cache settings. Caching is disabled when Addr is empty.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	OwnerTTL time.Duration
}

// InfluxDBConfig holds time-series mirror settings. Mirroring is disabled when URL is empty.
type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// AuthConfig holds identity and internal API settings
type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	IngestToken    string
	AllowedOrigins []string
}

// QueryConfig holds query service limits
type QueryConfig struct {
	DefaultWindow time.Duration
	MaxLimit      int
	Timeout       time.Duration
}

// DevicesConfig holds device status settings
type DevicesConfig struct {
	OnlineWindow time.Duration
}

// RetentionConfig holds retention sweep settings
type RetentionConfig struct {
	Horizon time.Duration
}

// AlarmConfig holds per-sensor alarm thresholds. A zero threshold disables the check.
type AlarmConfig struct {
	COPPM        float64
	MethanePPM   float64
	TemperatureC float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "sensor-telemetry"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Driver:     getEnv("DATABASE_DRIVER", DriverPostgres),
			URL:        getEnv("DATABASE_URL", ""),
			SQLitePath: getEnv("SQLITE_PATH", "telemetry.db"),
		},
		MQTT: MQTTConfig{
			BrokerURL:            getEnv("MQTT_BROKER_URL", ""),
			ClientID:             getEnv("MQTT_CLIENT_ID", ""),
			Username:             getEnv("MQTT_USERNAME", ""),
			Password:             getEnv("MQTT_PASSWORD", ""),
			ConnectTimeout:       getEnvAsDuration("MQTT_CONNECT_TIMEOUT", 10*time.Second),
			KeepAlive:            getEnvAsDuration("MQTT_KEEPALIVE", 60*time.Second),
			MaxReconnectInterval: getEnvAsDuration("MQTT_MAX_RECONNECT_INTERVAL", 30*time.Second),
			Workers:              getEnvAsInt("MQTT_WORKERS", 4),
			QueueSize:            getEnvAsInt("MQTT_QUEUE_SIZE", 1024),
			IngestTimeout:        getEnvAsDuration("MQTT_INGEST_TIMEOUT", 5*time.Second),
		},
		RabbitMQ: RabbitMQConfig{
			URL:            getEnv("RABBITMQ_URL", ""),
			EventsExchange: getEnv("RABBITMQ_EVENTS_EXCHANGE", "sensor-telemetry.events"),
			PublishTimeout: getEnvAsDuration("RABBITMQ_PUBLISH_TIMEOUT", 2*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			OwnerTTL: getEnvAsDuration("REDIS_OWNER_TTL", 24*time.Hour),
		},
		InfluxDB: InfluxDBConfig{
			URL:    getEnv("INFLUXDB_URL", ""),
			Token:  getEnv("INFLUXDB_TOKEN", ""),
			Org:    getEnv("INFLUXDB_ORG", ""),
			Bucket: getEnv("INFLUXDB_BUCKET", "sensor_data"),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			JWTIssuer:      getEnv("JWT_ISSUER", "sensor-dashboard"),
			JWTAudience:    getEnv("JWT_AUDIENCE", "sensor-telemetry"),
			IngestToken:    getEnv("INGEST_API_TOKEN", ""),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Query: QueryConfig{
			DefaultWindow: getEnvAsDuration("QUERY_DEFAULT_WINDOW", 7*24*time.Hour),
			MaxLimit:      getEnvAsInt("QUERY_MAX_LIMIT", 1000),
			Timeout:       getEnvAsDuration("QUERY_TIMEOUT", 5*time.Second),
		},
		Devices: DevicesConfig{
			OnlineWindow: getEnvAsDuration("DEVICE_ONLINE_WINDOW", 5*time.Minute),
		},
		Retention: RetentionConfig{
			Horizon: getEnvAsDuration("RETENTION_HORIZON", 7*24*time.Hour),
		},
		Alarm: AlarmConfig{
			COPPM:        getEnvAsFloat("ALARM_CO_PPM", 50),
			MethanePPM:   getEnvAsFloat("ALARM_METAN_PPM", 1000),
			TemperatureC: getEnvAsFloat("ALARM_TEMPERATURE_C", 60),
		},
	}

	// Validate required fields
	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
		}
	case DriverSQLite:
		if cfg.Database.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required when DATABASE_DRIVER=%s", DriverSQLite)
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q (want %s or %s)", cfg.Database.Driver, DriverPostgres, DriverSQLite)
	}
	if cfg.Query.MaxLimit <= 0 {
		return nil, fmt.Errorf("QUERY_MAX_LIMIT must be positive, got %d", cfg.Query.MaxLimit)
	}
	if cfg.MQTT.Workers <= 0 || cfg.MQTT.QueueSize <= 0 {
		return nil, fmt.Errorf("MQTT_WORKERS and MQTT_QUEUE_SIZE must be positive")
	}

	return cfg, nil
}

// ValidateServer checks the settings only the long-running server needs
func (c *Config) ValidateServer() error {
	if c.MQTT.BrokerURL == "" {
		return fmt.Errorf("MQTT_BROKER_URL is required but not set in environment variables")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set in environment variables")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, item)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
