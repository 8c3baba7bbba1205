package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure shared by the sensor node and
// the collector. Each binary reads the sections it needs.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Queue     QueueConfig     `yaml:"queue"`
	Collector CollectorConfig `yaml:"collector"`
	Network   NetworkConfig   `yaml:"network"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Status    StatusConfig    `yaml:"status"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// NodeConfig identifies the sensor node.
type NodeConfig struct {
	ID string `yaml:"id"`
}

// SensorConfig contains I2C bus and sampling settings.
type SensorConfig struct {
	// Bus is the periph bus name ("" opens the first available bus, "1" opens /dev/i2c-1).
	Bus string `yaml:"bus"`

	// Addresses are probed in order during discovery.
	Addresses []uint16 `yaml:"addresses"`

	SettleDelay    time.Duration `yaml:"settle_delay"`
	StartupDelay   time.Duration `yaml:"startup_delay"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// QueueConfig contains the bounded sample queue settings.
type QueueConfig struct {
	Capacity    int           `yaml:"capacity"`
	PushTimeout time.Duration `yaml:"push_timeout"`
	PopTimeout  time.Duration `yaml:"pop_timeout"`
}

// CollectorConfig is the remote endpoint the node forwards readings to.
type CollectorConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// Address returns host:port for dialling.
func (c CollectorConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NetworkConfig contains link monitoring and connection manager cadence.
type NetworkConfig struct {
	// Interface is the network interface watched for link state.
	// Empty means any non-loopback interface.
	Interface        string        `yaml:"interface"`
	LinkPollInterval time.Duration `yaml:"link_poll_interval"`
	LinkDownPoll     time.Duration `yaml:"link_down_poll"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	ConnectedPoll    time.Duration `yaml:"connected_poll"`
	IdlePoll         time.Duration `yaml:"idle_poll"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// Address returns the broker host:port.
func (c MQTTBrokerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// StatusConfig controls the node's periodic status report.
type StatusConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig contains the collector's listeners and history settings.
type ServerConfig struct {
	Ingest          IngestConfig    `yaml:"ingest"`
	API             APIConfig       `yaml:"api"`
	WebSocket       WebSocketConfig `yaml:"websocket"`
	HistorySize     int             `yaml:"history_size"`
	NodeStatusTopic string          `yaml:"node_status_topic"`
}

// IngestConfig is the TCP listener nodes connect to.
type IngestConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// Address returns the listen address.
func (c IngestConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// Address returns the listen address.
func (c APIConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: THERMOLINK_SECTION_KEY
// For example: THERMOLINK_COLLECTOR_HOST, THERMOLINK_SENSOR_BUS
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID: "node-001",
		},
		Sensor: SensorConfig{
			Addresses:      []uint16{0x76, 0x77},
			SettleDelay:    100 * time.Millisecond,
			StartupDelay:   2 * time.Second,
			SampleInterval: 500 * time.Millisecond,
		},
		Queue: QueueConfig{
			Capacity:    10,
			PushTimeout: 100 * time.Millisecond,
			PopTimeout:  time.Second,
		},
		Collector: CollectorConfig{
			Port:           9000,
			ConnectTimeout: 5 * time.Second,
			WriteTimeout:   5 * time.Second,
		},
		Network: NetworkConfig{
			LinkPollInterval: time.Second,
			LinkDownPoll:     2 * time.Second,
			RetryDelay:       5 * time.Second,
			ConnectedPoll:    5 * time.Second,
			IdlePoll:         time.Second,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "thermolink",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Status: StatusConfig{
			Interval: 30 * time.Second,
		},
		Server: ServerConfig{
			Ingest: IngestConfig{
				Host:        "0.0.0.0",
				Port:        9000,
				IdleTimeout: 2 * time.Minute,
			},
			API: APIConfig{
				Host: "0.0.0.0",
				Port: 5000,
				Timeouts: APITimeoutConfig{
					Read:  30,
					Write: 30,
					Idle:  60,
				},
			},
			WebSocket: WebSocketConfig{
				Path:           "/ws",
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
			HistorySize:     100,
			NodeStatusTopic: "thermolink/status/+",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: THERMOLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("THERMOLINK_NODE_ID"); v != "" {
		cfg.Node.ID = v
	}

	// Sensor
	if v := os.Getenv("THERMOLINK_SENSOR_BUS"); v != "" {
		cfg.Sensor.Bus = v
	}

	// Collector endpoint
	if v := os.Getenv("THERMOLINK_COLLECTOR_HOST"); v != "" {
		cfg.Collector.Host = v
	}
	if v := os.Getenv("THERMOLINK_COLLECTOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Collector.Port = port
		}
	}

	if v := os.Getenv("THERMOLINK_NETWORK_INTERFACE"); v != "" {
		cfg.Network.Interface = v
	}

	// MQTT
	if v := os.Getenv("THERMOLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("THERMOLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("THERMOLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("THERMOLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the settings shared by both binaries.
func (c *Config) Validate() error {
	var errs []string

	if c.Node.ID == "" {
		errs = append(errs, "node.id is required")
	}

	if c.Queue.Capacity < 1 {
		errs = append(errs, "queue.capacity must be at least 1")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if !validPort(c.Server.Ingest.Port) {
		errs = append(errs, "server.ingest.port must be between 1 and 65535")
	}
	if !validPort(c.Server.API.Port) {
		errs = append(errs, "server.api.port must be between 1 and 65535")
	}
	if c.Server.HistorySize < 1 {
		errs = append(errs, "server.history_size must be at least 1")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ValidateNode checks the settings only the sensor node depends on.
// The collector does not need a collector endpoint or sensor addresses.
func (c *Config) ValidateNode() error {
	var errs []string

	if c.Collector.Host == "" {
		errs = append(errs, "collector.host is required (set THERMOLINK_COLLECTOR_HOST)")
	}
	if !validPort(c.Collector.Port) {
		errs = append(errs, "collector.port must be between 1 and 65535")
	}

	if len(c.Sensor.Addresses) == 0 {
		errs = append(errs, "sensor.addresses must list at least one address")
	}
	for _, addr := range c.Sensor.Addresses {
		if addr > 0x7F {
			errs = append(errs, fmt.Sprintf("sensor.addresses: 0x%X is not a 7-bit address", addr))
		}
	}

	if c.Sensor.SampleInterval <= 0 {
		errs = append(errs, "sensor.sample_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("node configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
