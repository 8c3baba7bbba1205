package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
node:
  id: "greenhouse"
sensor:
  bus: "1"
  addresses: [0x77]
  sample_interval: 250ms
collector:
  host: "10.0.0.5"
  port: 9100
network:
  interface: "wlan0"
  retry_delay: 3s
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Node.ID != "greenhouse" {
		t.Errorf("Node.ID = %q, want %q", cfg.Node.ID, "greenhouse")
	}
	if cfg.Sensor.Bus != "1" {
		t.Errorf("Sensor.Bus = %q, want %q", cfg.Sensor.Bus, "1")
	}
	if len(cfg.Sensor.Addresses) != 1 || cfg.Sensor.Addresses[0] != 0x77 {
		t.Errorf("Sensor.Addresses = %v, want [0x77]", cfg.Sensor.Addresses)
	}
	if cfg.Sensor.SampleInterval != 250*time.Millisecond {
		t.Errorf("Sensor.SampleInterval = %v, want 250ms", cfg.Sensor.SampleInterval)
	}
	if got := cfg.Collector.Address(); got != "10.0.0.5:9100" {
		t.Errorf("Collector.Address() = %q, want %q", got, "10.0.0.5:9100")
	}
	if cfg.Network.RetryDelay != 3*time.Second {
		t.Errorf("Network.RetryDelay = %v, want 3s", cfg.Network.RetryDelay)
	}

	// Untouched sections keep defaults.
	if cfg.Queue.Capacity != 10 {
		t.Errorf("Queue.Capacity = %d, want 10", cfg.Queue.Capacity)
	}
	if cfg.Network.LinkDownPoll != 2*time.Second {
		t.Errorf("Network.LinkDownPoll = %v, want 2s", cfg.Network.LinkDownPoll)
	}

	if err := cfg.ValidateNode(); err != nil {
		t.Errorf("ValidateNode() error = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
node:
  id: ""
queue:
  capacity: 0
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"node.id", "queue.capacity"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "missing node ID", mutate: func(c *Config) { c.Node.ID = "" }, wantErr: true},
		{name: "zero queue capacity", mutate: func(c *Config) { c.Queue.Capacity = 0 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "ingest port low", mutate: func(c *Config) { c.Server.Ingest.Port = 0 }, wantErr: true},
		{name: "api port high", mutate: func(c *Config) { c.Server.API.Port = 70000 }, wantErr: true},
		{name: "empty history", mutate: func(c *Config) { c.Server.HistorySize = 0 }, wantErr: true},
		{
			name:    "influx enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateNode(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "host set", mutate: func(c *Config) { c.Collector.Host = "collector.lan" }, wantErr: false},
		{name: "missing host", mutate: func(*Config) {}, wantErr: true},
		{
			name: "no addresses",
			mutate: func(c *Config) {
				c.Collector.Host = "collector.lan"
				c.Sensor.Addresses = nil
			},
			wantErr: true,
		},
		{
			name: "address out of range",
			mutate: func(c *Config) {
				c.Collector.Host = "collector.lan"
				c.Sensor.Addresses = []uint16{0x76, 0x1FF}
			},
			wantErr: true,
		},
		{
			name: "zero interval",
			mutate: func(c *Config) {
				c.Collector.Host = "collector.lan"
				c.Sensor.SampleInterval = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.ValidateNode()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := APIConfig{
		Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("THERMOLINK_NODE_ID", "attic")
	t.Setenv("THERMOLINK_SENSOR_BUS", "/dev/i2c-3")
	t.Setenv("THERMOLINK_COLLECTOR_HOST", "192.168.1.50")
	t.Setenv("THERMOLINK_COLLECTOR_PORT", "9200")
	t.Setenv("THERMOLINK_NETWORK_INTERFACE", "wlan0")
	t.Setenv("THERMOLINK_MQTT_HOST", "mqtt.example.com")
	t.Setenv("THERMOLINK_MQTT_USERNAME", "testuser")
	t.Setenv("THERMOLINK_MQTT_PASSWORD", "testpass")
	t.Setenv("THERMOLINK_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"Node.ID", cfg.Node.ID, "attic"},
		{"Sensor.Bus", cfg.Sensor.Bus, "/dev/i2c-3"},
		{"Collector.Host", cfg.Collector.Host, "192.168.1.50"},
		{"Network.Interface", cfg.Network.Interface, "wlan0"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}

	if cfg.Collector.Port != 9200 {
		t.Errorf("Collector.Port = %d, want 9200", cfg.Collector.Port)
	}
}

func TestApplyEnvOverrides_BadPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("THERMOLINK_COLLECTOR_PORT", "ninety")

	applyEnvOverrides(cfg)

	if cfg.Collector.Port != 9000 {
		t.Errorf("Collector.Port = %d, want 9000", cfg.Collector.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Sensor.SettleDelay != 100*time.Millisecond {
		t.Errorf("Sensor.SettleDelay = %v, want 100ms", cfg.Sensor.SettleDelay)
	}
	if cfg.Sensor.StartupDelay != 2*time.Second {
		t.Errorf("Sensor.StartupDelay = %v, want 2s", cfg.Sensor.StartupDelay)
	}
	if cfg.Sensor.SampleInterval != 500*time.Millisecond {
		t.Errorf("Sensor.SampleInterval = %v, want 500ms", cfg.Sensor.SampleInterval)
	}
	if len(cfg.Sensor.Addresses) != 2 || cfg.Sensor.Addresses[0] != 0x76 || cfg.Sensor.Addresses[1] != 0x77 {
		t.Errorf("Sensor.Addresses = %v, want [0x76 0x77]", cfg.Sensor.Addresses)
	}
	if cfg.Queue.PushTimeout != 100*time.Millisecond {
		t.Errorf("Queue.PushTimeout = %v, want 100ms", cfg.Queue.PushTimeout)
	}
	if cfg.Network.ConnectedPoll != 5*time.Second {
		t.Errorf("Network.ConnectedPoll = %v, want 5s", cfg.Network.ConnectedPoll)
	}
	if cfg.Server.HistorySize != 100 {
		t.Errorf("Server.HistorySize = %d, want 100", cfg.Server.HistorySize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate: %v", err)
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"collector ipv4", CollectorConfig{Host: "192.168.1.20", Port: 9000}.Address(), "192.168.1.20:9000"},
		{"collector ipv6", CollectorConfig{Host: "fe80::1", Port: 9000}.Address(), "[fe80::1]:9000"},
		{"ingest any", IngestConfig{Host: "", Port: 9000}.Address(), ":9000"},
		{"ingest ipv6", IngestConfig{Host: "::", Port: 9000}.Address(), "[::]:9000"},
		{"api hostname", APIConfig{Host: "localhost", Port: 5000}.Address(), "localhost:5000"},
		{"api ipv6", APIConfig{Host: "::1", Port: 5000}.Address(), "[::1]:5000"},
		{"broker ipv6", MQTTBrokerConfig{Host: "fd00::5", Port: 1883}.Address(), "[fd00::5]:1883"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Address() = %q, want %q", tt.got, tt.want)
			}
		})
	}
}
