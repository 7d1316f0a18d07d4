package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the inkblue daemon.
// All configuration is loaded from YAML and can be overridden by environment
// variables.
type Config struct {
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BluetoothConfig contains the peripheral subsystem settings.
type BluetoothConfig struct {
	// Backend selects the bus command backend: "auto", "native" or "cli".
	Backend string `yaml:"backend"`

	// AdapterPath is the bus object path of the adapter.
	AdapterPath string `yaml:"adapter_path"`

	// DBusSendBinary is the dbus-send executable for the cli backend.
	DBusSendBinary string `yaml:"dbus_send_binary"`

	// Monitor configures the signal monitor subprocess.
	Monitor MonitorConfig `yaml:"monitor"`

	// PollIntervalMs is the reactor tick period in milliseconds.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// RSSIFloor is the out-of-range threshold for auto-connect, in dBm.
	RSSIFloor int `yaml:"rssi_floor"`

	// ResumeRetries bounds the power-confirmation loop after resume.
	ResumeRetries int `yaml:"resume_retries"`

	// ResumeRetryDelayMs is the wait between power probes on resume.
	ResumeRetryDelayMs int `yaml:"resume_retry_delay_ms"`

	// PreferNameMatch makes input attachment try the device name before
	// the hardware address.
	PreferNameMatch bool `yaml:"prefer_name_match"`

	// AllowInputFallback permits the secondary input matching strategy.
	AllowInputFallback bool `yaml:"allow_input_fallback"`

	// EnableOnStart powers the subsystem up as soon as the daemon starts.
	EnableOnStart bool `yaml:"enable_on_start"`
}

// MonitorConfig contains the signal monitor subprocess settings.
type MonitorConfig struct {
	Binary          string   `yaml:"binary"`
	Args            []string `yaml:"args"`
	GracefulTimeout int      `yaml:"graceful_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// TelemetryConfig contains InfluxDB telemetry settings. Disabled by default;
// the subsystem runs fully without it.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP control API settings. Loopback by default.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: INKBLUE_SECTION_KEY, for example
// INKBLUE_DATABASE_PATH or INKBLUE_API_PORT.
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

// Default returns the built-in configuration, used when no config file
// exists on the device.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bluetooth: BluetoothConfig{
			Backend:            "auto",
			AdapterPath:        "/org/bluez/hci0",
			DBusSendBinary:     "/usr/bin/dbus-send",
			Monitor:            MonitorConfig{GracefulTimeout: 3},
			PollIntervalMs:     100,
			RSSIFloor:          -90,
			ResumeRetries:      10,
			ResumeRetryDelayMs: 500,
			AllowInputFallback: true,
			EnableOnStart:      true,
		},
		Database: DatabaseConfig{
			Path:        "./data/inkblue.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "inkblue-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8675,
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration.
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("INKBLUE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Bluetooth
	if v := os.Getenv("INKBLUE_BLUETOOTH_BACKEND"); v != "" {
		cfg.Bluetooth.Backend = v
	}
	if v := os.Getenv("INKBLUE_BLUETOOTH_ADAPTER_PATH"); v != "" {
		cfg.Bluetooth.AdapterPath = v
	}

	// MQTT
	if v := os.Getenv("INKBLUE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("INKBLUE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("INKBLUE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("INKBLUE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("INKBLUE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Telemetry
	if v := os.Getenv("INKBLUE_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	switch c.Bluetooth.Backend {
	case "auto", "native", "cli":
	default:
		errs = append(errs, "bluetooth.backend must be auto, native or cli")
	}
	if c.Bluetooth.AdapterPath == "" {
		errs = append(errs, "bluetooth.adapter_path is required")
	}
	if c.Bluetooth.PollIntervalMs <= 0 {
		errs = append(errs, "bluetooth.poll_interval_ms must be positive")
	}
	if c.Bluetooth.RSSIFloor >= 0 {
		errs = append(errs, "bluetooth.rssi_floor must be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Bucket == "" {
			errs = append(errs, "telemetry.bucket is required when telemetry is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollInterval returns the reactor tick period as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Bluetooth.PollIntervalMs) * time.Millisecond
}

// ResumeRetryDelay returns the resume probe delay as a Duration.
func (c *Config) ResumeRetryDelay() time.Duration {
	return time.Duration(c.Bluetooth.ResumeRetryDelayMs) * time.Millisecond
}

// MonitorGracefulTimeout returns the monitor teardown budget as a Duration.
func (c *Config) MonitorGracefulTimeout() time.Duration {
	return time.Duration(c.Bluetooth.Monitor.GracefulTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
