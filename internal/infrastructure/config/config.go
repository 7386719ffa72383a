package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Automata agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device       DeviceConfig       `yaml:"device"`
	Network      NetworkConfig      `yaml:"network"`
	Backend      BackendConfig      `yaml:"backend"`
	Registration RegistrationConfig `yaml:"registration"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Commands     CommandsConfig     `yaml:"commands"`
	Lifecycle    LifecycleConfig    `yaml:"lifecycle"`
	Database     DatabaseConfig     `yaml:"database"`
	Diagnostics  DiagnosticsConfig  `yaml:"diagnostics"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// DeviceConfig describes the device as announced to the backend.
type DeviceConfig struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Type     string `yaml:"type"`

	// UpdateInterval is the periodic update interval in milliseconds.
	UpdateInterval int `yaml:"update_interval"`

	// MACAddress overrides the hardware address discovered at boot.
	MACAddress string `yaml:"mac_address,omitempty"`

	// Interface is the network interface used for MAC and IP discovery.
	// Empty means the first non-loopback interface with a hardware address.
	Interface string `yaml:"interface,omitempty"`
}

// NetworkConfig contains wireless association settings.
type NetworkConfig struct {
	// Backend selects the associator: "nmcli" or "static".
	Backend string `yaml:"backend"`

	// Interface is the wireless interface managed by nmcli (e.g. "wlan0").
	Interface string `yaml:"interface"`

	// Candidates are the known networks, tried in order.
	Candidates []NetworkCredential `yaml:"candidates"`

	// RetryDelay is the fixed delay between association attempts (seconds).
	RetryDelay int `yaml:"retry_delay"`

	// FetchFromBackend refreshes the network list from the backend after association.
	FetchFromBackend bool `yaml:"fetch_from_backend"`

	// NTPServer is queried once per association event. Empty disables time sync.
	NTPServer string `yaml:"ntp_server"`

	// MDNS enables local name registration once per association event.
	MDNS bool `yaml:"mdns"`
}

// NetworkCredential is one (network-name, secret) pair.
type NetworkCredential struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// BackendConfig contains the registration backend endpoint.
type BackendConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	BasePath string `yaml:"base_path"`

	// InsecureSkipVerify disables certificate verification for TLS backends.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// Timeout is the per-request ceiling in seconds.
	Timeout int `yaml:"timeout"`
}

// RegistrationConfig contains registration retry policy settings.
type RegistrationConfig struct {
	// RetryInterval is the minimum time between attempts (seconds).
	RetryInterval int `yaml:"retry_interval"`

	// Backoff enables exponential backoff on top of RetryInterval.
	Backoff bool `yaml:"backoff"`

	// BaseDelay and MaxBackoff are in seconds.
	BaseDelay  int `yaml:"base_delay"`
	MaxBackoff int `yaml:"max_backoff"`

	// MaxRetries is the retry count above which failures are reported as a warning.
	MaxRetries int `yaml:"max_retries"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	KeepAlive int              `yaml:"keep_alive"`
	BaseTopic string           `yaml:"base_topic"`

	// StatusTopic carries the retained presence record.
	StatusTopic string `yaml:"status_topic"`

	// UseServerCredentials fetches the broker endpoint from the backend before connecting.
	UseServerCredentials bool `yaml:"use_server_credentials"`

	// InboxSize bounds the queue between the transport callback and the dispatch pump.
	InboxSize int `yaml:"inbox_size"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// CommandsConfig contains inbound command handling settings.
type CommandsConfig struct {
	// RebootSecret, when set, requires reboot directives to carry an HS256 token.
	RebootSecret string `yaml:"reboot_secret"`

	// RestartCommand is run to restart the device. Empty exits the agent instead.
	RestartCommand []string `yaml:"restart_command"`
}

// LifecycleConfig contains loop cadence settings.
type LifecycleConfig struct {
	// TickInterval is the delay between loop ticks (milliseconds).
	TickInterval int `yaml:"tick_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// DiagnosticsConfig contains the local diagnostics server settings.
type DiagnosticsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	PingInterval int    `yaml:"ping_interval"`
	PongTimeout  int    `yaml:"pong_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AUTOMATA_SECTION_KEY
// For example: AUTOMATA_BACKEND_HOST, AUTOMATA_MQTT_PASSWORD
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with the agent's defaults.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:           "Automata Device",
			Category:       "sensor",
			Type:           "sensor",
			UpdateInterval: 60000,
		},
		Network: NetworkConfig{
			Backend:    "static",
			Interface:  "wlan0",
			RetryDelay: 5,
			NTPServer:  "pool.ntp.org",
		},
		Backend: BackendConfig{
			Host:     "localhost",
			Port:     8010,
			BasePath: "/api/v1/main",
			Timeout:  5,
		},
		Registration: RegistrationConfig{
			RetryInterval: 30,
			BaseDelay:     1,
			MaxBackoff:    60,
			MaxRetries:    8,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:         1,
			KeepAlive:   30,
			BaseTopic:   "automata",
			StatusTopic: "automata/status",
			InboxSize:   64,
		},
		Lifecycle: LifecycleConfig{
			TickInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/automata.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:      true,
			Host:         "0.0.0.0",
			Port:         8080,
			PingInterval: 30,
			PongTimeout:  10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTOMATA_DEVICE_NAME"); v != "" {
		cfg.Device.Name = v
	}

	if v := os.Getenv("AUTOMATA_BACKEND_HOST"); v != "" {
		cfg.Backend.Host = v
	}
	if v := os.Getenv("AUTOMATA_BACKEND_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Backend.Port = port
		}
	}

	if v := os.Getenv("AUTOMATA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AUTOMATA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AUTOMATA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("AUTOMATA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("AUTOMATA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("AUTOMATA_REBOOT_SECRET"); v != "" {
		cfg.Commands.RebootSecret = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Device.Name) == "" {
		errs = append(errs, "device.name is required")
	}
	if c.Device.UpdateInterval <= 0 {
		errs = append(errs, "device.update_interval must be positive")
	}

	switch c.Network.Backend {
	case "nmcli":
		if c.Network.Interface == "" {
			errs = append(errs, "network.interface is required for the nmcli backend")
		}
	case "static":
	default:
		errs = append(errs, "network.backend must be \"nmcli\" or \"static\"")
	}
	if c.Network.RetryDelay <= 0 {
		errs = append(errs, "network.retry_delay must be positive")
	}

	if c.Backend.Host == "" {
		errs = append(errs, "backend.host is required")
	}
	if c.Backend.Port < 1 || c.Backend.Port > 65535 {
		errs = append(errs, "backend.port must be between 1 and 65535")
	}

	if c.Registration.RetryInterval <= 0 {
		errs = append(errs, "registration.retry_interval must be positive")
	}
	if c.Registration.Backoff && c.Registration.MaxBackoff < c.Registration.BaseDelay {
		errs = append(errs, "registration.max_backoff must be >= registration.base_delay")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.BaseTopic == "" {
		errs = append(errs, "mqtt.base_topic is required")
	}
	if c.MQTT.StatusTopic == "" {
		errs = append(errs, "mqtt.status_topic is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Diagnostics.Enabled && (c.Diagnostics.Port < 1 || c.Diagnostics.Port > 65535) {
		errs = append(errs, "diagnostics.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetUpdateInterval returns the periodic update interval as a Duration.
func (c *Config) GetUpdateInterval() time.Duration {
	return time.Duration(c.Device.UpdateInterval) * time.Millisecond
}

// GetTickInterval returns the lifecycle tick delay as a Duration.
func (c *Config) GetTickInterval() time.Duration {
	return time.Duration(c.Lifecycle.TickInterval) * time.Millisecond
}

// GetRetryInterval returns the registration retry floor as a Duration.
func (c *Config) GetRetryInterval() time.Duration {
	return time.Duration(c.Registration.RetryInterval) * time.Second
}

// GetBackendTimeout returns the per-request backend timeout as a Duration.
func (c *Config) GetBackendTimeout() time.Duration {
	return time.Duration(c.Backend.Timeout) * time.Second
}

// GetNetworkRetryDelay returns the fixed association retry delay as a Duration.
func (c *Config) GetNetworkRetryDelay() time.Duration {
	return time.Duration(c.Network.RetryDelay) * time.Second
}

// GetKeepAlive returns the MQTT keepalive as a Duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.MQTT.KeepAlive) * time.Second
}

// GetBackoffBase returns the registration backoff base delay as a Duration.
func (c *Config) GetBackoffBase() time.Duration {
	return time.Duration(c.Registration.BaseDelay) * time.Second
}

// GetMaxBackoff returns the registration backoff ceiling as a Duration.
func (c *Config) GetMaxBackoff() time.Duration {
	return time.Duration(c.Registration.MaxBackoff) * time.Second
}
