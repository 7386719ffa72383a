package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "automata.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
device:
  name: "Greenhouse Sensor"
  category: "climate"
  update_interval: 30000
network:
  backend: "nmcli"
  interface: "wlan0"
  candidates:
    - ssid: "LAN-D"
      password: "secret-1"
    - ssid: "Net2.4"
      password: "secret-2"
backend:
  host: "backend.local"
  port: 8010
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  base_topic: "automata"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Name != "Greenhouse Sensor" {
		t.Errorf("Device.Name = %q, want %q", cfg.Device.Name, "Greenhouse Sensor")
	}
	if cfg.Device.Category != "climate" {
		t.Errorf("Device.Category = %q, want %q", cfg.Device.Category, "climate")
	}
	if len(cfg.Network.Candidates) != 2 {
		t.Fatalf("len(Network.Candidates) = %d, want 2", len(cfg.Network.Candidates))
	}
	if cfg.Network.Candidates[1].SSID != "Net2.4" {
		t.Errorf("Candidates[1].SSID = %q, want %q", cfg.Network.Candidates[1].SSID, "Net2.4")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}

	// Unset values keep their defaults
	if cfg.Registration.RetryInterval != 30 {
		t.Errorf("Registration.RetryInterval = %d, want 30", cfg.Registration.RetryInterval)
	}
	if cfg.MQTT.StatusTopic != "automata/status" {
		t.Errorf("MQTT.StatusTopic = %q, want %q", cfg.MQTT.StatusTopic, "automata/status")
	}
	if got := cfg.GetUpdateInterval(); got != 30*time.Second {
		t.Errorf("GetUpdateInterval() = %v, want 30s", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/automata.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
device:
  name: ""
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty device.name, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  host: "file-host"
mqtt:
  auth:
    username: "file-user"
`)

	t.Setenv("AUTOMATA_BACKEND_HOST", "env-host")
	t.Setenv("AUTOMATA_BACKEND_PORT", "9000")
	t.Setenv("AUTOMATA_MQTT_PASSWORD", "env-password")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.Host != "env-host" {
		t.Errorf("Backend.Host = %q, want %q", cfg.Backend.Host, "env-host")
	}
	if cfg.Backend.Port != 9000 {
		t.Errorf("Backend.Port = %d, want 9000", cfg.Backend.Port)
	}
	if cfg.MQTT.Auth.Username != "file-user" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "file-user")
	}
	if cfg.MQTT.Auth.Password != "env-password" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "env-password")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name:    "missing device name",
			mutate:  func(c *Config) { c.Device.Name = "  " },
			wantErr: true,
		},
		{
			name:    "unknown network backend",
			mutate:  func(c *Config) { c.Network.Backend = "wext" },
			wantErr: true,
		},
		{
			name: "nmcli without interface",
			mutate: func(c *Config) {
				c.Network.Backend = "nmcli"
				c.Network.Interface = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid backend port",
			mutate:  func(c *Config) { c.Backend.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero retry interval",
			mutate:  func(c *Config) { c.Registration.RetryInterval = 0 },
			wantErr: true,
		},
		{
			name: "backoff ceiling below base",
			mutate: func(c *Config) {
				c.Registration.Backoff = true
				c.Registration.BaseDelay = 10
				c.Registration.MaxBackoff = 5
			},
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name: "diagnostics disabled ignores port",
			mutate: func(c *Config) {
				c.Diagnostics.Enabled = false
				c.Diagnostics.Port = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
