// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Serial  SerialConfig   `yaml:"serial"`
	Poll    PollConfig     `yaml:"poll"`
	Devices []DeviceConfig `yaml:"devices"`
	Export  ExportConfig   `yaml:"export"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	SettleMs int    `yaml:"settle_ms"`
}

// ---- POLL ----

type PollConfig struct {
	TimeoutMs int      `yaml:"timeout_ms"`
	Questions []string `yaml:"questions"`
}

// ---- DEVICE TABLE ----

// DeviceConfig is one row of the static device table: logical identifier,
// bus address token, capability, and capability-specific settings.
type DeviceConfig struct {
	ID         string `yaml:"id"`
	Address    string `yaml:"address"`
	Capability string `yaml:"capability"` // "battery-pack" or "power-supply"

	// Battery packs.
	Batteries   int `yaml:"batteries"`
	ScanSeconds int `yaml:"scan_seconds"` // 0 = polling disabled

	// Power supplies.
	Channels    ChannelsConfig    `yaml:"channels"`
	Calibration CalibrationConfig `yaml:"calibration"`
}

type ChannelsConfig struct {
	Voltage string `yaml:"voltage"`
	Current string `yaml:"current"`
	Load    string `yaml:"load"`
}

type CalibrationConfig struct {
	VoltageGain   float64 `yaml:"voltage_gain"`
	VoltageOffset float64 `yaml:"voltage_offset"`
	CurrentGain   float64 `yaml:"current_gain"`
	CurrentOffset float64 `yaml:"current_offset"`
	MaxVoltage    float64 `yaml:"max_voltage"`
	MaxCurrent    float64 `yaml:"max_current"`
}

// ---- EXPORT ----

// ExportConfig enables the MQTT snapshot publisher. Disabled when the
// broker is empty.
type ExportConfig struct {
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Load reads and decodes the YAML configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
