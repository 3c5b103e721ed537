// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/glidertools/sailbus/internal/sail"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg.Serial.Port == "" {
		return fmt.Errorf("config: serial port is required")
	}
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("config: at least one device is required")
	}

	for _, q := range cfg.Poll.Questions {
		if !sail.Question(q).Valid() {
			return fmt.Errorf("config: unknown poll question %q", q)
		}
	}

	// ------------------------------------------------------------
	// DEVICE TABLE VALIDATION
	// ------------------------------------------------------------

	seenID := make(map[string]bool)

	// key = address | voltage channel; both supply banks may share the
	// address token but never a channel bank.
	seenBinding := make(map[string]string)

	for _, d := range cfg.Devices {
		if d.ID == "" || d.Address == "" {
			return fmt.Errorf("config: every device needs id and address")
		}
		if seenID[d.ID] {
			return fmt.Errorf("config: device id %q declared twice", d.ID)
		}
		seenID[d.ID] = true

		key := d.Address + "|" + d.Channels.Voltage
		if prev, exists := seenBinding[key]; exists {
			return fmt.Errorf("config: devices %q and %q share bus binding %q", prev, d.ID, d.Address)
		}
		seenBinding[key] = d.ID

		switch d.Capability {
		case "battery-pack":
			if d.Batteries < 1 || d.Batteries > sail.RelayBits {
				return fmt.Errorf("config: pack %q: batteries must be 1..%d, got %d", d.ID, sail.RelayBits, d.Batteries)
			}
			if d.ScanSeconds < 0 {
				return fmt.Errorf("config: pack %q: scan_seconds must not be negative", d.ID)
			}

		case "power-supply":
			if d.Channels.Voltage == "" || d.Channels.Current == "" {
				return fmt.Errorf("config: supply %q: voltage and current channels are required", d.ID)
			}
			if d.Calibration.VoltageGain == 0 || d.Calibration.CurrentGain == 0 {
				return fmt.Errorf("config: supply %q: calibration gains must be non-zero", d.ID)
			}
			if d.ScanSeconds != 0 {
				return fmt.Errorf("config: supply %q: supplies are command-only and cannot be scanned", d.ID)
			}

		default:
			return fmt.Errorf("config: device %q: unknown capability %q", d.ID, d.Capability)
		}
	}

	// ------------------------------------------------------------
	// EXPORT VALIDATION (OPT-IN)
	// ------------------------------------------------------------

	if cfg.Export.Broker != "" {
		if cfg.Export.Port < 0 || cfg.Export.Port > 65535 {
			return fmt.Errorf("config: export port %d out of range", cfg.Export.Port)
		}
	}

	return nil
}
