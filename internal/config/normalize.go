// internal/config/normalize.go
package config

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 9600
	}
	if cfg.Serial.SettleMs == 0 {
		cfg.Serial.SettleMs = 100
	}
	if cfg.Poll.TimeoutMs == 0 {
		cfg.Poll.TimeoutMs = 1000
	}

	if cfg.Export.Broker != "" {
		if cfg.Export.Port == 0 {
			cfg.Export.Port = 1883
		}
		if cfg.Export.ClientID == "" {
			cfg.Export.ClientID = "sailmon"
		}
		if cfg.Export.TopicPrefix == "" {
			cfg.Export.TopicPrefix = "sailbus/telemetry"
		}
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Capability != "power-supply" {
			continue
		}
		// Conservative bench ceilings when none are configured.
		if d.Calibration.MaxVoltage == 0 {
			d.Calibration.MaxVoltage = 16
		}
		if d.Calibration.MaxCurrent == 0 {
			d.Calibration.MaxCurrent = 4
		}
	}
}
