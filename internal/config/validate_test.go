// internal/config/validate_test.go
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Serial: SerialConfig{Port: "/dev/ttyUSB0"},
		Poll:   PollConfig{Questions: []string{"?v", "?i"}},
		Devices: []DeviceConfig{
			{
				ID: "pitch", Address: "#bat4",
				Capability: "battery-pack", Batteries: 10, ScanSeconds: 30,
			},
			{
				ID: "power-supply-1", Address: "#ada",
				Capability: "power-supply",
				Channels:   ChannelsConfig{Voltage: "!a1.", Current: "!a2.", Load: "!p2"},
				Calibration: CalibrationConfig{
					VoltageGain: 0.00078141, VoltageOffset: -0.053842,
					CurrentGain: 0.00020677, CurrentOffset: 0.014475,
				},
			},
			{
				ID: "power-supply-2", Address: "#ada",
				Capability: "power-supply",
				Channels:   ChannelsConfig{Voltage: "!a3.", Current: "!a4.", Load: "!p3"},
				Calibration: CalibrationConfig{
					VoltageGain: 0.00078141, CurrentGain: 0.00020677,
				},
			},
		},
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateRequiresPort(t *testing.T) {
	cfg := validConfig()
	cfg.Serial.Port = ""
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsDuplicateID(t *testing.T) {
	cfg := validConfig()
	cfg.Devices = append(cfg.Devices, cfg.Devices[0])
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsSharedBinding(t *testing.T) {
	cfg := validConfig()
	dup := cfg.Devices[1]
	dup.ID = "power-supply-3" // same #ada token, same channel bank
	cfg.Devices = append(cfg.Devices, dup)
	require.Error(t, Validate(cfg))
}

func TestValidateSuppliesMayShareAddressToken(t *testing.T) {
	// Two supplies on #ada with different channel banks is the normal
	// charger-board wiring.
	require.NoError(t, Validate(validConfig()))
}

func TestValidateBatteryCountBounds(t *testing.T) {
	for _, n := range []int{0, 11} {
		cfg := validConfig()
		cfg.Devices[0].Batteries = n
		require.Error(t, Validate(cfg), "batteries=%d", n)
	}
}

func TestValidateRejectsUnknownQuestion(t *testing.T) {
	cfg := validConfig()
	cfg.Poll.Questions = []string{"?z"}
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsSupplyScan(t *testing.T) {
	cfg := validConfig()
	cfg.Devices[1].ScanSeconds = 30
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsZeroGain(t *testing.T) {
	cfg := validConfig()
	cfg.Devices[1].Calibration.VoltageGain = 0
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownCapability(t *testing.T) {
	cfg := validConfig()
	cfg.Devices[0].Capability = "thruster"
	require.Error(t, Validate(cfg))
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Export.Broker = "localhost"
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, 100, cfg.Serial.SettleMs)
	assert.Equal(t, 1000, cfg.Poll.TimeoutMs)
	assert.Equal(t, 1883, cfg.Export.Port)
	assert.Equal(t, "sailmon", cfg.Export.ClientID)
	assert.Equal(t, 16.0, cfg.Devices[1].Calibration.MaxVoltage)
	assert.Equal(t, 4.0, cfg.Devices[1].Calibration.MaxCurrent)
}
