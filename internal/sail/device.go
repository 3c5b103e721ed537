// internal/sail/device.go
package sail

// DeviceID is the logical name of a bus participant.
type DeviceID string

// The glider carries four physically distinct battery packs and up to two
// power supply banks on the charger board.
const (
	DevicePitch    DeviceID = "pitch"
	DevicePayload  DeviceID = "payload"
	DeviceAftShort DeviceID = "aft-short"
	DeviceAftLong  DeviceID = "aft-long"
	DeviceSupply1  DeviceID = "power-supply-1"
	DeviceSupply2  DeviceID = "power-supply-2"
)

// Capability splits the command surface: packs answer questions and switch
// relays, supplies take value and load commands.
type Capability int

const (
	CapBatteryPack Capability = iota
	CapPowerSupply
)

func (c Capability) String() string {
	switch c {
	case CapBatteryPack:
		return "battery-pack"
	case CapPowerSupply:
		return "power-supply"
	}
	return "unknown"
}

// Question is a pack state query mnemonic as sent on the wire.
type Question string

const (
	QuestionVoltage     Question = "?v" // per-battery voltage, raw mV
	QuestionCurrent     Question = "?i" // per-battery current, raw signed mA
	QuestionCharge      Question = "?p" // percent charge
	QuestionTemperature Question = "?k" // raw deci-Kelvin
	QuestionChargeState Question = "?q" // charge state, mAh
	QuestionDesired     Question = "?c" // desired charge current, mA
)

// DefaultQuestions is the full scan set in the order the packs are asked.
var DefaultQuestions = []Question{
	QuestionVoltage,
	QuestionCurrent,
	QuestionCharge,
	QuestionTemperature,
	QuestionChargeState,
	QuestionDesired,
}

func (q Question) Valid() bool {
	switch q {
	case QuestionVoltage, QuestionCurrent, QuestionCharge,
		QuestionTemperature, QuestionChargeState, QuestionDesired:
		return true
	}
	return false
}

// SupplyChannels names the charger-board channels a supply bank owns.
// Bank 1 is conventionally !a1./!a2./!p2, bank 2 is !a3./!a4./!p3.
type SupplyChannels struct {
	Voltage string
	Current string
	Load    string
}

// Calibration converts engineering units to the raw channel counts a supply
// accepts. Gains and offsets are per-board and come from configuration.
type Calibration struct {
	VoltageGain   float64
	VoltageOffset float64
	CurrentGain   float64
	CurrentOffset float64

	// Conservative output ceilings; exceeding them is warned about, not
	// rejected, matching the bench procedure.
	MaxVoltage float64
	MaxCurrent float64
}

// RawVoltage converts a target voltage to channel counts. Never negative.
func (c Calibration) RawVoltage(v float64) int {
	raw := int((v - c.VoltageOffset) / c.VoltageGain)
	if raw < 0 {
		raw = 0
	}
	return raw
}

// RawCurrent converts a target current to channel counts. Never negative.
func (c Calibration) RawCurrent(i float64) int {
	raw := int((i - c.CurrentOffset) / c.CurrentGain)
	if raw < 0 {
		raw = 0
	}
	return raw
}
