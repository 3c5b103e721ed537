// internal/sail/snapshot.go
package sail

import (
	"math"
	"time"
)

// Snapshot is a timestamped set of converted readings for one device.
// Immutable once built; each poll supersedes the previous snapshot rather
// than mutating it.
type Snapshot struct {
	Device  DeviceID               `json:"device"`
	TakenAt time.Time              `json:"taken_at"`
	Latency int                    `json:"latency"`
	Values  map[Question][]float64 `json:"values"`

	// AggregateCurrent sums the per-battery currents; negative means the
	// pack is discharging.
	AggregateCurrent float64 `json:"aggregate_current"`
}

// NewSnapshot merges decoded reports into one snapshot taken at the given
// UTC instant. Latency is the worst value seen across the question set.
func NewSnapshot(id DeviceID, at time.Time, reports map[Question]*Report) *Snapshot {
	s := &Snapshot{
		Device:  id,
		TakenAt: at.UTC(),
		Values:  make(map[Question][]float64, len(reports)),
	}

	for q, r := range reports {
		if r == nil {
			continue
		}
		vals := make([]float64, len(r.Readings))
		for i, raw := range r.Readings {
			vals[i] = ConvertReading(q, raw)
		}
		s.Values[q] = vals
		if r.Latency > s.Latency {
			s.Latency = r.Latency
		}
	}

	for _, i := range s.Values[QuestionCurrent] {
		s.AggregateCurrent += i
	}
	return s
}

// Raw current values above this threshold encode negative (discharge)
// currents in 16-bit two's complement.
const (
	currentSignThreshold = 32000
	currentSignAdjust    = 65536
	kelvinOffset         = 273.15
)

// ConvertReading turns a raw hex group into engineering units.
func ConvertReading(q Question, raw uint16) float64 {
	switch q {
	case QuestionVoltage:
		// mV -> V, two decimals
		return math.Round(float64(raw)/10.0) / 100.0
	case QuestionCurrent:
		// signed mA
		if raw > currentSignThreshold {
			return float64(int(raw) - currentSignAdjust)
		}
		return float64(raw)
	case QuestionTemperature:
		// deci-Kelvin -> degrees C
		return float64(raw)/10.0 - kelvinOffset
	default:
		// ?p, ?q, ?c are already in their reported unit
		return float64(raw)
	}
}
