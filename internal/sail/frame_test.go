// internal/sail/frame_test.go
package sail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTime(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2018, 2, 3, 12, 0, 0, 0, time.UTC)
}

func TestEncodeQuery(t *testing.T) {
	frame, err := Encode(QueryCommand("#bat1", QuestionVoltage))
	require.NoError(t, err)
	assert.Equal(t, "#bat1?v", string(frame))
}

func TestEncodeQueryRejectsUnknownQuestion(t *testing.T) {
	_, err := Encode(QueryCommand("#bat1", Question("?z")))
	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
}

func TestEncodeScanTime(t *testing.T) {
	frame, err := Encode(ScanTimeCommand("#bat4", 30))
	require.NoError(t, err)
	assert.Equal(t, "#bat4!s1e_", string(frame))
}

func TestEncodeScanTimeRejectsNonPositive(t *testing.T) {
	for _, sec := range []int{0, -5} {
		_, err := Encode(ScanTimeCommand("#bat4", sec))
		var ee *EncodeError
		require.ErrorAs(t, err, &ee, "seconds=%d", sec)
	}
}

func TestEncodeRelays(t *testing.T) {
	relays := make([]bool, RelayBits)
	relays[0] = true
	relays[6] = true

	frame, err := Encode(RelayCommand("#bat2", relays))
	require.NoError(t, err)
	assert.Equal(t, "#bat2!rb10000,01000x", string(frame))
}

func TestEncodeRelaysRejectsWrongWidth(t *testing.T) {
	_, err := Encode(RelayCommand("#bat2", []bool{true, false}))
	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
}

func TestEncodeValue(t *testing.T) {
	frame, err := Encode(ValueCommand("#ada", "!a1.", 0x3fc2))
	require.NoError(t, err)
	assert.Equal(t, "#ada!a1.3fc2x", string(frame))
}

func TestEncodeValueRejectsOutOfRange(t *testing.T) {
	for _, raw := range []int{-1, maxRawValue + 1} {
		_, err := Encode(ValueCommand("#ada", "!a1.", raw))
		var ee *EncodeError
		require.ErrorAs(t, err, &ee, "raw=%d", raw)
	}
}

func TestEncodeLoad(t *testing.T) {
	on, err := Encode(LoadCommand("#ada", "!p2", true))
	require.NoError(t, err)
	assert.Equal(t, "#ada!p2+x", string(on))

	off, err := Encode(LoadCommand("#ada", "!p3", false))
	require.NoError(t, err)
	assert.Equal(t, "#ada!p3-x", string(off))
}

func TestDecodeReportRoundTrip(t *testing.T) {
	cmd := QueryCommand("#bat1", QuestionVoltage)

	// Echo, latency group, three readings, terminator.
	frame := []byte("#bat1?v 0010 0e4c 0e51 0e3f" + ReportTerminator)

	rep, err := DecodeReport(cmd, frame)
	require.NoError(t, err)
	assert.Equal(t, 0x10, rep.Latency)
	assert.Equal(t, []uint16{0x0e4c, 0x0e51, 0x0e3f}, rep.Readings)
}

func TestDecodeReportMissingTerminator(t *testing.T) {
	cmd := QueryCommand("#bat1", QuestionVoltage)
	_, err := DecodeReport(cmd, []byte("#bat1?v 0010 0e4c"))
	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Reason, "terminator")
}

func TestDecodeReportEchoMismatch(t *testing.T) {
	cmd := QueryCommand("#bat1", QuestionVoltage)
	_, err := DecodeReport(cmd, []byte("#bat2?v 0010 0e4c"+ReportTerminator))
	var fe *FrameError
	require.ErrorAs(t, err, &fe)
}

func TestDecodeReportBadField(t *testing.T) {
	cmd := QueryCommand("#bat3", QuestionCurrent)
	for _, payload := range []string{
		"#bat3?i 0010 zz4c" + ReportTerminator, // not hex
		"#bat3?i 0010 e4c" + ReportTerminator,  // wrong width
		"#bat3?i 0010" + ReportTerminator,      // no readings
	} {
		_, err := DecodeReport(cmd, []byte(payload))
		var fe *FrameError
		require.ErrorAs(t, err, &fe, "payload=%q", payload)
	}
}

func TestDecodeAck(t *testing.T) {
	cmd := LoadCommand("#ada", "!p2", false)
	require.NoError(t, DecodeAck(cmd, []byte("#ada!p2-x")))

	err := DecodeAck(cmd, []byte("#ada!p2+x"))
	var fe *FrameError
	require.ErrorAs(t, err, &fe)
}

func TestConvertReading(t *testing.T) {
	assert.InDelta(t, 3.66, ConvertReading(QuestionVoltage, 3660), 1e-9)
	assert.InDelta(t, 250, ConvertReading(QuestionCurrent, 250), 1e-9)
	assert.InDelta(t, -1000, ConvertReading(QuestionCurrent, 64536), 1e-9)
	assert.InDelta(t, 21.85, ConvertReading(QuestionTemperature, 2950), 1e-9)
	assert.InDelta(t, 87, ConvertReading(QuestionCharge, 87), 1e-9)
}

func TestCalibrationRawConversion(t *testing.T) {
	cal := Calibration{
		VoltageGain:   0.00078141,
		VoltageOffset: -0.053842,
		CurrentGain:   0.00020677,
		CurrentOffset: 0.014475,
		MaxVoltage:    16,
		MaxCurrent:    4,
	}

	wantVoltage := (12.0 + 0.053842) / 0.00078141
	wantCurrent := (2.0 - 0.014475) / 0.00020677
	assert.Equal(t, int(wantVoltage), cal.RawVoltage(12.0))
	assert.Equal(t, int(wantCurrent), cal.RawCurrent(2.0))

	// Targets below the offset clamp to zero rather than going negative.
	assert.Equal(t, 0, cal.RawCurrent(0.0))
}

func TestNewSnapshotMergesReports(t *testing.T) {
	reports := map[Question]*Report{
		QuestionVoltage: {Latency: 2, Readings: []uint16{3660, 3700}},
		QuestionCurrent: {Latency: 5, Readings: []uint16{250, 64536}},
	}

	snap := NewSnapshot(DevicePayload, testTime(t), reports)
	assert.Equal(t, DevicePayload, snap.Device)
	assert.Equal(t, 5, snap.Latency)
	assert.InDelta(t, 250-1000, snap.AggregateCurrent, 1e-9)
	assert.Len(t, snap.Values[QuestionVoltage], 2)
}
