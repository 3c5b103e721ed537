// internal/poller/poller_test.go
package poller

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glidertools/sailbus/internal/registry"
	"github.com/glidertools/sailbus/internal/sail"
)

// scriptBus answers every query with a well-formed report, except for
// addresses marked as failing, which time out.
type scriptBus struct {
	calls []string
	fail  map[string]bool
}

func (s *scriptBus) Routine(_ context.Context, frame []byte, _ time.Duration) ([]byte, error) {
	s.calls = append(s.calls, string(frame))
	addr := string(frame[:5]) // pack tokens are five bytes (#batN)
	if s.fail[addr] {
		return nil, sail.ErrTimeout
	}
	resp := string(frame) + " 0001 0e4c 0e51" + sail.ReportTerminator
	return []byte(resp), nil
}

func (s *scriptBus) Connected() bool { return true }

func pollerFixture(t *testing.T) (*Poller, *scriptBus, *registry.Registry) {
	t.Helper()

	reg := registry.New()
	for _, d := range []struct {
		id      sail.DeviceID
		address string
	}{
		{sail.DevicePitch, "#bat4"},
		{sail.DevicePayload, "#bat1"},
		{sail.DeviceAftLong, "#bat2"},
	} {
		require.NoError(t, reg.Register(registry.Device{
			ID: d.id, Address: d.address,
			Capability: sail.CapBatteryPack, BatteryCount: 8,
		}))
	}

	bus := &scriptBus{fail: map[string]bool{}}
	p, err := New(reg, bus, Config{
		Questions: []sail.Question{sail.QuestionVoltage},
		Timeout:   time.Second,
	}, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return p, bus, reg
}

func TestPollDevice(t *testing.T) {
	p, _, _ := pollerFixture(t)

	snap, err := p.PollDevice(context.Background(), sail.DevicePitch)
	require.NoError(t, err)
	assert.Equal(t, sail.DevicePitch, snap.Device)
	assert.Equal(t, 1, snap.Latency)
	assert.Equal(t, []float64{3.66, 3.67}, snap.Values[sail.QuestionVoltage])
}

func TestIdleDeviceNeverRequested(t *testing.T) {
	p, bus, reg := pollerFixture(t)

	// Only pitch has a scan interval; payload and aft-long stay Idle.
	require.NoError(t, reg.SetScanInterval(sail.DevicePitch, 1))

	p.pollDue(context.Background(), time.Now())

	require.Equal(t, []string{"#bat4?v"}, bus.calls)

	snap, err := reg.Snapshot(sail.DevicePayload)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRoundRobinRegistrationOrder(t *testing.T) {
	p, bus, reg := pollerFixture(t)

	for _, id := range []sail.DeviceID{sail.DevicePitch, sail.DevicePayload, sail.DeviceAftLong} {
		require.NoError(t, reg.SetScanInterval(id, 1))
	}

	p.pollDue(context.Background(), time.Now())
	require.Equal(t, []string{"#bat4?v", "#bat1?v", "#bat2?v"}, bus.calls)

	// Due again: same order repeats.
	bus.calls = nil
	p.nextDue = map[sail.DeviceID]time.Time{}
	p.pollDue(context.Background(), time.Now())
	require.Equal(t, []string{"#bat4?v", "#bat1?v", "#bat2?v"}, bus.calls)
}

func TestFailureIsIsolated(t *testing.T) {
	p, bus, reg := pollerFixture(t)

	for _, id := range []sail.DeviceID{sail.DevicePitch, sail.DevicePayload} {
		require.NoError(t, reg.SetScanInterval(id, 1))
	}
	bus.fail["#bat4"] = true // pitch times out

	p.pollDue(context.Background(), time.Now())

	// Payload is still polled right after the pitch failure.
	require.Equal(t, []string{"#bat4?v", "#bat1?v"}, bus.calls)

	pitchSnap, err := reg.Snapshot(sail.DevicePitch)
	require.NoError(t, err)
	assert.Nil(t, pitchSnap, "failed poll must not update state")

	paySnap, err := reg.Snapshot(sail.DevicePayload)
	require.NoError(t, err)
	require.NotNil(t, paySnap)

	// The failed device is rescheduled, not dropped.
	assert.False(t, p.nextDue[sail.DevicePitch].IsZero())
}

func TestPollFailureAppendsNothing(t *testing.T) {
	p, bus, reg := pollerFixture(t)
	require.NoError(t, reg.SetScanInterval(sail.DevicePitch, 1))
	bus.fail["#bat4"] = true

	p.pollDue(context.Background(), time.Now())
	assert.Zero(t, reg.Log().Len())
}

func TestPollRespectsInterval(t *testing.T) {
	p, bus, reg := pollerFixture(t)
	require.NoError(t, reg.SetScanInterval(sail.DevicePitch, 60))

	now := time.Now()
	next := p.pollDue(context.Background(), now)
	require.Len(t, bus.calls, 1)
	assert.InDelta(t, 60, time.Until(next).Seconds(), 1)

	// Not due yet: nothing is sent.
	p.pollDue(context.Background(), time.Now())
	require.Len(t, bus.calls, 1)
}

func TestRescheduleNeverBlocks(t *testing.T) {
	p, _, _ := pollerFixture(t)
	p.Reschedule()
	p.Reschedule() // coalesces with the pending notification
}

func TestNewRejectsUnknownQuestion(t *testing.T) {
	reg := registry.New()
	_, err := New(reg, &scriptBus{}, Config{Questions: []sail.Question{"?z"}}, nil)
	require.Error(t, err)
}
