// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/glidertools/sailbus/internal/registry"
	"github.com/glidertools/sailbus/internal/sail"
)

// Submitter is the urgent lane of the bus-access queue. Dispatcher traffic
// always goes ahead of the next scheduled poll so safety commands are never
// starved behind a poll cycle.
type Submitter interface {
	Urgent(ctx context.Context, frame []byte, timeout time.Duration) ([]byte, error)
	Connected() bool
}

// Rescheduler lets the dispatcher tell the poller a scan interval changed.
type Rescheduler interface {
	Reschedule()
}

// Dispatcher turns intents into safe, well-formed commands and submits them.
// It owns the two documented safety invariants:
//
//  1. Supply output is forced to zero while any discharge path is active;
//     charge and discharge are never commanded simultaneously.
//  2. Relays never switch while a supply is live; a recharge-off is issued
//     and acknowledged first.
type Dispatcher struct {
	reg     *registry.Registry
	bus     Submitter
	poller  Rescheduler
	timeout time.Duration
	logger  *log.Logger
}

func New(reg *registry.Registry, bus Submitter, poller Rescheduler, timeout time.Duration, logger *log.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{reg: reg, bus: bus, poller: poller, timeout: timeout, logger: logger}
}

// send encodes, submits on the urgent lane, and verifies the acknowledgment.
func (d *Dispatcher) send(ctx context.Context, cmd sail.Command) error {
	frame, err := sail.Encode(cmd)
	if err != nil {
		return err
	}
	resp, err := d.bus.Urgent(ctx, frame, d.timeout)
	if err != nil {
		return err
	}
	return sail.DecodeAck(cmd, resp)
}

func (d *Dispatcher) requireConnected() error {
	if !d.bus.Connected() {
		return sail.ErrNotConnected
	}
	return nil
}

// SetPower commands a supply's voltage and current. Requested values are
// clamped at zero; if the registry shows any active discharge path the
// command is corrected to zero output rather than rejected, matching the
// documented forced-to-zero behaviour.
func (d *Dispatcher) SetPower(ctx context.Context, id sail.DeviceID, current, voltage float64) error {
	if err := d.requireConnected(); err != nil {
		return err
	}

	dev, err := d.reg.Lookup(id)
	if err != nil {
		return err
	}
	if dev.Capability != sail.CapPowerSupply {
		return fmt.Errorf("dispatch: %q: %w", id, sail.ErrInvalidDevice)
	}

	if current < 0 {
		current = 0
	}
	if voltage < 0 {
		voltage = 0
	}

	if d.reg.DischargeActive() {
		if current != 0 || voltage != 0 {
			d.logger.Printf("discharge path active, forcing %s output to zero (requested %.2fV %.2fA)", id, voltage, current)
		}
		current, voltage = 0, 0
	}

	if voltage > dev.Calibration.MaxVoltage || current > dev.Calibration.MaxCurrent {
		d.logger.Printf("warning: high output commanded on %s (%.2fV %.2fA)", id, voltage, current)
	}

	vCmd := sail.ValueCommand(dev.Address, dev.Channels.Voltage, dev.Calibration.RawVoltage(voltage))
	if err := d.send(ctx, vCmd); err != nil {
		return err
	}
	iCmd := sail.ValueCommand(dev.Address, dev.Channels.Current, dev.Calibration.RawCurrent(current))
	if err := d.send(ctx, iCmd); err != nil {
		return err
	}

	return d.reg.SetCommandedOutput(id, voltage, current)
}

// SetRelay switches one relay of a battery pack. If any supply is actively
// supplying, an acknowledged recharge-off precedes the relay change; relays
// are never switched while power is live.
func (d *Dispatcher) SetRelay(ctx context.Context, id sail.DeviceID, relay int, on bool) error {
	if err := d.requireConnected(); err != nil {
		return err
	}

	dev, err := d.reg.Lookup(id)
	if err != nil {
		return err
	}
	if dev.Capability != sail.CapBatteryPack {
		return fmt.Errorf("dispatch: %q: %w", id, sail.ErrInvalidDevice)
	}
	if relay < 1 || relay > dev.BatteryCount {
		return fmt.Errorf("dispatch: relay %d on %q (%d batteries): %w", relay, id, dev.BatteryCount, sail.ErrInvalidRelay)
	}

	for _, supply := range d.reg.Supplies() {
		v, i, err := d.reg.CommandedOutput(supply.ID)
		if err != nil {
			return err
		}
		if v != 0 || i != 0 {
			d.logger.Printf("supply %s live (%.2fV %.2fA), recharge-off before relay change", supply.ID, v, i)
			if err := d.RechargeOff(ctx, supply.ID); err != nil {
				return err
			}
		}
	}

	relays, err := d.reg.Relays(id)
	if err != nil {
		return err
	}
	relays[relay-1] = on

	if err := d.send(ctx, sail.RelayCommand(dev.Address, relays)); err != nil {
		return err
	}
	return d.reg.SetRelays(id, relays)
}

// SetScanTime validates and stores the scan interval, transmits the scan
// command to the pack, and retunes the poll schedule.
func (d *Dispatcher) SetScanTime(ctx context.Context, id sail.DeviceID, seconds int) error {
	if err := d.requireConnected(); err != nil {
		return err
	}

	dev, err := d.reg.Lookup(id)
	if err != nil {
		return err
	}
	if dev.Capability != sail.CapBatteryPack {
		return fmt.Errorf("dispatch: %q: %w", id, sail.ErrInvalidDevice)
	}

	if err := d.reg.SetScanInterval(id, seconds); err != nil {
		return err
	}

	if err := d.send(ctx, sail.ScanTimeCommand(dev.Address, seconds)); err != nil {
		return err
	}

	if d.poller != nil {
		d.poller.Reschedule()
	}
	return nil
}

// RechargeOff unconditionally zeroes a supply's voltage and current and
// switches its discharge load off. Always permitted while connected.
func (d *Dispatcher) RechargeOff(ctx context.Context, id sail.DeviceID) error {
	if err := d.requireConnected(); err != nil {
		return err
	}

	dev, err := d.reg.Lookup(id)
	if err != nil {
		return err
	}
	if dev.Capability != sail.CapPowerSupply {
		return fmt.Errorf("dispatch: %q: %w", id, sail.ErrInvalidDevice)
	}

	zeroV := sail.ValueCommand(dev.Address, dev.Channels.Voltage, dev.Calibration.RawVoltage(0))
	if err := d.send(ctx, zeroV); err != nil {
		return err
	}
	zeroI := sail.ValueCommand(dev.Address, dev.Channels.Current, dev.Calibration.RawCurrent(0))
	if err := d.send(ctx, zeroI); err != nil {
		return err
	}
	if dev.Channels.Load != "" {
		if err := d.send(ctx, sail.LoadCommand(dev.Address, dev.Channels.Load, false)); err != nil {
			return err
		}
		if err := d.reg.SetLoad(id, false); err != nil {
			return err
		}
	}

	d.logger.Printf("recharge off sent to %s", id)
	return d.reg.SetCommandedOutput(id, 0, 0)
}

// SetLoad switches a supply's discharge load. Turning a load on while the
// supply is live first zeroes the output, same rule as relays.
func (d *Dispatcher) SetLoad(ctx context.Context, id sail.DeviceID, on bool) error {
	if err := d.requireConnected(); err != nil {
		return err
	}

	dev, err := d.reg.Lookup(id)
	if err != nil {
		return err
	}
	if dev.Capability != sail.CapPowerSupply || dev.Channels.Load == "" {
		return fmt.Errorf("dispatch: %q: %w", id, sail.ErrInvalidDevice)
	}

	if on {
		v, i, err := d.reg.CommandedOutput(id)
		if err != nil {
			return err
		}
		if v != 0 || i != 0 {
			if err := d.RechargeOff(ctx, id); err != nil {
				return err
			}
		}
	}

	if err := d.send(ctx, sail.LoadCommand(dev.Address, dev.Channels.Load, on)); err != nil {
		return err
	}
	return d.reg.SetLoad(id, on)
}
