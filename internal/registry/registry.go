// internal/registry/registry.go
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/glidertools/sailbus/internal/sail"
)

// Device is one bus participant: its logical identity, wire binding, and
// last-known state. Created at registration, never destroyed in-session.
type Device struct {
	ID         sail.DeviceID
	Address    string
	Capability sail.Capability

	// Battery packs.
	BatteryCount int
	relays       []bool

	// Power supplies.
	Channels    sail.SupplyChannels
	Calibration sail.Calibration
	voltage     float64 // last commanded output
	current     float64
	loadOn      bool

	scanInterval time.Duration // 0 = polling disabled
	snapshot     *sail.Snapshot
}

// bindingKey identifies the wire resource a device occupies. Both supply
// banks legitimately share the #ada address token, so uniqueness is on
// (address, voltage channel) rather than address alone.
func bindingKey(address string, ch sail.SupplyChannels) string {
	return address + "|" + ch.Voltage
}

// Registry is the single owned lookup table from logical identifier to bus
// binding and live state. It replaces ambient per-widget state: presentation
// layers receive it explicitly and read snapshots from it.
type Registry struct {
	mu       sync.RWMutex
	devices  map[sail.DeviceID]*Device
	bindings map[string]sail.DeviceID
	order    []sail.DeviceID

	log  *SessionLog
	subs []func(sail.Snapshot)
}

func New() *Registry {
	return &Registry{
		devices:  make(map[sail.DeviceID]*Device),
		bindings: make(map[string]sail.DeviceID),
		log:      NewSessionLog(),
	}
}

// Register binds a logical identifier to a bus address. Registration order
// is the poll order.
func (r *Registry) Register(d Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.ID == "" || d.Address == "" {
		return fmt.Errorf("registry: device needs id and address")
	}
	if _, exists := r.devices[d.ID]; exists {
		return fmt.Errorf("registry: device %q already registered", d.ID)
	}

	key := bindingKey(d.Address, d.Channels)
	if owner, exists := r.bindings[key]; exists && owner != d.ID {
		return fmt.Errorf("registry: %q: %w (held by %q)", d.Address, sail.ErrDuplicateAddress, owner)
	}

	if d.Capability == sail.CapBatteryPack {
		d.relays = make([]bool, sail.RelayBits)
	}

	r.bindings[key] = d.ID
	r.devices[d.ID] = &d
	r.order = append(r.order, d.ID)
	return nil
}

// Resolve returns the bus address for a logical identifier.
func (r *Registry) Resolve(id sail.DeviceID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return "", fmt.Errorf("registry: %q: %w", id, sail.ErrUnknownDevice)
	}
	return d.Address, nil
}

// Lookup returns a copy of the device record.
func (r *Registry) Lookup(id sail.DeviceID) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return Device{}, fmt.Errorf("registry: %q: %w", id, sail.ErrUnknownDevice)
	}
	return *d, nil
}

// Ordered returns device ids in poll order, which is registration order.
func (r *Registry) Ordered() []sail.DeviceID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]sail.DeviceID, len(r.order))
	copy(out, r.order)
	return out
}

// UpdateState replaces the device's last-known snapshot, appends it to the
// session log, and notifies subscribers. Snapshots are superseded, never
// mutated.
func (r *Registry) UpdateState(id sail.DeviceID, snap *sail.Snapshot) error {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("registry: %q: %w", id, sail.ErrUnknownDevice)
	}
	d.snapshot = snap
	subs := make([]func(sail.Snapshot), len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	r.log.Append(*snap)
	for _, fn := range subs {
		fn(*snap)
	}
	return nil
}

// Snapshot returns the last-known state for a device, or nil when the device
// has not reported yet.
func (r *Registry) Snapshot(id sail.DeviceID) (*sail.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("registry: %q: %w", id, sail.ErrUnknownDevice)
	}
	return d.snapshot, nil
}

// SetScanInterval stores the per-device scan interval. Zero or negative
// intervals are rejected; polling is disabled by never setting one.
func (r *Registry) SetScanInterval(id sail.DeviceID, seconds int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("registry: %q: %w", id, sail.ErrUnknownDevice)
	}
	if seconds <= 0 {
		return fmt.Errorf("registry: %d: %w", seconds, sail.ErrInvalidInterval)
	}
	d.scanInterval = time.Duration(seconds) * time.Second
	return nil
}

// ScanInterval returns the configured interval, zero when polling is
// disabled for the device.
func (r *Registry) ScanInterval(id sail.DeviceID) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.devices[id]; ok {
		return d.scanInterval
	}
	return 0
}

// ---- COMMANDED STATE (written by the dispatcher) ----

// SetRelays records the commanded relay bits for a pack.
func (r *Registry) SetRelays(id sail.DeviceID, relays []bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("registry: %q: %w", id, sail.ErrUnknownDevice)
	}
	if d.Capability != sail.CapBatteryPack {
		return fmt.Errorf("registry: %q: %w", id, sail.ErrInvalidDevice)
	}
	d.relays = append([]bool(nil), relays...)
	return nil
}

// Relays returns the commanded relay bits for a pack.
func (r *Registry) Relays(id sail.DeviceID) ([]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("registry: %q: %w", id, sail.ErrUnknownDevice)
	}
	return append([]bool(nil), d.relays...), nil
}

// SetCommandedOutput records the voltage/current last sent to a supply.
func (r *Registry) SetCommandedOutput(id sail.DeviceID, voltage, current float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("registry: %q: %w", id, sail.ErrUnknownDevice)
	}
	d.voltage = voltage
	d.current = current
	return nil
}

// CommandedOutput returns the last commanded voltage/current for a supply.
func (r *Registry) CommandedOutput(id sail.DeviceID) (voltage, current float64, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return 0, 0, fmt.Errorf("registry: %q: %w", id, sail.ErrUnknownDevice)
	}
	return d.voltage, d.current, nil
}

// SetLoad records the commanded discharge-load state for a supply.
func (r *Registry) SetLoad(id sail.DeviceID, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("registry: %q: %w", id, sail.ErrUnknownDevice)
	}
	d.loadOn = on
	return nil
}

// DischargeActive reports whether any discharge path is live: a supply load
// switched on, or any pack relay closed. While this holds, supply output
// must be forced to zero.
func (r *Registry) DischargeActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.loadOn {
			return true
		}
		for _, on := range d.relays {
			if on {
				return true
			}
		}
	}
	return false
}

// Supplies returns the power-supply devices in registration order.
func (r *Registry) Supplies() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Device
	for _, id := range r.order {
		if d := r.devices[id]; d.Capability == sail.CapPowerSupply {
			out = append(out, *d)
		}
	}
	return out
}

// Subscribe registers a callback invoked for every accepted snapshot.
// Intended for presentation-boundary consumers (export, UI).
func (r *Registry) Subscribe(fn func(sail.Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// Log exposes the append-only session log.
func (r *Registry) Log() *SessionLog {
	return r.log
}
