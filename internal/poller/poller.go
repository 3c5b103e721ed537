// internal/poller/poller.go
package poller

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/glidertools/sailbus/internal/registry"
	"github.com/glidertools/sailbus/internal/sail"
)

// Exchanger is the routine lane of the bus-access queue. Scheduled polls
// yield to urgent dispatcher traffic.
type Exchanger interface {
	Routine(ctx context.Context, frame []byte, timeout time.Duration) ([]byte, error)
	Connected() bool
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	// Questions asked per poll, in order. Defaults to the full scan set.
	Questions []sail.Question

	// Timeout applies per exchange. Mandatory and finite: one unresponsive
	// pack must not freeze the rest of the system.
	Timeout time.Duration
}

// Poller drives periodic state acquisition per device according to each
// device's configured scan interval. Per device the cycle is
// Idle -> Scheduled -> Requesting -> (Updated | Failed) -> Scheduled, where
// Idle means no scan interval is set and the device is never asked.
type Poller struct {
	reg    *registry.Registry
	bus    Exchanger
	cfg    Config
	logger *log.Logger

	nextDue map[sail.DeviceID]time.Time
	resched chan struct{}
}

func New(reg *registry.Registry, bus Exchanger, cfg Config, logger *log.Logger) (*Poller, error) {
	if reg == nil || bus == nil {
		return nil, fmt.Errorf("poller: registry and bus required")
	}
	if len(cfg.Questions) == 0 {
		cfg.Questions = sail.DefaultQuestions
	}
	for _, q := range cfg.Questions {
		if !q.Valid() {
			return nil, fmt.Errorf("poller: unknown question %q", q)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		reg:     reg,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		nextDue: make(map[sail.DeviceID]time.Time),
		resched: make(chan struct{}, 1),
	}, nil
}

// Reschedule tells a running poller that a scan interval changed. Non
// blocking; coalesces with any pending notification.
func (p *Poller) Reschedule() {
	select {
	case p.resched <- struct{}{}:
	default:
	}
}

// PollDevice performs exactly one poll of one device: every configured
// question is asked in order and the decoded reports merge into a single
// snapshot. Any failed exchange fails the whole poll.
func (p *Poller) PollDevice(ctx context.Context, id sail.DeviceID) (*sail.Snapshot, error) {
	dev, err := p.reg.Lookup(id)
	if err != nil {
		return nil, err
	}
	if dev.Capability != sail.CapBatteryPack {
		return nil, fmt.Errorf("poller: %q: %w", id, sail.ErrInvalidDevice)
	}

	reports := make(map[sail.Question]*sail.Report, len(p.cfg.Questions))
	for _, q := range p.cfg.Questions {
		cmd := sail.QueryCommand(dev.Address, q)
		frame, err := sail.Encode(cmd)
		if err != nil {
			return nil, err
		}

		resp, err := p.bus.Routine(ctx, frame, p.cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("poller: %s %s: %w", id, q, err)
		}

		rep, err := sail.DecodeReport(cmd, resp)
		if err != nil {
			return nil, fmt.Errorf("poller: %s %s: %w", id, q, err)
		}
		reports[q] = rep
	}

	return sail.NewSnapshot(id, time.Now(), reports), nil
}

// pollDue polls every device whose scan interval has elapsed, in
// registration order, and returns the earliest upcoming due time. A failed
// poll is logged and rescheduled; it never delays or skips the devices
// after it.
func (p *Poller) pollDue(ctx context.Context, now time.Time) time.Time {
	var next time.Time

	for _, id := range p.reg.Ordered() {
		interval := p.reg.ScanInterval(id)
		if interval <= 0 {
			continue // Idle: never request
		}
		if dev, err := p.reg.Lookup(id); err != nil || dev.Capability != sail.CapBatteryPack {
			continue // supplies are command-only
		}

		due, known := p.nextDue[id]
		if !known {
			due = now
		}

		if !due.After(now) {
			snap, err := p.PollDevice(ctx, id)
			if err != nil {
				p.logger.Printf("poll failed: %v", err)
			} else if err := p.reg.UpdateState(id, snap); err != nil {
				p.logger.Printf("state update failed for %s: %v", id, err)
			}
			due = time.Now().Add(interval)
			p.nextDue[id] = due
		}

		if next.IsZero() || due.Before(next) {
			next = due
		}
	}

	return next
}
