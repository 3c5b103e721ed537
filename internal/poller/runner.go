// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run drives the schedule until the context is cancelled. One goroutine for
// all devices; exchanges are already serialized by the bus queue. Connection
// loss halts scheduling until the bus reports connected again.
func (p *Poller) Run(ctx context.Context) {
	const idleWake = time.Second

	for {
		wake := idleWake

		if p.bus.Connected() {
			next := p.pollDue(ctx, time.Now())
			if !next.IsZero() {
				if d := time.Until(next); d < wake {
					wake = d
				}
			}
		}
		if wake < 0 {
			wake = 0
		}

		timer := time.NewTimer(wake)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.resched:
			timer.Stop()
		case <-timer.C:
		}
	}
}
