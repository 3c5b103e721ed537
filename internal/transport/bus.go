// internal/transport/bus.go
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"

	"github.com/glidertools/sailbus/internal/sail"
)

// Config is the serial link configuration. The SAIL bus runs fixed-format
// ASCII at a fixed rate; only the port path varies between hosts.
type Config struct {
	Port string
	Baud int

	// Settle is how long the line must stay quiet after an echo before the
	// buffered bytes are returned as an acknowledgment. It doubles as the
	// poll granularity of the read loop.
	Settle time.Duration
}

// Bus owns the physical connection and enforces the half-duplex
// request/response discipline: at most one exchange in flight, mandatory
// finite timeouts, no silent retries.
type Bus struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	settle time.Duration

	// busy is the in-flight guard; a second exchange is rejected, never
	// queued here. Queueing is the Queue's job.
	busy atomic.Bool
}

// Connect opens the named serial port. No connection exists before this
// call; the port is released by Disconnect on all exit paths.
func Connect(cfg Config) (*Bus, error) {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 100 * time.Millisecond
	}

	port, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.Baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.Settle,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sail.ErrPortUnavailable, cfg.Port, err)
	}

	return New(port, cfg.Settle), nil
}

// New wraps an already-open port. Tests inject fakes here.
func New(port io.ReadWriteCloser, settle time.Duration) *Bus {
	if settle <= 0 {
		settle = 100 * time.Millisecond
	}
	return &Bus{port: port, settle: settle}
}

// Connected reports whether the bus currently holds an open port.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port != nil
}

// Disconnect releases the underlying port. Safe to call twice.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

// SendAndWait transmits one frame and blocks until a complete response
// arrives or the deadline passes. A response is complete when it carries the
// report terminator, or when the command echo has been received and the line
// has settled (set-commands are acknowledged by echo only).
//
// Exactly one exchange may be in flight; a concurrent call fails with
// ErrBusBusy. A timeout leaves the bus usable for the next call.
func (b *Bus) SendAndWait(frame []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("transport: timeout is mandatory and must be positive")
	}

	b.mu.Lock()
	port := b.port
	b.mu.Unlock()
	if port == nil {
		return nil, sail.ErrNotConnected
	}

	if !b.busy.CompareAndSwap(false, true) {
		return nil, sail.ErrBusBusy
	}
	defer b.busy.Store(false)

	drain(port)

	n, err := port.Write(frame)
	if err != nil {
		b.markLost()
		return nil, fmt.Errorf("%w: write: %v", sail.ErrConnectionLost, err)
	}
	if n != len(frame) {
		b.markLost()
		return nil, fmt.Errorf("%w: short write (%d of %d bytes)", sail.ErrConnectionLost, n, len(frame))
	}

	deadline := time.Now().Add(timeout)
	var buf bytes.Buffer
	var lastData time.Time
	tmp := make([]byte, 64)

	for {
		n, err := port.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
			lastData = time.Now()

			if bytes.HasSuffix(buf.Bytes(), []byte(sail.ReportTerminator)) {
				return buf.Bytes(), nil
			}
		}
		if err != nil && !isReadTimeout(err) {
			b.markLost()
			return nil, fmt.Errorf("%w: read: %v", sail.ErrConnectionLost, err)
		}

		// Echo received and line quiet: acknowledgment.
		if buf.Len() >= len(frame) && !lastData.IsZero() && time.Since(lastData) >= b.settle {
			return buf.Bytes(), nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w after %s", sail.ErrTimeout, timeout)
		}
	}
}

// markLost releases the port after a hard IO fault. Pending operations see
// the connection error; scheduling halts until a reconnect is explicitly
// requested by building a new Bus.
func (b *Bus) markLost() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port != nil {
		_ = b.port.Close()
		b.port = nil
	}
}

// drain discards stale bytes left over from a previous exchange so they do
// not mix into the next response.
func drain(port io.Reader) {
	tmp := make([]byte, 256)
	for {
		n, err := port.Read(tmp)
		if n == 0 || err != nil {
			return
		}
	}
}

func isReadTimeout(err error) bool {
	return errors.Is(err, serial.ErrTimeout)
}
