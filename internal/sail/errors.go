// internal/sail/errors.go
package sail

import (
	"errors"
	"fmt"
)

// Error taxonomy for the whole core. Callers match with errors.Is/As;
// nothing below is retried implicitly.
var (
	// Connection lifecycle.
	ErrPortUnavailable = errors.New("sail: serial port unavailable")
	ErrNotConnected    = errors.New("sail: not connected to serial bus")
	ErrConnectionLost  = errors.New("sail: connection to serial bus lost")

	// Exchange discipline.
	ErrBusBusy = errors.New("sail: exchange already in flight")
	ErrTimeout = errors.New("sail: no response within deadline")

	// Caller misuse.
	ErrUnknownDevice    = errors.New("sail: unknown device")
	ErrDuplicateAddress = errors.New("sail: bus address already bound")
	ErrInvalidDevice    = errors.New("sail: operation not valid for device capability")
	ErrInvalidRelay     = errors.New("sail: relay index out of range")
	ErrInvalidInterval  = errors.New("sail: scan interval must be positive")
)

// FrameError reports a response frame that could not be decoded.
// Malformed wire data is always surfaced, never silently corrected.
type FrameError struct {
	Reason string
	Frame  []byte
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("sail: bad frame (%s): %q", e.Reason, e.Frame)
}

// EncodeError reports a command whose parameters fall outside the grammar.
type EncodeError struct {
	Reason string
}

func (e *EncodeError) Error() string {
	return "sail: cannot encode command: " + e.Reason
}
