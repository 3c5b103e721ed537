// internal/sail/frame.go
package sail

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Wire grammar constants. The SAIL bus speaks ASCII: every command starts
// with the device address token and ends with a kind-specific terminator.
const (
	executeSuffix = "x"
	scanPrefix    = "!s"
	scanSuffix    = "_"
	relayPrefix   = "!rb"
	loadOnSuffix  = "+x"
	loadOffSuffix = "-x"

	// Reports end with CR LF ETX.
	ReportTerminator = "\r\n\x03"

	// Relay commands always carry ten bits, comma after the fifth.
	RelayBits  = 10
	relayGroup = 5

	// Report payload groups are fixed-width hex.
	hexFieldLen = 4
	maxRawValue = 0xffff
)

// CommandKind selects the frame shape.
type CommandKind int

const (
	KindQuery CommandKind = iota
	KindSetScanTime
	KindSetRelays
	KindSetValue
	KindSetLoad
)

// Command is one request addressed to exactly one device. Built by the
// dispatcher or poller, encoded once, then discarded.
type Command struct {
	Kind    CommandKind
	Address string

	Question    Question // KindQuery
	ScanSeconds int      // KindSetScanTime
	Relays      []bool   // KindSetRelays, always RelayBits long
	Channel     string   // KindSetValue, KindSetLoad
	Raw         int      // KindSetValue, calibrated channel counts
	On          bool     // KindSetLoad
}

// ---- CONSTRUCTORS ----

func QueryCommand(address string, q Question) Command {
	return Command{Kind: KindQuery, Address: address, Question: q}
}

func ScanTimeCommand(address string, seconds int) Command {
	return Command{Kind: KindSetScanTime, Address: address, ScanSeconds: seconds}
}

func RelayCommand(address string, relays []bool) Command {
	return Command{Kind: KindSetRelays, Address: address, Relays: relays}
}

func ValueCommand(address, channel string, raw int) Command {
	return Command{Kind: KindSetValue, Address: address, Channel: channel, Raw: raw}
}

func LoadCommand(address, channel string, on bool) Command {
	return Command{Kind: KindSetLoad, Address: address, Channel: channel, On: on}
}

// ---- ENCODE ----

// Encode renders a command to wire bytes. Pure. No IO.
func Encode(c Command) ([]byte, error) {
	if c.Address == "" {
		return nil, &EncodeError{Reason: "empty device address"}
	}

	var b strings.Builder
	b.WriteString(c.Address)

	switch c.Kind {
	case KindQuery:
		if !c.Question.Valid() {
			return nil, &EncodeError{Reason: fmt.Sprintf("unknown question %q", c.Question)}
		}
		b.WriteString(string(c.Question))

	case KindSetScanTime:
		if c.ScanSeconds <= 0 {
			return nil, &EncodeError{Reason: "scan time must be positive"}
		}
		b.WriteString(scanPrefix)
		b.WriteString(strconv.FormatInt(int64(c.ScanSeconds), 16))
		b.WriteString(scanSuffix)

	case KindSetRelays:
		if len(c.Relays) != RelayBits {
			return nil, &EncodeError{Reason: fmt.Sprintf("relay command needs %d bits, got %d", RelayBits, len(c.Relays))}
		}
		b.WriteString(relayPrefix)
		for i, on := range c.Relays {
			if on {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
			if i+1 == relayGroup {
				b.WriteByte(',')
			}
		}
		b.WriteString(executeSuffix)

	case KindSetValue:
		if c.Channel == "" {
			return nil, &EncodeError{Reason: "value command needs a channel"}
		}
		if c.Raw < 0 || c.Raw > maxRawValue {
			return nil, &EncodeError{Reason: fmt.Sprintf("raw value %d out of range", c.Raw)}
		}
		b.WriteString(c.Channel)
		b.WriteString(strconv.FormatInt(int64(c.Raw), 16))
		b.WriteString(executeSuffix)

	case KindSetLoad:
		if c.Channel == "" {
			return nil, &EncodeError{Reason: "load command needs a channel"}
		}
		b.WriteString(c.Channel)
		if c.On {
			b.WriteString(loadOnSuffix)
		} else {
			b.WriteString(loadOffSuffix)
		}

	default:
		return nil, &EncodeError{Reason: fmt.Sprintf("unknown command kind %d", c.Kind)}
	}

	return []byte(b.String()), nil
}

// ---- DECODE ----

// Report is the decoded payload of one question response: the pack's
// self-reported latency followed by one raw reading per battery.
type Report struct {
	Latency  int
	Readings []uint16
}

// DecodeReport parses a complete response frame for the given query. The
// device echoes the command, then a separator, then space-delimited 4-digit
// hex groups (latency first), then the terminator. Pure. Deterministic.
func DecodeReport(c Command, frame []byte) (*Report, error) {
	echo, err := Encode(c)
	if err != nil {
		return nil, err
	}

	if !bytes.HasSuffix(frame, []byte(ReportTerminator)) {
		return nil, &FrameError{Reason: "missing terminator", Frame: frame}
	}
	body := frame[:len(frame)-len(ReportTerminator)]

	if !bytes.HasPrefix(body, echo) {
		return nil, &FrameError{Reason: "command echo mismatch", Frame: frame}
	}
	payload := strings.TrimSpace(string(body[len(echo):]))

	fields := strings.Fields(payload)
	if len(fields) < 2 {
		return nil, &FrameError{Reason: "payload too short", Frame: frame}
	}

	groups := make([]uint16, 0, len(fields))
	for _, f := range fields {
		if len(f) != hexFieldLen {
			return nil, &FrameError{Reason: fmt.Sprintf("field %q is not %d hex digits", f, hexFieldLen), Frame: frame}
		}
		v, err := strconv.ParseUint(f, 16, 16)
		if err != nil {
			return nil, &FrameError{Reason: fmt.Sprintf("field %q is not hex", f), Frame: frame}
		}
		groups = append(groups, uint16(v))
	}

	return &Report{
		Latency:  int(groups[0]),
		Readings: groups[1:],
	}, nil
}

// DecodeAck verifies the acknowledgment of a set-command. The bus echoes the
// command bytes back; anything else is a framing fault.
func DecodeAck(c Command, frame []byte) error {
	echo, err := Encode(c)
	if err != nil {
		return err
	}
	if !bytes.Equal(bytes.TrimSuffix(frame, []byte(ReportTerminator)), echo) {
		return &FrameError{Reason: "acknowledgment echo mismatch", Frame: frame}
	}
	return nil
}
