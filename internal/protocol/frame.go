// Package protocol holds the wire-level types shared by the Ruptela and
// Jimi frame codecs: the raw Frame, the decoded message union, and the
// error taxonomy the Frame Reader and Frame Codec report through.
package protocol

// Family identifies which tracker protocol family a port or connection
// speaks.
type Family int

const (
	FamilyRuptela Family = iota
	FamilyJimi
	FamilyBypass
)

func (f Family) String() string {
	switch f {
	case FamilyRuptela:
		return "ruptela"
	case FamilyJimi:
		return "jimi"
	case FamilyBypass:
		return "bypass"
	default:
		return "unknown"
	}
}

// Frame is one length-delimited on-wire message, already extracted from
// the byte stream and checksum-validated.
type Frame struct {
	Family  Family
	Raw     []byte // the complete frame, markers included
	Payload []byte // the command/record payload, markers and trailers stripped
}

// FramingError reports a problem found while reassembling frames from the
// raw byte stream: a bad marker, an inconsistent declared length, or a
// checksum mismatch. Recoverable framing errors discard the offending
// frame (or, past the safety ceiling, the whole buffer) but leave the
// connection open. The frame readers only produce recoverable errors.
type FramingError struct {
	Reason      string
	Recoverable bool
}

func (e *FramingError) Error() string { return e.Reason }

// NewFramingError builds a recoverable framing error.
func NewFramingError(reason string) *FramingError {
	return &FramingError{Reason: reason, Recoverable: true}
}

// DecodeError reports a payload that was shorter than required for the
// variant dispatched to. Decode errors never abort the connection: the
// server logs the error and drops the frame. The message is not
// downgraded to Unknown and no ACK is sent for it.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return e.Reason }
