package framereader

import (
	"encoding/binary"

	"github.com/angelzd27/api-ruptela/internal/checksum"
	"github.com/angelzd27/api-ruptela/internal/protocol"
)

const ruptelaMinHeader = 8

// Ruptela reassembles length-prefixed Ruptela FMB/Pro5/ECO5 frames: no
// start/end markers, a 2-byte big-endian declared length, trailing
// CRC-16/Kermit.
type Ruptela struct {
	buf []byte
}

// NewRuptela constructs an empty Ruptela frame reader.
func NewRuptela() *Ruptela {
	return &Ruptela{}
}

func (r *Ruptela) Push(data []byte) {
	r.buf = append(r.buf, data...)
}

func (r *Ruptela) Next() (*protocol.Frame, error) {
	if len(r.buf) < ruptelaMinHeader {
		return nil, nil
	}

	declared := int(binary.BigEndian.Uint16(r.buf[0:2]))
	total := declared + 4 // length field(2) + L + CRC16(2)

	if len(r.buf) < total {
		if total > maxBufferedBytes {
			r.buf = nil
			return nil, protocol.NewFramingError("ruptela frame exceeds safety ceiling, buffer reset")
		}
		return nil, nil
	}

	frame := r.buf[:total]
	crcEnd := total - 2
	declaredCRC := binary.BigEndian.Uint16(frame[crcEnd:total])
	computed := checksum.Ruptela(frame[2:crcEnd])

	r.buf = r.buf[total:]

	if computed != declaredCRC {
		return nil, protocol.NewFramingError("ruptela checksum mismatch")
	}

	out := &protocol.Frame{
		Family:  protocol.FamilyRuptela,
		Raw:     append([]byte(nil), frame...),
		Payload: append([]byte(nil), frame[2:crcEnd]...),
	}
	return out, nil
}
