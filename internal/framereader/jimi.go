// Package framereader implements the per-connection stream reassemblers
// for both tracker families: buffer raw bytes, locate frame boundaries,
// yield one complete, checksum-validated frame at a time.
package framereader

import (
	"encoding/binary"

	"github.com/angelzd27/api-ruptela/internal/checksum"
	"github.com/angelzd27/api-ruptela/internal/protocol"
)

// maxBufferedBytes is the safety ceiling: if this many bytes accumulate
// without yielding a parseable frame, the buffer is dropped as a soft
// reset rather than grown without bound.
const maxBufferedBytes = 10 * 1024

const (
	jimiStart1     = 0x7878
	jimiStart2     = 0x7979
	jimiEndMarker  = 0x0D0A
	jimiMinHeader  = 5
)

// Jimi reassembles GT06/JM-LL301 frames: 0x7878/0x7979-delimited,
// length-prefixed, CRC-ITU checksummed, 0x0D0A terminated.
type Jimi struct {
	buf []byte
}

// NewJimi constructs an empty Jimi frame reader.
func NewJimi() *Jimi {
	return &Jimi{}
}

func (r *Jimi) Push(data []byte) {
	r.buf = append(r.buf, data...)
}

func (r *Jimi) Next() (*protocol.Frame, error) {
	for {
		if len(r.buf) < jimiMinHeader {
			return nil, nil
		}

		start := binary.BigEndian.Uint16(r.buf[0:2])
		if start != jimiStart1 && start != jimiStart2 {
			// Resync by dropping the leading byte and looking again, so
			// garbage ahead of a frame is skipped one byte at a time; an
			// all-garbage buffer converges to empty rather than hanging.
			// Past the safety ceiling the whole buffer is dropped at once.
			// (A checksum failure below discards the whole frame instead.)
			if len(r.buf) > maxBufferedBytes {
				r.buf = nil
			} else {
				r.buf = r.buf[1:]
			}
			continue
		}

		// 0x7878 carries a 1-byte length, 0x7979 a 2-byte length.
		var declared int
		var headerLen int
		if start == jimiStart1 {
			if len(r.buf) < 3 {
				return nil, nil
			}
			declared = int(r.buf[2])
			headerLen = 3
		} else {
			if len(r.buf) < 4 {
				return nil, nil
			}
			declared = int(binary.BigEndian.Uint16(r.buf[2:4]))
			headerLen = 4
		}

		// Frame total size is always declared length + 5, regardless of
		// whether the length field itself was 1 or 2 bytes.
		total := declared + 5

		if len(r.buf) < total {
			if total > maxBufferedBytes {
				r.buf = nil
				return nil, protocol.NewFramingError("frame exceeds safety ceiling, buffer reset")
			}
			return nil, nil
		}

		frame := r.buf[:total]
		end := binary.BigEndian.Uint16(frame[total-2 : total])
		if end != jimiEndMarker {
			r.buf = r.buf[total:]
			return nil, protocol.NewFramingError("bad jimi end marker")
		}

		crcStart := 2
		crcEnd := total - 4
		declaredCRC := binary.BigEndian.Uint16(frame[crcEnd : crcEnd+2])
		computed := checksum.Jimi(frame[crcStart:crcEnd])

		r.buf = r.buf[total:]

		if computed != declaredCRC {
			return nil, protocol.NewFramingError("jimi checksum mismatch")
		}

		out := &protocol.Frame{
			Family:  protocol.FamilyJimi,
			Raw:     append([]byte(nil), frame...),
			Payload: append([]byte(nil), frame[headerLen:crcEnd]...),
		}
		return out, nil
	}
}
