package codec

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/angelzd27/api-ruptela/internal/checksum"
	"github.com/angelzd27/api-ruptela/internal/protocol"
)

const (
	ruptelaCmdRecords       = 1
	ruptelaCmdIdentify      = 15
	ruptelaCmdHeartbeat     = 16
	ruptelaCmdDynIdentify   = 18
	ruptelaCmdRecordsExt    = 68
)

// Ruptela decodes and encodes Ruptela FMB/Pro5/ECO5 frames. It has no
// configuration: unlike Jimi there is no hemisphere ambiguity, the wire
// coordinates are always signed 1e-7 degree integers.
type Ruptela struct{}

// NewRuptela builds a Ruptela codec.
func NewRuptela() *Ruptela { return &Ruptela{} }

// Decode implements protocol.Codec for the Ruptela family.
// frame.Payload is [imei(8), commandID(1), body...].
func (c *Ruptela) Decode(frame *protocol.Frame) (protocol.DecodedMessage, error) {
	p := frame.Payload
	if len(p) < 9 {
		return nil, &protocol.DecodeError{Reason: "ruptela payload too short"}
	}

	imei := imeiDecimal(p[0:8])
	cmd := p[8]
	body := p[9:]

	switch cmd {
	case ruptelaCmdRecords, ruptelaCmdRecordsExt:
		return decodeRecords(imei, cmd, body)
	case ruptelaCmdIdentify, ruptelaCmdDynIdentify:
		return protocol.Identification{IMEI: imei, CommandID: cmd}, nil
	case ruptelaCmdHeartbeat:
		return protocol.Heartbeat{Protocol: protocol.FamilyRuptela}, nil
	default:
		return protocol.Unknown{
			Protocol: protocol.FamilyRuptela,
			Command:  cmd,
			Payload:  append([]byte(nil), body...),
		}, nil
	}
}

func imeiDecimal(b []byte) string {
	var v uint64
	for _, byt := range b {
		v = v<<8 | uint64(byt)
	}
	return strconv.FormatUint(v, 10)
}

func decodeRecords(imei string, cmd uint8, body []byte) (protocol.DecodedMessage, error) {
	if len(body) < 2 {
		return nil, &protocol.DecodeError{Reason: "records payload too short for header"}
	}
	recordsLeft := body[0]
	numRecords := int(body[1])
	body = body[2:]

	ext := cmd == ruptelaCmdRecordsExt
	records := make([]protocol.Record, 0, numRecords)

	for i := 0; i < numRecords; i++ {
		rec, consumed, ok := decodeOneRecord(body, ext)
		if !ok {
			// Preserve already-parsed records and stop, per spec.md
			// §4.2's "if a section overruns the payload, preserve
			// already-parsed elements and stop".
			break
		}
		records = append(records, rec)
		body = body[consumed:]
	}

	return protocol.Records{
		IMEI:        imei,
		CommandID:   cmd,
		Records:     records,
		RecordsLeft: recordsLeft,
	}, nil
}

// decodeOneRecord decodes a single Ruptela telemetry record. It returns
// ok=false if the fixed header doesn't fit in body; once inside the
// variable IO sections it preserves whatever it already parsed and
// returns ok=true with consumed capped to what was actually read.
func decodeOneRecord(body []byte, ext bool) (protocol.Record, int, bool) {
	headerLen := 23
	if ext {
		headerLen = 25
	}
	if len(body) < headerLen {
		return protocol.Record{}, 0, false
	}

	off := 0
	readU32 := func() uint32 { v := binary.BigEndian.Uint32(body[off : off+4]); off += 4; return v }
	readI32 := func() int32 { return int32(readU32()) }
	readU16 := func() uint16 { v := binary.BigEndian.Uint16(body[off : off+2]); off += 2; return v }
	readU8 := func() uint8 { v := body[off]; off++; return v }

	tsSec := readU32()
	_ = readU8() // timestamp extension
	if ext {
		_ = readU8() // record extension
	}
	priority := readU8()
	lon := float64(readI32()) / 1e7
	lat := float64(readI32()) / 1e7
	altitude := float64(readU16()) / 10.0
	course := float64(readU16()) / 100.0
	satellites := readU8()
	speed := readU16()
	hdop := float64(readU8()) / 10.0

	var eventID uint16
	if ext {
		eventID = readU16()
	} else {
		eventID = uint16(readU8())
	}

	rec := protocol.Record{
		Timestamp:  time.Unix(int64(tsSec), 0).UTC(),
		Priority:   priority,
		Lat:        lat,
		Lon:        lon,
		Altitude:   altitude,
		Course:     course,
		Satellites: satellites,
		Speed:      speed,
		HDOP:       hdop,
		EventID:    eventID,
		IOElements: map[int]map[int]int64{},
	}

	widths := []int{1, 2, 4, 8}
	for _, width := range widths {
		if off >= len(body) {
			return rec, off, true
		}
		count := int(body[off])
		off++
		idWidth := 1
		if ext {
			idWidth = 2
		}
		section := map[int]int64{}
		for j := 0; j < count; j++ {
			if off+idWidth+width > len(body) {
				rec.IOElements[width] = section
				return rec, off, true
			}
			var id int
			if idWidth == 2 {
				id = int(binary.BigEndian.Uint16(body[off : off+2]))
			} else {
				id = int(body[off])
			}
			off += idWidth

			var val int64
			switch width {
			case 1:
				val = int64(body[off])
			case 2:
				val = int64(binary.BigEndian.Uint16(body[off : off+2]))
			case 4:
				val = int64(binary.BigEndian.Uint32(body[off : off+4]))
			case 8:
				u := binary.BigEndian.Uint64(body[off : off+width])
				if u > uint64(1<<63-1) {
					val = int64(1<<63 - 1)
				} else {
					val = int64(u)
				}
			}
			off += width
			section[id] = val
		}
		rec.IOElements[width] = section
	}

	return rec, off, true
}

// EncodeRecordsAck produces the 6-byte Records ACK: length=2, response
// command 100, ack 1 (positive) or 0 (negative), CRC16 over the two
// inner bytes.
func EncodeRecordsAck(positive bool) []byte {
	ackByte := byte(0)
	if positive {
		ackByte = 1
	}
	return encodeRuptelaAck(100, []byte{ackByte})
}

// EncodeIdentificationAck produces the Identification ACK: command 115,
// payload 0x01 when authorized, or 0x02 + delayMinutes when rejected
// with a backoff.
func EncodeIdentificationAck(authorized bool, delayMinutes uint8) []byte {
	if authorized {
		return encodeRuptelaAck(115, []byte{0x01})
	}
	return encodeRuptelaAck(115, []byte{0x02, delayMinutes})
}

// EncodeRuptelaHeartbeatAck produces the Heartbeat ACK: command 116,
// payload 0x01.
func EncodeRuptelaHeartbeatAck() []byte {
	return encodeRuptelaAck(116, []byte{0x01})
}

func encodeRuptelaAck(respCmd uint8, payload []byte) []byte {
	inner := append([]byte{respCmd}, payload...)
	out := make([]byte, 2+len(inner)+2)
	binary.BigEndian.PutUint16(out[0:2], uint16(len(inner)))
	copy(out[2:2+len(inner)], inner)
	crc := checksum.Ruptela(out[2 : 2+len(inner)])
	binary.BigEndian.PutUint16(out[2+len(inner):], crc)
	return out
}
