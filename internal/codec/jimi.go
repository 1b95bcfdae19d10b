// Package codec implements the Ruptela and Jimi frame codecs: decoding a
// validated Frame into the canonical DecodedMessage union, and encoding
// the ACK/command frames sent back to devices.
package codec

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/angelzd27/api-ruptela/internal/checksum"
	"github.com/angelzd27/api-ruptela/internal/protocol"
)

const (
	jimiProtoLogin       = 0x01
	jimiProtoGPS2G       = 0x22
	jimiProtoGPS4G       = 0xA0
	jimiProtoHeartbeatA  = 0x23
	jimiProtoHeartbeatB  = 0x36
	jimiProtoTimeRequest = 0x8A
	jimiProtoLocationReq = 0x80
)

// HemisphereWest configures whether a Jimi port's longitude decode flips
// positive readings negative — the deployment-specific policy spec.md
// §9(a) requires callers to set explicitly, per configured port.
type Jimi struct {
	HemisphereWest bool
}

// NewJimi builds a Jimi codec for a port configured with the given
// hemisphere policy.
func NewJimi(hemisphereWest bool) *Jimi {
	return &Jimi{HemisphereWest: hemisphereWest}
}

// Decode implements protocol.Codec for the Jimi/GT06/JM-LL301 family.
// frame.Payload is [protocolID, content..., serial(2 bytes)].
func (c *Jimi) Decode(frame *protocol.Frame) (protocol.DecodedMessage, error) {
	p := frame.Payload
	if len(p) < 1 {
		return nil, &protocol.DecodeError{Reason: "empty jimi payload"}
	}

	protoID := p[0]
	body := p[1:]

	serialOf := func(buf []byte) uint16 {
		if len(buf) < 2 {
			return 0
		}
		return binary.BigEndian.Uint16(buf[len(buf)-2:])
	}

	switch protoID {
	case jimiProtoLogin:
		return c.decodeLogin(body)
	case jimiProtoGPS2G:
		return c.decodeGPS(body, false)
	case jimiProtoGPS4G:
		return c.decodeGPS(body, true)
	case jimiProtoHeartbeatA, jimiProtoHeartbeatB:
		return protocol.Heartbeat{Serial: serialOf(body), Command: protoID, Protocol: protocol.FamilyJimi}, nil
	case jimiProtoTimeRequest:
		return protocol.TimeRequest{Serial: serialOf(body)}, nil
	default:
		return protocol.Unknown{
			Protocol: protocol.FamilyJimi,
			Serial:   serialOf(body),
			Command:  protoID,
			Payload:  append([]byte(nil), body...),
		}, nil
	}
}

func (c *Jimi) decodeLogin(body []byte) (protocol.DecodedMessage, error) {
	// body = IMEI(8 BCD bytes) + typeId(2) + tzLang(2) + serial(2)
	if len(body) < 14 {
		return nil, &protocol.DecodeError{Reason: "login payload too short"}
	}
	imei, err := bcdIMEI(body[0:8])
	if err != nil {
		return nil, &protocol.DecodeError{Reason: err.Error()}
	}
	if len(imei) < 14 || len(imei) > 16 {
		return nil, &protocol.DecodeError{Reason: fmt.Sprintf("login IMEI %q not 14-16 digits", imei)}
	}
	typeID := binary.BigEndian.Uint16(body[8:10])
	tzLang := binary.BigEndian.Uint16(body[10:12])
	serial := binary.BigEndian.Uint16(body[len(body)-2:])
	return protocol.Login{IMEI: imei, TypeID: typeID, TZLang: tzLang, Serial: serial}, nil
}

// bcdIMEI decodes 8 BCD-encoded bytes (16 nibbles) into a decimal string,
// skipping any nibble greater than 9 rather than failing the whole
// decode, per spec.md §4.2's dispatch rule and §9(c)'s BCD-only policy.
func bcdIMEI(b []byte) (string, error) {
	out := make([]byte, 0, 16)
	for _, byt := range b {
		hi := byt >> 4
		lo := byt & 0x0F
		if hi <= 9 {
			out = append(out, '0'+hi)
		}
		if lo <= 9 {
			out = append(out, '0'+lo)
		}
	}
	if len(out) == 0 {
		return "", fmt.Errorf("no valid BCD digits in IMEI field")
	}
	return string(out), nil
}

func (c *Jimi) decodeGPS(body []byte, is4G bool) (protocol.DecodedMessage, error) {
	// body = date(6) + satByte(1) + lat(4) + lon(4) + speed(1) + course/status(2)
	//        + MCC(2) + MNC(1 or 2) + LAC(2 or 4) + cellID(3 or 8) + serial(2)
	if len(body) < 18 {
		return nil, &protocol.DecodeError{Reason: "gps payload too short"}
	}

	ts, err := bcdDateTime(body[0:6])
	if err != nil {
		return nil, &protocol.DecodeError{Reason: err.Error()}
	}

	satellites := int(body[6] & 0x0F)

	latRaw := binary.BigEndian.Uint32(body[7:11])
	lonRaw := binary.BigEndian.Uint32(body[11:15])
	lat := float64(latRaw) / 1800000.0
	lon := float64(lonRaw) / 1800000.0
	if c.HemisphereWest {
		lon = -lon
	}

	speed := float64(body[15])

	courseStatus := binary.BigEndian.Uint16(body[16:18])
	course := float64(courseStatus & 0x03FF)
	realTime := courseStatus&0x0400 != 0
	positioned := courseStatus&0x0800 != 0

	rest := body[18:]
	var cell *protocol.CellInfo
	var serial uint16

	if len(rest) >= 2 {
		mcc := binary.BigEndian.Uint16(rest[0:2])
		twoByteMNC := mcc&0x8000 != 0
		mcc &^= 0x8000
		off := 2
		var mnc uint16
		if twoByteMNC {
			if len(rest) < off+2 {
				serial = lastSerial(body)
				return buildFix(ts, lat, lon, speed, course, satellites, positioned, realTime, nil, serial, is4G), nil
			}
			mnc = binary.BigEndian.Uint16(rest[off : off+2])
			off += 2
		} else {
			if len(rest) < off+1 {
				serial = lastSerial(body)
				return buildFix(ts, lat, lon, speed, course, satellites, positioned, realTime, nil, serial, is4G), nil
			}
			mnc = uint16(rest[off])
			off++
		}

		var lac uint32
		var cellID uint64
		if is4G {
			if len(rest) >= off+4+8 {
				lac = binary.BigEndian.Uint32(rest[off : off+4])
				off += 4
				cellID = binary.BigEndian.Uint64(rest[off : off+8])
				off += 8
			}
		} else {
			if len(rest) >= off+2+3 {
				lac = uint32(binary.BigEndian.Uint16(rest[off : off+2]))
				off += 2
				cellID = uint64(rest[off])<<16 | uint64(rest[off+1])<<8 | uint64(rest[off+2])
				off += 3
			}
		}
		cell = &protocol.CellInfo{MCC: mcc, MNC: mnc, LAC: lac, CellID: cellID}
	}

	serial = lastSerial(body)
	return buildFix(ts, lat, lon, speed, course, satellites, positioned, realTime, cell, serial, is4G), nil
}

func lastSerial(body []byte) uint16 {
	if len(body) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(body[len(body)-2:])
}

func buildFix(ts time.Time, lat, lon, speed, course float64, sats int, positioned, realTime bool, cell *protocol.CellInfo, serial uint16, is4G bool) protocol.GpsFix {
	return protocol.GpsFix{
		Timestamp:  ts,
		Lat:        lat,
		Lon:        lon,
		Speed:      speed,
		Course:     course,
		Satellites: sats,
		Positioned: positioned,
		RealTime:   realTime,
		Cell:       cell,
		Serial:     serial,
		Protocol:   protocol.FamilyJimi,
	}
}

func bcdDateTime(b []byte) (time.Time, error) {
	digit := func(x byte) (int, error) {
		hi, lo := int(x>>4), int(x&0x0F)
		if hi > 9 || lo > 9 {
			return 0, fmt.Errorf("invalid BCD date/time byte %#02x", x)
		}
		return hi*10 + lo, nil
	}
	vals := make([]int, 6)
	for i, x := range b {
		v, err := digit(x)
		if err != nil {
			return time.Time{}, err
		}
		vals[i] = v
	}
	year, month, day, hour, minute, second := 2000+vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("invalid gps date/time")
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

// EncodeLoginAck produces the 10-byte Jimi login ACK: protocol 0x01
// echoing the login request, carrying the request's serial.
func EncodeLoginAck(serial uint16) []byte {
	return encodeAck(jimiProtoLogin, serial)
}

// EncodeHeartbeatAck produces the 10-byte generic Jimi ACK for a
// heartbeat or other protocol id requiring only an echo.
func EncodeHeartbeatAck(protoID byte, serial uint16) []byte {
	return encodeAck(protoID, serial)
}

func encodeAck(protoID byte, serial uint16) []byte {
	out := make([]byte, 10)
	binary.BigEndian.PutUint16(out[0:2], jimiStart1)
	out[2] = 0x05
	out[3] = protoID
	binary.BigEndian.PutUint16(out[4:6], serial)
	crc := checksum.Jimi(out[2:6])
	binary.BigEndian.PutUint16(out[6:8], crc)
	binary.BigEndian.PutUint16(out[8:10], jimiEndMarker)
	return out
}

// EncodeTimeResponse produces the 16-byte Jimi time response (protocol
// 0x8A) carrying the current UTC wall clock.
func EncodeTimeResponse(serial uint16, now time.Time) []byte {
	now = now.UTC()
	out := make([]byte, 16)
	binary.BigEndian.PutUint16(out[0:2], jimiStart1)
	out[2] = 0x0B
	out[3] = jimiProtoTimeRequest
	out[4] = byte(now.Year() - 2000)
	out[5] = byte(now.Month())
	out[6] = byte(now.Day())
	out[7] = byte(now.Hour())
	out[8] = byte(now.Minute())
	out[9] = byte(now.Second())
	binary.BigEndian.PutUint16(out[10:12], serial)
	crc := checksum.Jimi(out[2:12])
	binary.BigEndian.PutUint16(out[12:14], crc)
	binary.BigEndian.PutUint16(out[14:16], jimiEndMarker)
	return out
}

// EncodeLocationRequest produces the 10-byte Jimi "request location"
// frame (protocol 0x80) the Poll Scheduler sends to prompt the device.
func EncodeLocationRequest(serial uint16) []byte {
	return encodeAck(jimiProtoLocationReq, serial)
}

const (
	jimiStart1    = 0x7878
	jimiEndMarker = 0x0D0A
)
