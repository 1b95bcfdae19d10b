// Package checksum implements the two CRC-16 variants the tracker
// protocols require: a precomputed-table CRC-ITU (CRC-16/X-25) for Jimi
// frames, and CRC-16/Kermit for Ruptela frames.
package checksum

import "github.com/sigurn/crc16"

// jimiTable is the standard CRC-16/X-25 table: polynomial 0x1021,
// reflected in and out, initialized to 0xFFFF, final XOR 0xFFFF.
// Jimi/GT06 devices authoritatively expect this variant — it is what
// reproduces the vendor's real ACK frames byte for byte. The bit-shift
// CRC-CCITT some vendor firmware shows (unreflected, no final XOR) is a
// distinct, incompatible variant and is treated as a bug, never
// implemented here.
var jimiTable = crc16.MakeTable(crc16.CRC16_X_25)

// ruptelaTable is CRC-16/Kermit. The Ruptela reference firmware computes
// it bit by bit; sigurn/crc16's precomputed table produces the identical
// result for the same polynomial.
var ruptelaTable = crc16.MakeTable(crc16.CRC16_KERMIT)

// Jimi computes the CRC-ITU (CRC-16/X-25) checksum over data, matching
// the Jimi/GT06 frame's checksum field (bytes from after the length byte
// up to, but excluding, the checksum field itself).
func Jimi(data []byte) uint16 {
	return crc16.Checksum(data, jimiTable)
}

// Ruptela computes the CRC-16/Kermit checksum over data, matching the
// Ruptela frame's trailing checksum field.
func Ruptela(data []byte) uint16 {
	return crc16.Checksum(data, ruptelaTable)
}
