package codec

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/angelzd27/api-ruptela/internal/protocol"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex fixture: %v", err)
	}
	return b
}

func TestEncodeLoginAckMatchesWireBytes(t *testing.T) {
	got := EncodeLoginAck(0x0042)
	want := mustHex(t, "787805010042a9430d0a")
	if !bytes.Equal(got, want) {
		t.Fatalf("login ack = %x, want %x", got, want)
	}
}

func TestBCDIMEIFiltersInvalidNibbles(t *testing.T) {
	// 8 bytes BCD-encoding "356938035643809" with a trailing invalid
	// nibble (0xA) that must be skipped rather than rejecting the whole
	// field.
	b := mustHex(t, "356938035643809a")
	imei, err := bcdIMEI(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if imei != "356938035643809" {
		t.Fatalf("imei = %q, want %q", imei, "356938035643809")
	}
}

func TestJimiDecodeLoginRoundTrip(t *testing.T) {
	frame := &protocol.Frame{
		Family:  protocol.FamilyJimi,
		Payload: mustHex(t, "01356938035643809a000106080042"),
	}
	c := NewJimi(false)
	msg, err := c.Decode(frame)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	login, ok := msg.(protocol.Login)
	if !ok {
		t.Fatalf("expected protocol.Login, got %T", msg)
	}
	if login.IMEI != "356938035643809" {
		t.Fatalf("imei = %q, want %q", login.IMEI, "356938035643809")
	}
	if login.TypeID != 0x0001 {
		t.Fatalf("typeID = %#04x, want 0x0001", login.TypeID)
	}
	if login.TZLang != 0x0608 {
		t.Fatalf("tzLang = %#04x, want 0x0608", login.TZLang)
	}
	if login.Serial != 0x0042 {
		t.Fatalf("serial = %#04x, want 0x0042", login.Serial)
	}
}

func TestJimiDecodeLoginRejectsShortIMEI(t *testing.T) {
	// The scenario bytes from the distillation's own worked example:
	// after BCD nibble-filtering the IMEI field yields only 13 digits,
	// which the length policy (14-16) must reject rather than silently
	// accept a malformed identity.
	frame := &protocol.Frame{
		Family:  protocol.FamilyJimi,
		Payload: mustHex(t, "010351123456789abc360036010001"),
	}
	c := NewJimi(false)
	_, err := c.Decode(frame)
	if err == nil {
		t.Fatal("expected a decode error for a short IMEI")
	}
}

func TestJimiDecodeGPS4GHonorsPositionedBit(t *testing.T) {
	frame := &protocol.Frame{
		Family:  protocol.FamilyJimi,
		Payload: mustHex(t, "a02402031405060904fae40006170a00320c150064010000123400000000000056780007"),
	}
	c := NewJimi(true) // hemisphere_west: lon flips negative
	msg, err := c.Decode(frame)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	fix, ok := msg.(protocol.GpsFix)
	if !ok {
		t.Fatalf("expected protocol.GpsFix, got %T", msg)
	}
	if !fix.Positioned {
		t.Fatal("expected positioned bit to be set")
	}
	if !fix.RealTime {
		t.Fatal("expected real-time bit to be set")
	}
	if fix.Lon >= 0 {
		t.Fatalf("expected negative longitude under hemisphere_west, got %v", fix.Lon)
	}
	if fix.Satellites != 9 {
		t.Fatalf("satellites = %d, want 9", fix.Satellites)
	}
	if fix.Cell == nil {
		t.Fatal("expected cell info to be populated")
	}
	if fix.Serial != 0x0007 {
		t.Fatalf("serial = %#04x, want 0x0007", fix.Serial)
	}
}

func TestJimiDecodeUnknownProtocolDowngrades(t *testing.T) {
	frame := &protocol.Frame{
		Family:  protocol.FamilyJimi,
		Payload: []byte{0xFE, 0x00, 0x01},
	}
	c := NewJimi(false)
	msg, err := c.Decode(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unk, ok := msg.(protocol.Unknown)
	if !ok {
		t.Fatalf("expected protocol.Unknown, got %T", msg)
	}
	if unk.Command != 0xFE {
		t.Fatalf("command = %#02x, want 0xfe", unk.Command)
	}
}
