package framereader

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

func TestJimiNextParsesCompleteFrame(t *testing.T) {
	frame := mustHex(t, "78781101356938035643809a000106080042afd70d0a")

	r := NewJimi()
	r.Push(frame)

	f, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f == nil {
		t.Fatal("expected a frame, got nil")
	}
	if f.Family != protocol.FamilyJimi {
		t.Fatalf("expected jimi family, got %v", f.Family)
	}
	if !bytes.Equal(f.Raw, frame) {
		t.Fatalf("raw frame mismatch: %x != %x", f.Raw, frame)
	}
	wantPayload := mustHex(t, "01356938035643809a000106080042")
	if !bytes.Equal(f.Payload, wantPayload) {
		t.Fatalf("payload mismatch: %x != %x", f.Payload, wantPayload)
	}

	if more, err := r.Next(); more != nil || err != nil {
		t.Fatalf("expected no further frames, got %v %v", more, err)
	}
}

func TestJimiNextWaitsForMoreBytes(t *testing.T) {
	frame := mustHex(t, "78781101356938035643809a000106080042afd70d0a")

	r := NewJimi()
	r.Push(frame[:10])

	f, err := r.Next()
	if f != nil || err != nil {
		t.Fatalf("expected to wait for the rest of the frame, got %v %v", f, err)
	}

	r.Push(frame[10:])
	f, err = r.Next()
	if err != nil || f == nil {
		t.Fatalf("expected the completed frame to parse, got %v %v", f, err)
	}
}

func TestJimiNextDiscardsFrameOnChecksumFailureAndRecovers(t *testing.T) {
	good := mustHex(t, "78781101356938035643809a000106080042afd70d0a")
	bad := mustHex(t, "78781101356938035643809a00010608004250280d0a")

	r := NewJimi()
	r.Push(bad)

	f, err := r.Next()
	if f != nil {
		t.Fatalf("corrupt frame should not decode, got %v", f)
	}
	var framingErr *protocol.FramingError
	if err == nil {
		t.Fatal("expected a framing error")
	} else if fe, ok := err.(*protocol.FramingError); !ok {
		t.Fatalf("expected *protocol.FramingError, got %T", err)
	} else {
		framingErr = fe
	}
	if !framingErr.Recoverable {
		t.Fatal("checksum mismatch should be recoverable; connection stays open")
	}

	// The next valid frame on the same reader still parses.
	r.Push(good)
	f, err = r.Next()
	if err != nil || f == nil {
		t.Fatalf("expected the next valid frame to parse after a discard, got %v %v", f, err)
	}
}

func TestJimiNextResyncsOnGarbagePrefix(t *testing.T) {
	good := mustHex(t, "78781101356938035643809a000106080042afd70d0a")
	garbage := []byte{0x00, 0x11, 0x22}

	r := NewJimi()
	r.Push(garbage)
	r.Push(good)

	f, err := r.Next()
	if err != nil || f == nil {
		t.Fatalf("expected the frame after garbage bytes to parse, got %v %v", f, err)
	}
}

func TestJimiNextResetsBufferPastSafetyCeiling(t *testing.T) {
	r := NewJimi()
	// A start marker followed by an implausibly large declared length,
	// without ever supplying that many bytes, must trip the ceiling
	// rather than grow the buffer forever.
	header := []byte{0x79, 0x79, 0xFF, 0xFF}
	r.Push(header)
	r.Push(make([]byte, maxBufferedBytes))

	f, err := r.Next()
	if f != nil {
		t.Fatalf("expected no frame, got %v", f)
	}
	if err == nil {
		t.Fatal("expected a safety-ceiling framing error")
	}
}
