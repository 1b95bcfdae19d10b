package checksum

import "testing"

func TestJimiReferenceVectors(t *testing.T) {
	if got := Jimi(nil); got != 0x0000 {
		t.Fatalf("Jimi(empty) = %#04x, want 0x0000", got)
	}
	if got := Jimi([]byte{0x05, 0x01, 0x00, 0x01}); got != 0xD9DC {
		t.Fatalf("Jimi(login ack body) = %#04x, want 0xD9DC", got)
	}
}

func TestRuptelaReferenceVectors(t *testing.T) {
	if got := Ruptela([]byte("123456789")); got != 0x2189 {
		t.Fatalf("Ruptela(\"123456789\") = %#04x, want 0x2189", got)
	}
	if got := Ruptela([]byte{0x64, 0x01}); got != 0x13BC {
		t.Fatalf("Ruptela(records ack body) = %#04x, want 0x13BC", got)
	}
}
