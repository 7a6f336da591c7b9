package bluetooth

import (
	"strings"
	"testing"
)

func TestUUIDString(t *testing.T) {
	checkUUID(t, New16BitUUID(0x1234), "00001234-0000-1000-8000-00805f9b34fb")
	checkUUID(t, New32BitUUID(0x12345678), "12345678-0000-1000-8000-00805f9b34fb")
}

func checkUUID(t *testing.T, uuid UUID, check string) {
	if uuid.String() != check {
		t.Errorf("expected UUID %s but got %s", check, uuid.String())
	}
}

func TestParseUUIDTooSmall(t *testing.T) {
	_, e := ParseUUID("00001234-0000-1000-8000-00805f9b34f")
	if e != errInvalidUUID {
		t.Errorf("expected errInvalidUUID but got %v", e)
	}
}

func TestParseUUIDTooLarge(t *testing.T) {
	_, e := ParseUUID("00001234-0000-1000-8000-00805F9B34FB0")
	if e != errInvalidUUID {
		t.Errorf("expected errInvalidUUID but got %v", e)
	}
}

func TestParseUUIDBadInput(t *testing.T) {
	for _, s := range []string{
		"{0001234-0000-1000-8000-00805f9b34fb}",
		"000012340000-1000-8000-00805f9b34fb0",
		"0000123g-0000-1000-8000-00805f9b34fb",
		"",
	} {
		u, e := ParseUUID(s)
		if e != errInvalidUUID {
			t.Errorf("%q: expected errInvalidUUID but got %v", s, e)
		}
		if u.IsValid() {
			t.Errorf("%q: expected invalid UUID", s)
		}
	}
}

func TestStringUUID(t *testing.T) {
	uuidString := "00001234-0000-1000-8000-00805f9b34fb"
	u, e := ParseUUID(uuidString)
	if e != nil {
		t.Errorf("expected nil but got %v", e)
	}
	if u.String() != uuidString {
		t.Errorf("expected %s but got %s", uuidString, u.String())
	}
}

func TestStringUUIDUpperCase(t *testing.T) {
	uuidString := strings.ToUpper("00001234-0000-1000-8000-00805f9b34fb")
	u, e := ParseUUID(uuidString)
	if e != nil {
		t.Errorf("expected nil but got %v", e)
	}
	if !strings.EqualFold(u.String(), uuidString) {
		t.Errorf("%s does not match %s ignoring case", uuidString, u.String())
	}
}

func TestStringUUIDLowerCase(t *testing.T) {
	uuidString := strings.ToLower("00001234-0000-1000-8000-00805f9b34fb")
	u, e := ParseUUID(uuidString)
	if e != nil {
		t.Errorf("expected nil but got %v", e)
	}
	if !strings.EqualFold(u.String(), uuidString) {
		t.Errorf("%s does not match %s ignoring case", uuidString, u.String())
	}
}

func TestUUIDByteOrder(t *testing.T) {
	msb := [16]byte{
		0x6e, 0x40, 0x00, 0x00, 0xb5, 0xa3, 0xf3, 0x93,
		0xe0, 0xa9, 0xe5, 0x0e, 0x24, 0xdc, 0xca, 0x9e,
	}
	var lsb [16]byte
	for i := range msb {
		lsb[i] = msb[15-i]
	}

	a := NewUUID(msb, MSB)
	b := NewUUID(lsb, LSB)
	if !a.Equal(b) {
		t.Errorf("%s and %s should be equal", a, b)
	}
	if a.Bytes(MSB) != msb {
		t.Errorf("MSB round trip: got %x", a.Bytes(MSB))
	}
	if a.Bytes(LSB) != lsb {
		t.Errorf("LSB round trip: got %x", a.Bytes(LSB))
	}
	if a.String() != "6e400000-b5a3-f393-e0a9-e50e24dcca9e" {
		t.Errorf("unexpected string %s", a)
	}
	if !a.Equal(DefaultServiceUUID) {
		t.Errorf("expected %s to equal DefaultServiceUUID", a)
	}
}

func TestUUIDShortEqualsLong(t *testing.T) {
	short := New16BitUUID(0x180D)
	long := MustParseUUID("0000180d-0000-1000-8000-00805f9b34fb")
	if short.Type() != UUIDTypeShort || long.Type() != UUIDTypeLong {
		t.Errorf("unexpected types %d %d", short.Type(), long.Type())
	}
	if !short.Equal(long) || !long.Equal(short) {
		t.Errorf("expected %s == %s", short, long)
	}
	if !long.Is16Bit() || long.Get16Bit() != 0x180D {
		t.Errorf("expected a 16-bit UUID 0x180d, got %#04x", long.Get16Bit())
	}
	if short.Equal(New16BitUUID(0x180F)) {
		t.Error("different short UUIDs compare equal")
	}
	if short == long {
		t.Error("== must not be used across UUID types, Equal is the comparison")
	}
	if short != New16BitUUID(0x180D) {
		t.Error("identically built UUIDs must be ==")
	}
}

func TestUUIDShortLayout(t *testing.T) {
	b := New16BitUUID(0x2A37).Bytes(LSB)
	expected := [16]byte{
		0xfb, 0x34, 0x9b, 0x5f, 0x80, 0x00, 0x00, 0x80,
		0x00, 0x10, 0x00, 0x00, 0x37, 0x2a, 0x00, 0x00,
	}
	if b != expected {
		t.Errorf("expected %x, got %x", expected, b)
	}
}

func TestUUID32Bit(t *testing.T) {
	u := New32BitUUID(0xAABB1234)
	if !u.Is32Bit() || u.Is16Bit() {
		t.Errorf("%s: Is32Bit=%v Is16Bit=%v", u, u.Is32Bit(), u.Is16Bit())
	}
	if u.Get32Bit() != 0xAABB1234 {
		t.Errorf("expected 0xaabb1234, got %#x", u.Get32Bit())
	}
	if DefaultServiceUUID.Is32Bit() {
		t.Error("a vendor UUID is not derived from the base UUID")
	}
}

func TestUUIDFromBase(t *testing.T) {
	u := NewUUIDFromBase(DefaultServiceUUID.Bytes(MSB), 0x0002, MSB)
	checkUUID(t, u, "6e400002-b5a3-f393-e0a9-e50e24dcca9e")
}

func TestUUIDZeroValue(t *testing.T) {
	var u UUID
	if u.IsValid() {
		t.Error("zero UUID should be invalid")
	}
	if u.Equal(UUID{}) {
		t.Error("invalid UUIDs never compare equal")
	}
}

func BenchmarkUUIDToString(b *testing.B) {
	uuid, e := ParseUUID("00001234-0000-1000-8000-00805f9b34fb")
	if e != nil {
		b.Errorf("expected nil but got %v", e)
	}
	for i := 0; i < b.N; i++ {
		_ = uuid.String()
	}
}
