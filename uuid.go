package bluetooth

// This file implements 16-bit and 128-bit UUIDs as defined in the Bluetooth
// specification.

import (
	"github.com/google/uuid"
)

// UUIDType tells how a UUID was constructed.
type UUIDType uint8

const (
	// UUIDTypeShort is a 16-bit UUID assigned by the Bluetooth SIG.
	UUIDTypeShort UUIDType = iota
	// UUIDTypeLong is a full 128-bit UUID.
	UUIDTypeLong
)

// ByteOrder selects the byte order of a 16-byte UUID representation.
type ByteOrder uint8

const (
	// MSB is most-significant byte first, as in the textual form.
	MSB ByteOrder = iota
	// LSB is least-significant byte first, as sent over the air.
	LSB
)

// baseUUID is 00000000-0000-1000-8000-00805F9B34FB in LSB order.
var baseUUID = [16]byte{
	0xfb, 0x34, 0x9b, 0x5f, 0x80, 0x00, 0x00, 0x80,
	0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// UUID is a single UUID as used in the Bluetooth stack. The full 128-bit
// value is always kept in LSB order, short UUIDs are stored expanded into the
// Bluetooth base UUID. The zero value is not a valid UUID.
//
// Compare UUIDs with Equal, not ==: a 16-bit UUID and the same value parsed
// from its 128-bit text form differ in their type.
type UUID struct {
	b     [16]byte
	typ   UUIDType
	valid bool
}

// New16BitUUID returns a new UUID based on a 16-bit UUID.
//
// Note: only use registered UUIDs. See
// https://www.bluetooth.com/specifications/gatt/services/ for a list.
func New16BitUUID(shortUUID uint16) UUID {
	u := UUID{b: baseUUID, typ: UUIDTypeShort, valid: true}
	u.b[12] = byte(shortUUID)
	u.b[13] = byte(shortUUID >> 8)
	return u
}

// New32BitUUID returns the 128-bit UUID of a 32-bit SIG UUID.
func New32BitUUID(shortUUID uint32) UUID {
	u := UUID{b: baseUUID, typ: UUIDTypeLong, valid: true}
	u.b[12] = byte(shortUUID)
	u.b[13] = byte(shortUUID >> 8)
	u.b[14] = byte(shortUUID >> 16)
	u.b[15] = byte(shortUUID >> 24)
	return u
}

// NewUUID returns a 128-bit UUID from 16 bytes in the given byte order.
func NewUUID(b [16]byte, order ByteOrder) UUID {
	u := UUID{typ: UUIDTypeLong, valid: true}
	if order == MSB {
		for i := range b {
			u.b[i] = b[15-i]
		}
	} else {
		u.b = b
	}
	return u
}

// NewUUIDFromBase returns a 128-bit UUID made of a vendor base UUID with the
// 16-bit value substituted at the position of the SIG short UUID.
func NewUUIDFromBase(base [16]byte, shortUUID uint16, order ByteOrder) UUID {
	u := NewUUID(base, order)
	u.b[12] = byte(shortUUID)
	u.b[13] = byte(shortUUID >> 8)
	return u
}

// ParseUUID parses the given UUID, which must be in
// 00001234-0000-1000-8000-00805f9b34fb format. Both upper and lower case hex
// digits are accepted. If it cannot be parsed, the invalid zero UUID and an
// error are returned.
func ParseUUID(s string) (UUID, error) {
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return UUID{}, errInvalidUUID
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, errInvalidUUID
	}
	return NewUUID(parsed, MSB), nil
}

// MustParseUUID is like ParseUUID but panics on malformed input.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err.Error() + ": " + s)
	}
	return u
}

// IsValid reports whether the UUID was constructed successfully.
func (u UUID) IsValid() bool {
	return u.valid
}

// Type returns how the UUID was constructed.
func (u UUID) Type() UUIDType {
	return u.typ
}

// Is32Bit returns whether this UUID is derived from the Bluetooth base UUID.
func (u UUID) Is32Bit() bool {
	if !u.valid {
		return false
	}
	for i := 0; i < 12; i++ {
		if u.b[i] != baseUUID[i] {
			return false
		}
	}
	return true
}

// Is16Bit returns whether this UUID is a 16-bit BLE UUID.
func (u UUID) Is16Bit() bool {
	return u.Is32Bit() && u.b[14] == 0 && u.b[15] == 0
}

// Get16Bit returns the 16-bit value of a short UUID. For a long UUID it
// returns bytes 12 and 13 of the 128-bit value, which is only meaningful when
// Is16Bit reports true; check Type first.
func (u UUID) Get16Bit() uint16 {
	return uint16(u.b[12]) | uint16(u.b[13])<<8
}

// Get32Bit returns bytes 12 to 15 of the 128-bit value, see Get16Bit.
func (u UUID) Get32Bit() uint32 {
	return uint32(u.Get16Bit()) | uint32(u.b[14])<<16 | uint32(u.b[15])<<24
}

// Bytes returns the full 128-bit UUID in the requested byte order. Short
// UUIDs are expanded into the Bluetooth base UUID.
func (u UUID) Bytes(order ByteOrder) [16]byte {
	if order == LSB {
		return u.b
	}
	var b [16]byte
	for i := range b {
		b[i] = u.b[15-i]
	}
	return b
}

// Equal reports whether both UUIDs are valid and denote the same 128-bit
// value, regardless of how they were constructed.
func (u UUID) Equal(other UUID) bool {
	return u.valid && other.valid && u.b == other.b
}

// String returns a human-readable version of this UUID, such as
// 00001234-0000-1000-8000-00805f9b34fb.
func (u UUID) String() string {
	return uuid.UUID(u.Bytes(MSB)).String()
}

// isIn checks the passed in slice of UUIDs to see if this uuid is in it.
func (u UUID) isIn(uuids []UUID) bool {
	for _, v := range uuids {
		if v.Equal(u) {
			return true
		}
	}
	return false
}
