package bluetooth

import "github.com/pkg/errors"

// MAC represents a MAC address, in little endian format.
type MAC [6]byte

var errInvalidMAC = errors.Wrap(ErrInvalidInput, "failed to parse MAC address")

// ParseMAC parses the given MAC address, which must be in 11:22:33:AA:BB:CC
// format. Lower case hex digits are accepted too. If it cannot be parsed, an
// error is returned.
func ParseMAC(s string) (mac MAC, err error) {
	if len(s) != 17 {
		return MAC{}, errInvalidMAC
	}
	for i := 0; i < 6; i++ {
		if i != 5 && s[i*3+2] != ':' {
			return MAC{}, errInvalidMAC
		}
		hi, ok1 := fromHex(s[i*3])
		lo, ok2 := fromHex(s[i*3+1])
		if !ok1 || !ok2 {
			return MAC{}, errInvalidMAC
		}
		mac[5-i] = hi<<4 | lo
	}
	return mac, nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 0xA, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 0xA, true
	}
	return 0, false
}

// String returns a human-readable version of this MAC address, such as
// 11:22:33:AA:BB:CC.
func (mac MAC) String() string {
	const digits = "0123456789ABCDEF"
	var s [17]byte
	for i := 0; i < 6; i++ {
		c := mac[5-i]
		s[i*3] = digits[c>>4]
		s[i*3+1] = digits[c&0x0f]
		if i != 5 {
			s[i*3+2] = ':'
		}
	}
	return string(s[:])
}

// Address is the address of a peer device.
type Address struct {
	MAC
	IsRandom bool
}

// ConnectionHandle identifies a link-layer connection.
type ConnectionHandle uint16

// Device is a connected peer.
type Device struct {
	Address Address
	Handle  ConnectionHandle
}
