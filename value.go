package bluetooth

import "unsafe"

// MaxAttributeValueLen is the largest characteristic value that fits in a
// single ATT packet.
const MaxAttributeValueLen = 244

// Integer is any fixed-width integer type that can be stored in a
// characteristic value.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint | ~uintptr
}

func boundedLen(n int) int {
	if n > MaxAttributeValueLen {
		return MaxAttributeValueLen
	}
	return n
}

// EncodeValue writes v to dst in network (big endian) byte order and returns
// the number of bytes written. When dst is shorter than the integer only the
// least significant bytes are kept.
func EncodeValue[T Integer](dst []byte, v T) int {
	n := int(unsafe.Sizeof(v))
	if len(dst) < n {
		n = len(dst)
	}
	n = boundedLen(n)
	u := uint64(v)
	for i := 0; i < n; i++ {
		dst[i] = byte(u >> (8 * uint(n-1-i)))
	}
	return n
}

// DecodeValue reads a big endian integer from src. Bytes beyond the size of
// T are ignored, missing high-order bytes are zero.
func DecodeValue[T Integer](src []byte) T {
	var v T
	n := int(unsafe.Sizeof(v))
	if len(src) < n {
		n = len(src)
	}
	var u uint64
	for i := 0; i < n; i++ {
		u = u<<8 | uint64(src[i])
	}
	return T(u)
}

// EncodeText copies the bytes of s into dst.
func EncodeText(dst []byte, s string) int {
	if len(s) > MaxAttributeValueLen {
		s = s[:MaxAttributeValueLen]
	}
	return copy(dst, s)
}

// DecodeText returns src as a string.
func DecodeText(src []byte) string {
	return string(src[:boundedLen(len(src))])
}

// EncodeRaw copies src into dst.
func EncodeRaw(dst, src []byte) int {
	return copy(dst, src[:boundedLen(len(src))])
}

// DecodeRaw copies src into dst.
func DecodeRaw(dst, src []byte) int {
	return copy(dst, src[:boundedLen(len(src))])
}
