package bluetooth

import (
	"bytes"

	"github.com/pkg/errors"
)

// MaxAdvertisingDataLen is the maximum length of a legacy advertising or scan
// response payload.
const MaxAdvertisingDataLen = 31

// ADType is the type byte of an advertising data structure, as listed in the
// Bluetooth Core Specification Supplement, Part A.
type ADType uint8

const (
	ADTypeFlags                       ADType = 0x01
	ADTypeServiceUUID16MoreAvailable  ADType = 0x02
	ADTypeServiceUUID16Complete       ADType = 0x03
	ADTypeServiceUUID32MoreAvailable  ADType = 0x04
	ADTypeServiceUUID32Complete       ADType = 0x05
	ADTypeServiceUUID128MoreAvailable ADType = 0x06
	ADTypeServiceUUID128Complete      ADType = 0x07
	ADTypeShortLocalName              ADType = 0x08
	ADTypeCompleteLocalName           ADType = 0x09
	ADTypeTxPowerLevel                ADType = 0x0A
	ADTypeClassOfDevice               ADType = 0x0D
	ADTypeSimplePairingHashC          ADType = 0x0E
	ADTypeSimplePairingRandomizerR    ADType = 0x0F
	ADTypeSecurityManagerTKValue      ADType = 0x10
	ADTypeSecurityManagerOOBFlags     ADType = 0x11
	ADTypePeripheralConnIntervalRange ADType = 0x12
	ADTypeSolicitedServiceUUIDs16     ADType = 0x14
	ADTypeSolicitedServiceUUIDs128    ADType = 0x15
	ADTypeServiceData                 ADType = 0x16
	ADTypePublicTargetAddress         ADType = 0x17
	ADTypeRandomTargetAddress         ADType = 0x18
	ADTypeAppearance                  ADType = 0x19
	ADTypeAdvertisingInterval         ADType = 0x1A
	ADTypeLEBluetoothDeviceAddress    ADType = 0x1B
	ADTypeLERole                      ADType = 0x1C
	ADTypeSimplePairingHashC256       ADType = 0x1D
	ADTypeSimplePairingRandomizerR256 ADType = 0x1E
	ADTypeSolicitedServiceUUIDs32     ADType = 0x1F
	ADTypeServiceData32               ADType = 0x20
	ADTypeServiceData128              ADType = 0x21
	ADTypeLESCConfirmationValue       ADType = 0x22
	ADTypeLESCRandomValue             ADType = 0x23
	ADTypeURI                         ADType = 0x24
	ADTypeIndoorPositioning           ADType = 0x25
	ADTypeTransportDiscoveryData      ADType = 0x26
	ADTypeLESupportedFeatures         ADType = 0x27
	ADTypeChannelMapUpdateIndication  ADType = 0x28
	ADTypePBADV                       ADType = 0x29
	ADTypeMeshMessage                 ADType = 0x2A
	ADTypeMeshBeacon                  ADType = 0x2B
	ADTypeThreeDInformationData       ADType = 0x3D
	ADTypeManufacturerSpecificData    ADType = 0xFF
)

// Bits of the flags AD structure.
const (
	FlagsLimitedDiscoverable uint8 = 0x01
	FlagsGeneralDiscoverable uint8 = 0x02
	FlagsBREDRNotSupported   uint8 = 0x04
	FlagsLEBREDRController   uint8 = 0x08
	FlagsLEBREDRHost         uint8 = 0x10
)

const defaultAdvertisementFlags = FlagsGeneralDiscoverable | FlagsBREDRNotSupported

// AdvertisingData is a raw advertising or scan response payload: a sequence
// of [length][type][payload...] structures in a fixed 31-byte buffer. It is a
// plain value without internal pointers, copying it copies the payload.
//
// Every mutating method either succeeds completely or returns an error and
// leaves the payload untouched.
type AdvertisingData struct {
	len  uint8
	data [MaxAdvertisingDataLen]byte
}

// ServiceDataElement is the payload of a 16-bit service data structure.
type ServiceDataElement struct {
	UUID UUID
	Data []byte
}

// ManufacturerDataElement is the payload of a manufacturer specific data
// structure.
type ManufacturerDataElement struct {
	CompanyID uint16
	Data      []byte
}

// Set replaces the whole payload with b. Input longer than
// MaxAdvertisingDataLen is cut off. The structures in b are not validated,
// see Validate.
func (buf *AdvertisingData) Set(b []byte) int {
	n := copy(buf.data[:], b)
	for i := n; i < int(buf.len); i++ {
		buf.data[i] = 0
	}
	buf.len = uint8(n)
	return n
}

// Validate checks that the payload consists of complete, non-empty
// structures only.
func (buf *AdvertisingData) Validate() error {
	data := buf.data[:buf.len]
	for i := 0; i < len(data); {
		l := int(data[i])
		switch {
		case l == 0:
			return errors.Wrapf(ErrInvalidInput, "empty structure at offset %d", i)
		case i+1+l > len(data):
			return errors.Wrapf(ErrInvalidInput, "truncated structure at offset %d", i)
		}
		i += l + 1
	}
	return nil
}

// Len returns the number of occupied bytes.
func (buf *AdvertisingData) Len() int {
	return int(buf.len)
}

// Bytes returns a copy of the occupied bytes.
func (buf *AdvertisingData) Bytes() []byte {
	return append([]byte(nil), buf.data[:buf.len]...)
}

// Get copies the raw payload into b and returns the number of bytes copied.
func (buf *AdvertisingData) Get(b []byte) int {
	return copy(b, buf.data[:buf.len])
}

// Clear empties the payload.
func (buf *AdvertisingData) Clear() {
	buf.data = [MaxAdvertisingDataLen]byte{}
	buf.len = 0
}

// Locate returns the offset of the length byte and the total size of the
// first structure of the given type.
func (buf *AdvertisingData) Locate(typ ADType) (offset, size int, ok bool) {
	data := buf.data[:buf.len]
	for i := 0; i+1 < len(data); {
		l := int(data[i])
		if l == 0 || i+1+l > len(data) {
			break
		}
		if ADType(data[i+1]) == typ {
			return i, l + 1, true
		}
		i += l + 1
	}
	return 0, 0, false
}

// Contains reports whether a structure of the given type is present.
func (buf *AdvertisingData) Contains(typ ADType) bool {
	_, _, ok := buf.Locate(typ)
	return ok
}

// field returns the payload of the first structure of the given type,
// aliasing the internal buffer.
func (buf *AdvertisingData) field(typ ADType) ([]byte, bool) {
	offset, size, ok := buf.Locate(typ)
	if !ok {
		return nil, false
	}
	return buf.data[offset+2 : offset+size], true
}

// each calls fn for every well-formed structure until fn returns false.
func (buf *AdvertisingData) each(fn func(typ ADType, payload []byte) bool) {
	data := buf.data[:buf.len]
	for i := 0; i+1 < len(data); {
		l := int(data[i])
		if l == 0 || i+1+l > len(data) {
			return
		}
		if !fn(ADType(data[i+1]), data[i+2:i+1+l]) {
			return
		}
		i += l + 1
	}
}

// GetField copies the payload (without the two header bytes) of the first
// structure of the given type into b.
func (buf *AdvertisingData) GetField(typ ADType, b []byte) (int, error) {
	payload, ok := buf.field(typ)
	if !ok {
		return 0, errors.Wrapf(ErrNotFound, "type 0x%02x", uint8(typ))
	}
	return copy(b, payload), nil
}

// Append adds a structure of the given type at the end of the payload and
// returns the number of bytes written. A type that is already present is
// rejected with ErrFieldExists unless force is set, in which case the old
// structure is removed first and the new one ends up at the tail.
func (buf *AdvertisingData) Append(typ ADType, payload []byte, force bool) (int, error) {
	size := len(payload) + 2
	used := int(buf.len)
	offset, oldSize, exists := buf.Locate(typ)
	if exists {
		if !force {
			return 0, errors.Wrapf(ErrFieldExists, "type 0x%02x", uint8(typ))
		}
		used -= oldSize
	}
	if used+size > MaxAdvertisingDataLen {
		return 0, errors.Wrapf(ErrCapacityExceeded, "%d byte structure, %d bytes free", size, MaxAdvertisingDataLen-used)
	}
	if exists {
		buf.cut(offset, oldSize)
	}
	copy(buf.data[buf.putHeader(typ, len(payload)):], payload)
	return size, nil
}

// AppendLocalName sets the complete local name. A device has at most one
// local name, so any complete or shortened name already present is replaced.
func (buf *AdvertisingData) AppendLocalName(name string) (int, error) {
	size := len(name) + 2
	used := int(buf.len)
	if _, n, ok := buf.Locate(ADTypeCompleteLocalName); ok {
		used -= n
	}
	if _, n, ok := buf.Locate(ADTypeShortLocalName); ok {
		used -= n
	}
	if used+size > MaxAdvertisingDataLen {
		return 0, errors.Wrapf(ErrCapacityExceeded, "local name %q", name)
	}
	buf.remove(ADTypeCompleteLocalName)
	buf.remove(ADTypeShortLocalName)
	copy(buf.data[buf.putHeader(ADTypeCompleteLocalName, len(name)):], name)
	return size, nil
}

// AppendServiceUUID adds a UUID to the complete list of 16-bit or 128-bit
// service UUIDs, depending on the UUID type. When such a list exists the UUID
// is added to it in place, unless force is set: then the list is replaced by
// a new one holding only this UUID.
func (buf *AdvertisingData) AppendServiceUUID(u UUID, force bool) (int, error) {
	if !u.IsValid() {
		return 0, errors.Wrap(ErrInvalidInput, "service UUID")
	}
	raw := u.Bytes(LSB)
	typ, value := ADTypeServiceUUID128Complete, raw[:]
	if u.Type() == UUIDTypeShort {
		typ, value = ADTypeServiceUUID16Complete, raw[12:14]
	}
	offset, size, exists := buf.Locate(typ)
	if !exists || force {
		return buf.Append(typ, value, force)
	}

	list := buf.data[offset+2 : offset+size]
	for i := 0; i+len(value) <= len(list); i += len(value) {
		if bytes.Equal(list[i:i+len(value)], value) {
			return 0, errors.Wrapf(ErrFieldExists, "service UUID %s", u)
		}
	}
	if int(buf.len)+len(value) > MaxAdvertisingDataLen {
		return 0, errors.Wrapf(ErrCapacityExceeded, "service UUID %s", u)
	}
	end := offset + size
	copy(buf.data[end+len(value):], buf.data[end:buf.len])
	copy(buf.data[end:], value)
	buf.data[offset] += uint8(len(value))
	buf.len += uint8(len(value))
	return len(value), nil
}

// AppendCustomData adds manufacturer specific data. The first two bytes of b
// are expected to be the company identifier, little endian.
func (buf *AdvertisingData) AppendCustomData(b []byte, force bool) (int, error) {
	return buf.Append(ADTypeManufacturerSpecificData, b, force)
}

// AppendServiceData adds a 16-bit service data structure. Several of them may
// coexist, one per service.
func (buf *AdvertisingData) AppendServiceData(el ServiceDataElement) (int, error) {
	if !el.UUID.IsValid() || !el.UUID.Is16Bit() {
		return 0, errors.Wrap(ErrInvalidInput, "service data needs a 16-bit UUID")
	}
	size := len(el.Data) + 4
	if int(buf.len)+size > MaxAdvertisingDataLen {
		return 0, errors.Wrapf(ErrCapacityExceeded, "service data for %s", el.UUID)
	}
	i := buf.putHeader(ADTypeServiceData, len(el.Data)+2)
	buf.data[i] = byte(el.UUID.Get16Bit())
	buf.data[i+1] = byte(el.UUID.Get16Bit() >> 8)
	copy(buf.data[i+2:], el.Data)
	return size, nil
}

// AppendFlags sets the flags structure, replacing any previous one.
func (buf *AdvertisingData) AppendFlags(flags uint8) (int, error) {
	return buf.Append(ADTypeFlags, []byte{flags}, true)
}

// Remove deletes the first structure of the given type. The payload is left
// untouched and ErrNotFound returned when there is none.
func (buf *AdvertisingData) Remove(typ ADType) error {
	if !buf.remove(typ) {
		return errors.Wrapf(ErrNotFound, "type 0x%02x", uint8(typ))
	}
	return nil
}

func (buf *AdvertisingData) remove(typ ADType) bool {
	offset, size, ok := buf.Locate(typ)
	if ok {
		buf.cut(offset, size)
	}
	return ok
}

// cut removes size bytes at offset and shifts the rest to the left.
func (buf *AdvertisingData) cut(offset, size int) {
	end := int(buf.len)
	copy(buf.data[offset:], buf.data[offset+size:end])
	for i := end - size; i < end; i++ {
		buf.data[i] = 0
	}
	buf.len -= uint8(size)
}

// putHeader writes the header of a new structure at the tail and returns the
// offset of its payload. The caller has checked the capacity.
func (buf *AdvertisingData) putHeader(typ ADType, payloadLen int) int {
	i := int(buf.len)
	buf.data[i] = uint8(payloadLen + 1)
	buf.data[i+1] = uint8(typ)
	buf.len += uint8(payloadLen + 2)
	return i + 2
}

// DeviceName returns the complete local name, or the shortened local name
// when there is no complete one.
func (buf *AdvertisingData) DeviceName() (string, error) {
	if name, ok := buf.field(ADTypeCompleteLocalName); ok {
		return string(name), nil
	}
	if name, ok := buf.field(ADTypeShortLocalName); ok {
		return string(name), nil
	}
	return "", errors.Wrap(ErrNotFound, "local name")
}

// ServiceUUIDs decodes the UUIDs of all service UUID lists, in payload order,
// into out. It returns the number of UUIDs stored.
func (buf *AdvertisingData) ServiceUUIDs(out []UUID) (int, error) {
	n := 0
	found := false
	buf.each(func(typ ADType, payload []byte) bool {
		var width int
		switch typ {
		case ADTypeServiceUUID16MoreAvailable, ADTypeServiceUUID16Complete:
			width = 2
		case ADTypeServiceUUID32MoreAvailable, ADTypeServiceUUID32Complete:
			width = 4
		case ADTypeServiceUUID128MoreAvailable, ADTypeServiceUUID128Complete:
			width = 16
		default:
			return true
		}
		found = true
		for i := 0; i+width <= len(payload) && n < len(out); i += width {
			out[n] = decodeUUID(payload[i : i+width])
			n++
		}
		return n < len(out)
	})
	if !found {
		return 0, errors.Wrap(ErrNotFound, "service UUID list")
	}
	return n, nil
}

func decodeUUID(b []byte) UUID {
	switch len(b) {
	case 2:
		return New16BitUUID(uint16(b[0]) | uint16(b[1])<<8)
	case 4:
		return New32BitUUID(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	default:
		var raw [16]byte
		copy(raw[:], b)
		return NewUUID(raw, LSB)
	}
}

// CustomData copies the manufacturer specific data, company identifier
// included, into b.
func (buf *AdvertisingData) CustomData(b []byte) (int, error) {
	return buf.GetField(ADTypeManufacturerSpecificData, b)
}

// ManufacturerData decodes the manufacturer specific data structure.
func (buf *AdvertisingData) ManufacturerData() (ManufacturerDataElement, error) {
	payload, ok := buf.field(ADTypeManufacturerSpecificData)
	if !ok || len(payload) < 2 {
		return ManufacturerDataElement{}, errors.Wrap(ErrNotFound, "manufacturer data")
	}
	return ManufacturerDataElement{
		CompanyID: uint16(payload[0]) | uint16(payload[1])<<8,
		Data:      append([]byte(nil), payload[2:]...),
	}, nil
}

// ServiceData returns all 16-bit service data structures.
func (buf *AdvertisingData) ServiceData() []ServiceDataElement {
	var elements []ServiceDataElement
	buf.each(func(typ ADType, payload []byte) bool {
		if typ == ADTypeServiceData && len(payload) >= 2 {
			elements = append(elements, ServiceDataElement{
				UUID: decodeUUID(payload[:2]),
				Data: append([]byte(nil), payload[2:]...),
			})
		}
		return true
	})
	return elements
}

// Flags returns the value of the flags structure.
func (buf *AdvertisingData) Flags() (uint8, error) {
	payload, ok := buf.field(ADTypeFlags)
	if !ok || len(payload) < 1 {
		return 0, errors.Wrap(ErrNotFound, "flags")
	}
	return payload[0], nil
}

// TxPower returns the advertised transmit power level in dBm.
func (buf *AdvertisingData) TxPower() (int8, error) {
	payload, ok := buf.field(ADTypeTxPowerLevel)
	if !ok || len(payload) < 1 {
		return 0, errors.Wrap(ErrNotFound, "tx power level")
	}
	return int8(payload[0]), nil
}

// Appearance returns the advertised GAP appearance value.
func (buf *AdvertisingData) Appearance() (uint16, error) {
	payload, ok := buf.field(ADTypeAppearance)
	if !ok || len(payload) < 2 {
		return 0, errors.Wrap(ErrNotFound, "appearance")
	}
	return uint16(payload[0]) | uint16(payload[1])<<8, nil
}
