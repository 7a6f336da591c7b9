package bluetooth

import (
	"github.com/pkg/errors"
)

// iBeacon manufacturer data layout constants.
const (
	AppleCompanyID = 0x004C
	IBeaconType    = 0x02
	IBeaconDataLen = 0x15

	// company ID, type, length, UUID, major, minor, measured power
	iBeaconPayloadLen = 2 + 1 + 1 + 16 + 2 + 2 + 1
)

// IBeacon describes an iBeacon advertisement.
type IBeacon struct {
	Major uint16
	Minor uint16
	UUID  UUID

	// MeasurePower is the calibrated RSSI at 1m, in dBm.
	MeasurePower int8
}

// NewIBeaconAdvertisingData returns an advertising payload for the beacon.
func NewIBeaconAdvertisingData(beacon IBeacon) (AdvertisingData, error) {
	var buf AdvertisingData
	_, err := buf.SetIBeacon(beacon)
	return buf, err
}

// SetIBeacon replaces the payload with the flags and manufacturer data of an
// iBeacon advertisement and returns the payload length.
func (buf *AdvertisingData) SetIBeacon(beacon IBeacon) (int, error) {
	if !beacon.UUID.IsValid() {
		return 0, errors.Wrap(ErrInvalidInput, "iBeacon UUID")
	}
	var md [iBeaconPayloadLen]byte
	md[0] = byte(AppleCompanyID & 0xff)
	md[1] = byte(AppleCompanyID >> 8)
	md[2] = IBeaconType
	md[3] = IBeaconDataLen
	u := beacon.UUID.Bytes(MSB)
	copy(md[4:20], u[:])
	md[20] = byte(beacon.Major >> 8)
	md[21] = byte(beacon.Major)
	md[22] = byte(beacon.Minor >> 8)
	md[23] = byte(beacon.Minor)
	md[24] = byte(beacon.MeasurePower)

	var next AdvertisingData
	if _, err := next.AppendFlags(defaultAdvertisementFlags); err != nil {
		return 0, err
	}
	if _, err := next.AppendCustomData(md[:], false); err != nil {
		return 0, errors.Wrap(err, "iBeacon")
	}
	*buf = next
	return buf.Len(), nil
}

// IBeacon decodes the iBeacon carried in the manufacturer specific data.
func (buf *AdvertisingData) IBeacon() (IBeacon, error) {
	md, ok := buf.field(ADTypeManufacturerSpecificData)
	if !ok {
		return IBeacon{}, errors.Wrap(ErrNotFound, "manufacturer data")
	}
	if len(md) != iBeaconPayloadLen ||
		md[0] != byte(AppleCompanyID&0xff) || md[1] != byte(AppleCompanyID>>8) ||
		md[2] != IBeaconType || md[3] != IBeaconDataLen {
		return IBeacon{}, errors.Wrap(ErrInvalidInput, "manufacturer data is not an iBeacon")
	}
	var u [16]byte
	copy(u[:], md[4:20])
	return IBeacon{
		UUID:         NewUUID(u, MSB),
		Major:        uint16(md[20])<<8 | uint16(md[21]),
		Minor:        uint16(md[22])<<8 | uint16(md[23]),
		MeasurePower: int8(md[24]),
	}, nil
}
