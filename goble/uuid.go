package goble

import (
	"github.com/go-ble/ble"

	"github.com/advkit/bluetooth"
)

// Characteristic User Description descriptor.
const userDescriptionUUID = 0x2901

// bleUUID converts u to the go-ble representation, which keeps UUIDs in
// least-significant byte first order just like the air interface.
func bleUUID(u bluetooth.UUID) ble.UUID {
	if u.Type() == bluetooth.UUIDTypeShort {
		return ble.UUID16(u.Get16Bit())
	}
	b := u.Bytes(bluetooth.LSB)
	return ble.UUID(b[:])
}

// hciAdvType maps an advertising event type to the HCI advertising type of
// LE Set Advertising Parameters.
func hciAdvType(t bluetooth.AdvertisingEventType) uint8 {
	switch t {
	case bluetooth.AdvertisingTypeConnectableDirected:
		return 0x01 // ADV_DIRECT_IND
	case bluetooth.AdvertisingTypeScannableUndirected, bluetooth.AdvertisingTypeScannableDirected:
		return 0x02 // ADV_SCAN_IND
	case bluetooth.AdvertisingTypeNonConnectableUndirected, bluetooth.AdvertisingTypeNonConnectableDirected:
		return 0x03 // ADV_NONCONN_IND
	default:
		return 0x00 // ADV_IND
	}
}

// hciAdvInterval clamps an interval to the range accepted by the controller.
func hciAdvInterval(i bluetooth.AdvertiseInterval) uint16 {
	switch {
	case i < 0x0020:
		return 0x0020
	case i > 0x4000:
		return 0x4000
	}
	return uint16(i)
}
