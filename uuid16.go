package bluetooth

// Assigned numbers used by this package and its examples. See
// https://www.bluetooth.com/specifications/assigned-numbers/ for the full list.
var (
	ServiceUUIDGenericAccess     = New16BitUUID(0x1800)
	ServiceUUIDGenericAttribute  = New16BitUUID(0x1801)
	ServiceUUIDDeviceInformation = New16BitUUID(0x180A)
	ServiceUUIDHeartRate         = New16BitUUID(0x180D)
	ServiceUUIDBattery           = New16BitUUID(0x180F)

	CharacteristicUUIDDeviceName             = New16BitUUID(0x2A00)
	CharacteristicUUIDAppearance             = New16BitUUID(0x2A01)
	CharacteristicUUIDServiceChanged         = New16BitUUID(0x2A05)
	CharacteristicUUIDBatteryLevel           = New16BitUUID(0x2A19)
	CharacteristicUUIDHeartRateMeasurement   = New16BitUUID(0x2A37)
	CharacteristicUUIDBodySensorLocation     = New16BitUUID(0x2A38)
	CharacteristicUUIDManufacturerNameString = New16BitUUID(0x2A29)
)

// DefaultServiceUUID is used for characteristics that are added without a
// service. Characteristics added without a UUID get DefaultServiceUUID with
// an increasing 16-bit value substituted.
var DefaultServiceUUID = MustParseUUID("6e400000-b5a3-f393-e0a9-e50e24dcca9e")
