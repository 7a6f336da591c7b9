package bluetooth

// Radio is the advertising part of a radio stack. Payloads handed to it are
// copies; the stack may keep them as long as it likes.
type Radio interface {
	SetAdvertisingData(data []byte) error
	SetScanResponseData(data []byte) error
	StartAdvertising(params AdvertisingParameters) error
	StopAdvertising() error
}

// AttributeHandle identifies a characteristic value registered with a
// GattServer.
type AttributeHandle uint16

// AttributeHandler serves ATT requests for one characteristic value. The
// stack calls it from its own goroutine.
type AttributeHandler interface {
	// ReadValue returns a copy of the current value.
	ReadValue() []byte
	// WriteValue handles a write from a connected peer.
	WriteValue(peer Device, data []byte) error
}

// CharacteristicRegistration describes a local characteristic to a
// GattServer.
type CharacteristicRegistration struct {
	Service     UUID
	UUID        UUID
	Description string
	Flags       CharacteristicPermissions
	Handler     AttributeHandler
}

// GattServer is the GATT database of a radio stack.
type GattServer interface {
	Register(reg CharacteristicRegistration) (AttributeHandle, error)
	Unregister(handle AttributeHandle) error
	// Notify sends value to all peers subscribed to the characteristic.
	Notify(handle AttributeHandle, value []byte) error
}

// AdvertisingTimeoutNotifier is implemented by stacks that stop advertising
// on their own once AdvertisingParameters.Timeout has passed.
type AdvertisingTimeoutNotifier interface {
	SetAdvertisingTimeoutHandler(handler func())
}

// ConnectionNotifier is implemented by stacks that report connection
// events.
type ConnectionNotifier interface {
	SetConnectHandler(handler func(device Device, connected bool))
}
