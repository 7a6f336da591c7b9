package bluetooth

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// CharacteristicPermissions lists which operations are allowed on a
// characteristic. The bits match the GATT characteristic properties.
type CharacteristicPermissions uint8

// Characteristic permission bits.
const (
	CharacteristicBroadcastPermission CharacteristicPermissions = 1 << iota
	CharacteristicReadPermission
	CharacteristicWriteWithoutResponsePermission
	CharacteristicWritePermission
	CharacteristicNotifyPermission
	CharacteristicIndicatePermission
)

// Broadcast returns whether broadcasting of the value is permitted.
func (p CharacteristicPermissions) Broadcast() bool {
	return p&CharacteristicBroadcastPermission != 0
}

// Read returns whether reading of the value is permitted.
func (p CharacteristicPermissions) Read() bool {
	return p&CharacteristicReadPermission != 0
}

// WriteWithoutResponse returns whether writing of the value without response
// is permitted.
func (p CharacteristicPermissions) WriteWithoutResponse() bool {
	return p&CharacteristicWriteWithoutResponsePermission != 0
}

// Write returns whether writing of the value with response is permitted.
func (p CharacteristicPermissions) Write() bool {
	return p&CharacteristicWritePermission != 0
}

// Notify returns whether notifications are permitted.
func (p CharacteristicPermissions) Notify() bool {
	return p&CharacteristicNotifyPermission != 0
}

// Indicate returns whether indications are permitted.
func (p CharacteristicPermissions) Indicate() bool {
	return p&CharacteristicIndicatePermission != 0
}

// Service is a GATT service to be used in AddService.
type Service struct {
	UUID
	Characteristics []CharacteristicConfig
}

// DataReceivedHandler is called with the value written by a peer.
type DataReceivedHandler func(data []byte, peer Device)

// CharacteristicConfig contains some parameters for the configuration of a
// single characteristic.
//
// The Handle field may be nil. If it is set, it points to a characteristic
// handle that can be used to access the characteristic at a later time.
type CharacteristicConfig struct {
	Handle *Characteristic
	UUID
	Description    string
	Value          []byte
	Flags          CharacteristicPermissions
	OnDataReceived DataReceivedHandler
}

// Characteristic is a handle to a local characteristic. Handles obtained with
// Clone share the same registration, which is removed from the GATT server
// when the last handle is released.
type Characteristic struct {
	rec *characteristicRecord
}

type characteristicRecord struct {
	refs        int32
	gatt        GattServer
	handle      AttributeHandle
	uuid        UUID
	service     UUID
	description string
	permissions CharacteristicPermissions

	mu             sync.Mutex
	value          [MaxAttributeValueLen]byte
	len            int
	onDataReceived DataReceivedHandler
}

// ReadValue implements AttributeHandler.
func (r *characteristicRecord) ReadValue() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.value[:r.len]...)
}

// WriteValue implements AttributeHandler.
func (r *characteristicRecord) WriteValue(peer Device, data []byte) error {
	if !(r.permissions.Write() || r.permissions.WriteWithoutResponse()) {
		return errNoWrite
	}
	r.mu.Lock()
	r.len = EncodeRaw(r.value[:], data)
	received := append([]byte(nil), r.value[:r.len]...)
	cb := r.onDataReceived
	r.mu.Unlock()

	logger.WithField("uuid", r.uuid.String()).Tracef("peer %s wrote %x", peer.Address.MAC, received)
	if cb != nil {
		cb(received, peer)
	}
	return nil
}

func (c *Characteristic) record() (*characteristicRecord, error) {
	if c == nil || c.rec == nil {
		return nil, ErrReleased
	}
	return c.rec, nil
}

// UUID returns the characteristic UUID.
func (c *Characteristic) UUID() UUID {
	r, err := c.record()
	if err != nil {
		return UUID{}
	}
	return r.uuid
}

// ServiceUUID returns the UUID of the service holding the characteristic.
func (c *Characteristic) ServiceUUID() UUID {
	r, err := c.record()
	if err != nil {
		return UUID{}
	}
	return r.service
}

// Description returns the user description of the characteristic.
func (c *Characteristic) Description() string {
	r, err := c.record()
	if err != nil {
		return ""
	}
	return r.description
}

// Properties returns the permissions of the characteristic.
func (c *Characteristic) Properties() CharacteristicPermissions {
	r, err := c.record()
	if err != nil {
		return 0
	}
	return r.permissions
}

// Handle returns the attribute handle assigned by the GATT server.
func (c *Characteristic) Handle() AttributeHandle {
	r, err := c.record()
	if err != nil {
		return 0
	}
	return r.handle
}

// Write replaces the characteristic value with a new value and notifies
// subscribed peers when the characteristic permits it. Values longer than
// MaxAttributeValueLen are cut off.
func (c *Characteristic) Write(p []byte) (n int, err error) {
	r, err := c.record()
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.len = EncodeRaw(r.value[:], p)
	n = r.len
	value := append([]byte(nil), r.value[:r.len]...)
	r.mu.Unlock()

	if r.permissions.Notify() || r.permissions.Indicate() {
		if err := r.gatt.Notify(r.handle, value); err != nil {
			return n, errors.Wrapf(err, "notify %s", r.uuid)
		}
	}
	return n, nil
}

// Notify sends the current value to subscribed peers again.
func (c *Characteristic) Notify() error {
	r, err := c.record()
	if err != nil {
		return err
	}
	if !(r.permissions.Notify() || r.permissions.Indicate()) {
		return errNoNotify
	}
	return r.gatt.Notify(r.handle, r.ReadValue())
}

// WriteString replaces the characteristic value with the bytes of s.
func (c *Characteristic) WriteString(s string) (int, error) {
	var b [MaxAttributeValueLen]byte
	return c.Write(b[:EncodeText(b[:], s)])
}

// Value copies the current value into buf.
func (c *Characteristic) Value(buf []byte) (int, error) {
	r, err := c.record()
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return DecodeRaw(buf, r.value[:r.len]), nil
}

// ValueString returns the current value as a string.
func (c *Characteristic) ValueString() (string, error) {
	r, err := c.record()
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return DecodeText(r.value[:r.len]), nil
}

// OnDataReceived sets the handler for values written by peers.
func (c *Characteristic) OnDataReceived(handler DataReceivedHandler) error {
	r, err := c.record()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.onDataReceived = handler
	r.mu.Unlock()
	return nil
}

// Clone returns a new handle sharing the registration of c.
func (c *Characteristic) Clone() *Characteristic {
	r, err := c.record()
	if err != nil {
		return &Characteristic{}
	}
	atomic.AddInt32(&r.refs, 1)
	return &Characteristic{rec: r}
}

// Release drops this handle. The characteristic is unregistered from the
// GATT server when the last handle is released. Releasing a handle twice is a
// no-op.
func (c *Characteristic) Release() error {
	r, err := c.record()
	if err != nil {
		return nil
	}
	c.rec = nil
	if atomic.AddInt32(&r.refs, -1) > 0 {
		return nil
	}
	logger.WithField("uuid", r.uuid.String()).Debug("unregistering characteristic")
	return errors.Wrapf(r.gatt.Unregister(r.handle), "unregister %s", r.uuid)
}

// SetValue encodes v in network byte order and writes it to the
// characteristic.
func SetValue[T Integer](c *Characteristic, v T) (int, error) {
	var b [8]byte
	return c.Write(b[:EncodeValue(b[:], v)])
}

// GetValue decodes the characteristic value as an integer of type T.
func GetValue[T Integer](c *Characteristic) (T, error) {
	r, err := c.record()
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return DecodeValue[T](r.value[:r.len]), nil
}
