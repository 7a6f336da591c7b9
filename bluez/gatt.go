package bluez

import (
	"sync"

	"github.com/muka/go-bluetooth/bluez/profile/gatt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/advkit/bluetooth"
)

const userDescriptionUUID = 0x2901

// gattApp is the exported GATT application behind a GattServer.
type gattApp interface {
	// exportCharacteristic adds a characteristic, creating its service on
	// first use. read and write serve peer requests.
	exportCharacteristic(id uint16, reg bluetooth.CharacteristicRegistration,
		read func() ([]byte, error), write func(value []byte) error) (valueNotifier, error)
	Run() error
	Close()
}

// valueNotifier publishes a new characteristic value to subscribed peers.
type valueNotifier interface {
	setValue(value []byte) error
}

// GattServer is a bluetooth.GattServer exporting a BlueZ GATT application.
// Characteristics must be registered before Run.
type GattServer struct {
	app gattApp

	mu    sync.Mutex
	chars map[bluetooth.AttributeHandle]*gattChar
	next  uint16
}

type gattChar struct {
	handler bluetooth.AttributeHandler
	value   valueNotifier
	removed bool
}

func newGattServer(app gattApp) *GattServer {
	return &GattServer{
		app:   app,
		chars: make(map[bluetooth.AttributeHandle]*gattChar),
	}
}

// Run registers the application with BlueZ.
func (s *GattServer) Run() error {
	return s.app.Run()
}

func (s *GattServer) Close() error {
	s.app.Close()
	return nil
}

// Register implements bluetooth.GattServer.
func (s *GattServer) Register(reg bluetooth.CharacteristicRegistration) (bluetooth.AttributeHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	handle := bluetooth.AttributeHandle(s.next)
	entry := &gattChar{handler: reg.Handler}
	read := func() ([]byte, error) {
		if s.isRemoved(entry) {
			return nil, errors.Wrap(bluetooth.ErrReleased, reg.UUID.String())
		}
		return entry.handler.ReadValue(), nil
	}
	write := func(value []byte) error {
		if s.isRemoved(entry) {
			return errors.Wrap(bluetooth.ErrReleased, reg.UUID.String())
		}
		// BlueZ does not pass the writer on this path.
		return entry.handler.WriteValue(bluetooth.Device{}, value)
	}

	value, err := s.app.exportCharacteristic(s.next, reg, read, write)
	if err != nil {
		return 0, err
	}
	entry.value = value
	s.chars[handle] = entry
	log.Debugf("registered characteristic %s in service %s", reg.UUID, reg.Service)
	return handle, nil
}

// Unregister implements bluetooth.GattServer. BlueZ keeps the attribute
// until the application is closed; it stops serving requests.
func (s *GattServer) Unregister(handle bluetooth.AttributeHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.chars[handle]
	if !ok {
		return errors.Wrapf(bluetooth.ErrNotFound, "attribute handle %d", handle)
	}
	entry.removed = true
	delete(s.chars, handle)
	return nil
}

// Notify implements bluetooth.GattServer. BlueZ turns the change of the
// Value property into notifications or indications for subscribed peers.
func (s *GattServer) Notify(handle bluetooth.AttributeHandle, value []byte) error {
	s.mu.Lock()
	entry, ok := s.chars[handle]
	s.mu.Unlock()
	if !ok {
		return errors.Wrapf(bluetooth.ErrNotFound, "attribute handle %d", handle)
	}
	return errors.Wrapf(entry.value.setValue(value), "cannot notify attribute handle %d", handle)
}

func (s *GattServer) isRemoved(c *gattChar) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.removed
}

// characteristicFlags lists the GattCharacteristic1 flags for perms.
func characteristicFlags(perms bluetooth.CharacteristicPermissions) []string {
	var flags []string
	if perms.Broadcast() {
		flags = append(flags, gatt.FlagCharacteristicBroadcast)
	}
	if perms.Read() {
		flags = append(flags, gatt.FlagCharacteristicRead)
	}
	if perms.WriteWithoutResponse() {
		flags = append(flags, gatt.FlagCharacteristicWriteWithoutResponse)
	}
	if perms.Write() {
		flags = append(flags, gatt.FlagCharacteristicWrite)
	}
	if perms.Notify() {
		flags = append(flags, gatt.FlagCharacteristicNotify)
	}
	if perms.Indicate() {
		flags = append(flags, gatt.FlagCharacteristicIndicate)
	}
	return flags
}
