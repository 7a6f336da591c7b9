// Package bluez advertises through the BlueZ daemon over D-Bus, for hosts
// where the HCI socket is owned by bluetoothd.
package bluez

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/advkit/bluetooth"
)

const (
	advertisementInterface = "org.bluez.LEAdvertisement1"
	advertisingManager     = "org.bluez.LEAdvertisingManager1"

	// BlueZ accepts at most this many service UUIDs in a payload.
	maxServiceUUIDs = 16
)

var advertisementID uint64

// busConn is the part of *dbus.Conn used for exported objects and signals.
type busConn interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// Advertiser is a bluetooth.Radio registering LEAdvertisement1 objects with
// BlueZ. It also reports connections as a bluetooth.ConnectionNotifier.
type Advertiser struct {
	bus     *dbus.Conn
	conn    busConn
	adapter dbus.BusObject
	path    dbus.ObjectPath

	mu          sync.Mutex
	ad, sr      []byte
	registered  bool
	onConnected func(device bluetooth.Device, connected bool)
	onReleased  func()
	sigCh       chan *dbus.Signal
	done        chan struct{}
}

// NewAdvertiser returns an advertiser for adapter id (such as hci0) on bus.
func NewAdvertiser(bus *dbus.Conn, id string) *Advertiser {
	n := atomic.AddUint64(&advertisementID, 1)
	return &Advertiser{
		bus:     bus,
		conn:    bus,
		adapter: bus.Object("org.bluez", dbus.ObjectPath("/org/bluez/"+id)),
		path:    dbus.ObjectPath(fmt.Sprintf("/org/advkit/bluetooth/advertisement%d", n)),
	}
}

// Open connects to the system bus and checks that the adapter exists.
func Open(id string) (*Advertiser, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to system bus")
	}
	a := NewAdvertiser(bus, id)
	if _, err := a.adapter.GetProperty("org.bluez.Adapter1.Address"); err != nil {
		if err, ok := err.(dbus.Error); ok && err.Name == "org.freedesktop.DBus.Error.UnknownObject" {
			return nil, errors.Errorf("bluetooth: adapter %s does not exist", a.adapter.Path())
		}
		return nil, errors.Wrap(err, "could not activate BlueZ adapter")
	}
	return a, nil
}

// SetAdvertisingData implements bluetooth.Radio.
func (a *Advertiser) SetAdvertisingData(data []byte) error {
	a.mu.Lock()
	a.ad = data
	a.mu.Unlock()
	return nil
}

// SetScanResponseData implements bluetooth.Radio.
func (a *Advertiser) SetScanResponseData(data []byte) error {
	a.mu.Lock()
	a.sr = data
	a.mu.Unlock()
	return nil
}

// StartAdvertising implements bluetooth.Radio. BlueZ builds the payload
// itself from the decoded fields and decides what goes into the scan
// response.
func (a *Advertiser) StartAdvertising(params bluetooth.AdvertisingParameters) error {
	if err := a.StopAdvertising(); err != nil {
		return err
	}

	a.mu.Lock()
	values, err := advertisementProperties(a.ad, a.sr, params)
	a.mu.Unlock()
	if err != nil {
		return err
	}
	props := map[string]*prop.Prop{}
	for name, value := range values {
		props[name] = &prop.Prop{Value: value}
	}
	if _, err := prop.Export(a.bus, a.path, map[string]map[string]*prop.Prop{advertisementInterface: props}); err != nil {
		return errors.Wrap(err, "cannot export advertisement")
	}
	if err := a.conn.Export(releaser{a}, a.path, advertisementInterface); err != nil {
		return errors.Wrap(err, "cannot export advertisement")
	}

	err = a.adapter.Call(advertisingManager+".RegisterAdvertisement", 0, a.path, map[string]interface{}{}).Err
	if err != nil {
		a.unexport()
		return errors.Wrap(bluezError(err), "could not start advertisement")
	}
	a.mu.Lock()
	a.registered = true
	a.mu.Unlock()
	log.Debugf("registered advertisement %s", a.path)
	return nil
}

// StopAdvertising implements bluetooth.Radio.
func (a *Advertiser) StopAdvertising() error {
	a.mu.Lock()
	registered := a.registered
	a.registered = false
	a.mu.Unlock()
	if !registered {
		return nil
	}

	err := a.adapter.Call(advertisingManager+".UnregisterAdvertisement", 0, a.path).Err
	a.unexport()
	if err != nil {
		if err, ok := err.(dbus.Error); ok && err.Name == "org.bluez.Error.DoesNotExist" {
			return nil
		}
		return errors.Wrap(bluezError(err), "could not stop advertisement")
	}
	return nil
}

func (a *Advertiser) unexport() {
	a.conn.Export(nil, a.path, advertisementInterface)
	a.conn.Export(nil, a.path, "org.freedesktop.DBus.Properties")
}

// SetAdvertisingTimeoutHandler implements
// bluetooth.AdvertisingTimeoutNotifier. BlueZ enforces the timeout and
// releases the advertisement, handler runs then.
func (a *Advertiser) SetAdvertisingTimeoutHandler(handler func()) {
	a.mu.Lock()
	a.onReleased = handler
	a.mu.Unlock()
}

// released is called once BlueZ dropped the advertisement on its own.
func (a *Advertiser) released() {
	a.mu.Lock()
	registered := a.registered
	a.registered = false
	cb := a.onReleased
	a.mu.Unlock()
	if !registered {
		return
	}
	log.Debugf("advertisement %s released by bluez", a.path)
	a.unexport()
	if cb != nil {
		cb()
	}
}

// releaser serves the Release method BlueZ calls when it drops the
// advertisement on its own.
type releaser struct {
	a *Advertiser
}

func (r releaser) Release() *dbus.Error {
	r.a.released()
	return nil
}

// bluezError maps BlueZ error names to the bluetooth error taxonomy.
func bluezError(err error) error {
	dbusErr, ok := err.(dbus.Error)
	if !ok {
		return err
	}
	switch dbusErr.Name {
	case "org.bluez.Error.InvalidArguments", "org.bluez.Error.InvalidLength":
		return errors.Wrap(bluetooth.ErrInvalidInput, dbusErr.Error())
	case "org.bluez.Error.NotSupported", "org.freedesktop.DBus.Error.UnknownMethod":
		return errors.Wrap(bluetooth.ErrNotSupported, dbusErr.Error())
	case "org.bluez.Error.NotPermitted", "org.bluez.Error.Failed":
		// BlueZ reports a full advertising slot table this way.
		return errors.Wrap(bluetooth.ErrCapacityExceeded, dbusErr.Error())
	}
	return err
}

// advertisementProperties decodes raw advertising and scan response
// payloads into LEAdvertisement1 properties.
func advertisementProperties(ad, sr []byte, params bluetooth.AdvertisingParameters) (map[string]interface{}, error) {
	props := map[string]interface{}{
		"Type":    "broadcast",
		"Timeout": uint16(0),
	}
	if params.Type.Connectable() {
		props["Type"] = "peripheral"
	}
	if params.Timeout > 0 {
		// 10ms units, rounded up to whole seconds.
		props["Timeout"] = uint16((uint32(params.Timeout) + 99) / 100)
	}

	var serviceUUIDs []string
	manufacturerData := map[uint16]interface{}{}
	serviceData := map[string]interface{}{}
	var includes []string

	for i, raw := range [][]byte{ad, sr} {
		var buf bluetooth.AdvertisingData
		if buf.Set(raw) != len(raw) {
			return nil, errors.Wrapf(bluetooth.ErrCapacityExceeded, "payload %d is %d bytes", i, len(raw))
		}
		if err := buf.Validate(); err != nil {
			return nil, err
		}
		if name, err := buf.DeviceName(); err == nil {
			props["LocalName"] = name
		}
		uuids := make([]bluetooth.UUID, maxServiceUUIDs)
		if n, err := buf.ServiceUUIDs(uuids); err == nil {
			for _, u := range uuids[:n] {
				serviceUUIDs = append(serviceUUIDs, u.String())
			}
		}
		if md, err := buf.ManufacturerData(); err == nil {
			manufacturerData[md.CompanyID] = md.Data
		}
		for _, el := range buf.ServiceData() {
			serviceData[el.UUID.String()] = el.Data
		}
		if appearance, err := buf.Appearance(); err == nil {
			props["Appearance"] = appearance
		}
		if _, err := buf.TxPower(); err == nil {
			includes = append(includes, "tx-power")
		}
		if flags, err := buf.Flags(); err == nil && params.Type.Connectable() {
			props["Discoverable"] = flags&(bluetooth.FlagsGeneralDiscoverable|bluetooth.FlagsLimitedDiscoverable) != 0
		}
	}

	if len(serviceUUIDs) > 0 {
		props["ServiceUUIDs"] = serviceUUIDs
	}
	if len(manufacturerData) > 0 {
		props["ManufacturerData"] = manufacturerData
	}
	if len(serviceData) > 0 {
		props["ServiceData"] = serviceData
	}
	if len(includes) > 0 {
		props["Includes"] = includes
	}
	return props, nil
}
