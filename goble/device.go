// Package goble runs the bluetooth package on top of github.com/go-ble/ble,
// talking HCI directly to the controller.
package goble

import (
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/advkit/bluetooth"
)

// controller is the advertising half of an HCI device.
type controller interface {
	SetAdvertisingParameters(params bluetooth.AdvertisingParameters) error
	SetAdvertisement(ad, sr []byte) error
	Advertise() error
	StopAdvertising() error
}

// gattDB holds the local GATT services.
type gattDB interface {
	SetServices(svcs []*ble.Service) error
}

// Device is a bluetooth.Radio, bluetooth.GattServer and
// bluetooth.ConnectionNotifier backed by a go-ble device.
type Device struct {
	ctrl controller
	db   gattDB

	mu          sync.Mutex
	advData     []byte
	scanResp    []byte
	stopTimer   *time.Timer
	timerGen    uint64
	services    []*serviceEntry
	chars       map[bluetooth.AttributeHandle]*charEntry
	nextHandle  bluetooth.AttributeHandle
	peers       map[uint16]bluetooth.Device
	onConnected func(device bluetooth.Device, connected bool)
	onTimeout   func()
}

type serviceEntry struct {
	uuid  bluetooth.UUID
	chars []*charEntry
}

type charEntry struct {
	handle    bluetooth.AttributeHandle
	reg       bluetooth.CharacteristicRegistration
	notifiers map[ble.Notifier]struct{}
}

func newDevice(ctrl controller, db gattDB) *Device {
	return &Device{
		ctrl:  ctrl,
		db:    db,
		chars: map[bluetooth.AttributeHandle]*charEntry{},
		peers: map[uint16]bluetooth.Device{},
	}
}

// SetConnectHandler implements bluetooth.ConnectionNotifier.
func (d *Device) SetConnectHandler(handler func(device bluetooth.Device, connected bool)) {
	d.mu.Lock()
	d.onConnected = handler
	d.mu.Unlock()
}

// SetAdvertisingTimeoutHandler implements
// bluetooth.AdvertisingTimeoutNotifier.
func (d *Device) SetAdvertisingTimeoutHandler(handler func()) {
	d.mu.Lock()
	d.onTimeout = handler
	d.mu.Unlock()
}

func (d *Device) connected(addr [6]byte, random bool, handle uint16) {
	dev := bluetooth.Device{
		Address: bluetooth.Address{MAC: bluetooth.MAC(addr), IsRandom: random},
		Handle:  bluetooth.ConnectionHandle(handle),
	}
	d.mu.Lock()
	d.peers[handle] = dev
	cb := d.onConnected
	d.mu.Unlock()
	log.Infof("connect handler, peer: %s handle: %v", dev.Address.MAC, handle)
	if cb != nil {
		cb(dev, true)
	}
}

func (d *Device) disconnected(handle uint16) {
	d.mu.Lock()
	dev, ok := d.peers[handle]
	delete(d.peers, handle)
	cb := d.onConnected
	d.mu.Unlock()
	log.Infof("disconnected, handle: %v", handle)
	if !ok {
		dev.Handle = bluetooth.ConnectionHandle(handle)
	}
	if cb != nil {
		cb(dev, false)
	}
}

// peerOf returns the connected device behind a request.
func (d *Device) peerOf(conn ble.Conn) bluetooth.Device {
	if conn == nil || conn.RemoteAddr() == nil {
		return bluetooth.Device{}
	}
	mac, err := bluetooth.ParseMAC(conn.RemoteAddr().String())
	if err != nil {
		return bluetooth.Device{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dev := range d.peers {
		if dev.Address.MAC == mac {
			return dev
		}
	}
	return bluetooth.Device{Address: bluetooth.Address{MAC: mac}}
}

// SetAdvertisingData implements bluetooth.Radio.
func (d *Device) SetAdvertisingData(data []byte) error {
	d.mu.Lock()
	d.advData = data
	d.mu.Unlock()
	return nil
}

// SetScanResponseData implements bluetooth.Radio.
func (d *Device) SetScanResponseData(data []byte) error {
	d.mu.Lock()
	d.scanResp = data
	d.mu.Unlock()
	return nil
}

// StartAdvertising implements bluetooth.Radio. A non-zero timeout stops the
// advertisement from a timer, the controller has no notion of it.
func (d *Device) StartAdvertising(params bluetooth.AdvertisingParameters) error {
	d.mu.Lock()
	d.stopTimerLocked()
	ad, sr := d.advData, d.scanResp
	d.mu.Unlock()

	if err := d.ctrl.SetAdvertisingParameters(params); err != nil {
		return errors.Wrap(err, "cannot set advertising parameters")
	}
	if err := d.ctrl.SetAdvertisement(ad, sr); err != nil {
		return errors.Wrap(err, "cannot set advertisement")
	}
	if err := d.ctrl.Advertise(); err != nil {
		return errors.Wrap(err, "cannot advertise")
	}
	log.Tracef("advertising %x, scan response %x", ad, sr)

	if params.Timeout > 0 {
		timeout := time.Duration(params.Timeout) * 10 * time.Millisecond
		d.mu.Lock()
		d.stopTimerLocked()
		d.timerGen++
		gen := d.timerGen
		d.stopTimer = time.AfterFunc(timeout, func() { d.advertisingTimedOut(gen, timeout) })
		d.mu.Unlock()
	}
	return nil
}

// advertisingTimedOut stops the advertisement whose timer is generation gen,
// unless it was stopped or restarted in the meantime.
func (d *Device) advertisingTimedOut(gen uint64, timeout time.Duration) {
	d.mu.Lock()
	if d.stopTimer == nil || d.timerGen != gen {
		d.mu.Unlock()
		return
	}
	d.stopTimer = nil
	cb := d.onTimeout
	d.mu.Unlock()

	if err := d.ctrl.StopAdvertising(); err != nil {
		log.Errorf("cannot stop advertising after %v: %v", timeout, err)
	}
	if cb != nil {
		cb()
	}
}

// StopAdvertising implements bluetooth.Radio.
func (d *Device) StopAdvertising() error {
	d.mu.Lock()
	d.stopTimerLocked()
	d.mu.Unlock()
	return d.ctrl.StopAdvertising()
}

func (d *Device) stopTimerLocked() {
	if d.stopTimer != nil {
		d.stopTimer.Stop()
		d.stopTimer = nil
	}
}

// Register implements bluetooth.GattServer. The whole attribute table is
// handed to the GATT server again, so peers should rediscover services.
func (d *Device) Register(reg bluetooth.CharacteristicRegistration) (bluetooth.AttributeHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextHandle++
	entry := &charEntry{
		handle:    d.nextHandle,
		reg:       reg,
		notifiers: map[ble.Notifier]struct{}{},
	}
	var svc *serviceEntry
	for _, s := range d.services {
		if s.uuid.Equal(reg.Service) {
			svc = s
			break
		}
	}
	newService := svc == nil
	if newService {
		svc = &serviceEntry{uuid: reg.Service}
		d.services = append(d.services, svc)
	}
	svc.chars = append(svc.chars, entry)
	d.chars[entry.handle] = entry

	if err := d.db.SetServices(d.bleServices()); err != nil {
		delete(d.chars, entry.handle)
		svc.chars = svc.chars[:len(svc.chars)-1]
		if newService {
			d.services = d.services[:len(d.services)-1]
		}
		return 0, errors.Wrapf(err, "can't add service %s", reg.Service)
	}
	log.Debugf("characteristic %s added to service %s", reg.UUID, reg.Service)
	return entry.handle, nil
}

// Unregister implements bluetooth.GattServer.
func (d *Device) Unregister(handle bluetooth.AttributeHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.chars[handle]
	if !ok {
		return errors.Wrapf(bluetooth.ErrNotFound, "attribute handle 0x%04x", uint16(handle))
	}
	delete(d.chars, handle)
	for i, s := range d.services {
		if !s.uuid.Equal(entry.reg.Service) {
			continue
		}
		for j, c := range s.chars {
			if c == entry {
				s.chars = append(s.chars[:j], s.chars[j+1:]...)
				break
			}
		}
		if len(s.chars) == 0 {
			d.services = append(d.services[:i], d.services[i+1:]...)
		}
		break
	}
	for n := range entry.notifiers {
		n.Close()
	}
	return errors.Wrap(d.db.SetServices(d.bleServices()), "can't remove characteristic")
}

// Notify implements bluetooth.GattServer.
func (d *Device) Notify(handle bluetooth.AttributeHandle, value []byte) error {
	d.mu.Lock()
	entry, ok := d.chars[handle]
	var notifiers []ble.Notifier
	if ok {
		for n := range entry.notifiers {
			notifiers = append(notifiers, n)
		}
	}
	d.mu.Unlock()
	if !ok {
		return errors.Wrapf(bluetooth.ErrNotFound, "attribute handle 0x%04x", uint16(handle))
	}

	for _, n := range notifiers {
		if len(value) > n.Cap() {
			value = value[:n.Cap()]
		}
		if _, err := n.Write(value); err != nil {
			return errors.Wrapf(err, "cannot notify %s", entry.reg.UUID)
		}
	}
	return nil
}

// bleServices builds the go-ble view of the attribute table. Called with d.mu
// held.
func (d *Device) bleServices() []*ble.Service {
	svcs := make([]*ble.Service, 0, len(d.services))
	for _, s := range d.services {
		svc := ble.NewService(bleUUID(s.uuid))
		for _, entry := range s.chars {
			svc.AddCharacteristic(d.bleCharacteristic(entry))
		}
		svcs = append(svcs, svc)
	}
	return svcs
}

func (d *Device) bleCharacteristic(entry *charEntry) *ble.Characteristic {
	flags := entry.reg.Flags
	handler := entry.reg.Handler
	c := &ble.Characteristic{UUID: bleUUID(entry.reg.UUID)}

	if flags.Read() {
		c.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
			if _, err := rsp.Write(readAt(handler.ReadValue(), req.Offset(), rsp.Cap())); err != nil {
				log.Errorf("cannot respond to read of %s: %v", entry.reg.UUID, err)
			}
		}))
	}
	if flags.Write() || flags.WriteWithoutResponse() {
		c.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
			log.Tracef("got data: %x", req.Data())
			if err := handler.WriteValue(d.peerOf(req.Conn()), req.Data()); err != nil {
				log.Errorf("write to %s rejected: %v", entry.reg.UUID, err)
				rsp.SetStatus(ble.ErrWriteNotPerm)
			}
		}))
	}
	subscribe := ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
		d.subscribe(entry, n)
		<-n.Context().Done()
		d.unsubscribe(entry, n)
	})
	if flags.Notify() {
		c.HandleNotify(subscribe)
	}
	if flags.Indicate() {
		c.HandleIndicate(subscribe)
	}
	if entry.reg.Description != "" {
		descr := &ble.Descriptor{UUID: ble.UUID16(userDescriptionUUID)}
		descr.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
			rsp.Write(readAt([]byte(entry.reg.Description), req.Offset(), rsp.Cap()))
		}))
		c.AddDescriptor(descr)
	}
	c.Property = ble.Property(flags)
	return c
}

func (d *Device) subscribe(entry *charEntry, n ble.Notifier) {
	d.mu.Lock()
	entry.notifiers[n] = struct{}{}
	d.mu.Unlock()
	log.Debugf("peer subscribed to %s", entry.reg.UUID)
}

func (d *Device) unsubscribe(entry *charEntry, n ble.Notifier) {
	d.mu.Lock()
	delete(entry.notifiers, n)
	d.mu.Unlock()
	log.Debugf("peer unsubscribed from %s", entry.reg.UUID)
}

// readAt returns the part of value starting at offset that fits into limit
// bytes.
func readAt(value []byte, offset, limit int) []byte {
	if offset >= len(value) {
		return nil
	}
	value = value[offset:]
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
