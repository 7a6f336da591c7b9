package bluetooth

import (
	"sync"

	"github.com/pkg/errors"
)

// Adapter is a local Bluetooth device on top of a radio stack. It owns the
// default advertisement and the locally registered characteristics.
type Adapter struct {
	radio Radio
	gatt  GattServer

	mu                   sync.Mutex
	connectHandler       func(device Device, connected bool)
	defaultAdvertisement *Advertisement
	nextCharacteristicID uint16
}

// NewAdapter returns an adapter driving the given stack. gatt may be nil for
// an advertising-only device.
func NewAdapter(radio Radio, gatt GattServer) *Adapter {
	a := &Adapter{
		radio:          radio,
		gatt:           gatt,
		connectHandler: func(device Device, connected bool) {},
	}
	if n, ok := radio.(ConnectionNotifier); ok {
		n.SetConnectHandler(a.connected)
	} else if n, ok := gatt.(ConnectionNotifier); ok {
		n.SetConnectHandler(a.connected)
	}
	if n, ok := radio.(AdvertisingTimeoutNotifier); ok {
		n.SetAdvertisingTimeoutHandler(a.advertisingTimedOut)
	}
	return a
}

func (a *Adapter) advertisingTimedOut() {
	a.mu.Lock()
	adv := a.defaultAdvertisement
	a.mu.Unlock()
	logger.Debug("advertising timed out")
	if adv != nil {
		adv.mu.Lock()
		adv.advertising = false
		adv.mu.Unlock()
	}
}

// SetConnectHandler sets a handler function to be called whenever a peer
// connects or disconnects.
func (a *Adapter) SetConnectHandler(c func(device Device, connected bool)) {
	a.mu.Lock()
	a.connectHandler = c
	a.mu.Unlock()
}

func (a *Adapter) connected(device Device, connected bool) {
	logger.WithField("peer", device.Address.MAC.String()).Debugf("connected=%v", connected)
	a.mu.Lock()
	handler := a.connectHandler
	a.mu.Unlock()
	handler(device, connected)
}

// AddService registers all characteristics of the service. Characteristic
// configs with a Handle get it filled in. Either all characteristics are
// registered or none.
func (a *Adapter) AddService(service *Service) error {
	if !service.UUID.IsValid() {
		return errors.Wrap(ErrInvalidInput, "service UUID")
	}
	added := make([]*Characteristic, 0, len(service.Characteristics))
	for i := range service.Characteristics {
		char, err := a.addCharacteristic(service.UUID, service.Characteristics[i])
		if err != nil {
			for _, c := range added {
				if err := c.Release(); err != nil {
					logger.WithError(err).Debug("cannot release characteristic on rollback")
				}
			}
			return err
		}
		added = append(added, char)
	}
	for i, char := range added {
		if handle := service.Characteristics[i].Handle; handle != nil {
			*handle = *char
		}
	}
	return nil
}

// AddCharacteristic registers a single characteristic in the default service.
// A config without UUID gets one derived from DefaultServiceUUID.
func (a *Adapter) AddCharacteristic(config CharacteristicConfig) (*Characteristic, error) {
	char, err := a.addCharacteristic(DefaultServiceUUID, config)
	if err != nil {
		return nil, err
	}
	if config.Handle != nil {
		*config.Handle = *char.Clone()
	}
	return char, nil
}

func (a *Adapter) addCharacteristic(service UUID, config CharacteristicConfig) (*Characteristic, error) {
	if a.gatt == nil {
		return nil, errors.Wrap(ErrNotSupported, "no GATT server")
	}
	uuid := config.UUID
	if !uuid.IsValid() {
		a.mu.Lock()
		a.nextCharacteristicID++
		id := a.nextCharacteristicID
		a.mu.Unlock()
		uuid = NewUUIDFromBase(DefaultServiceUUID.Bytes(LSB), id, LSB)
	}

	rec := &characteristicRecord{
		refs:           1,
		gatt:           a.gatt,
		uuid:           uuid,
		service:        service,
		description:    config.Description,
		permissions:    config.Flags,
		onDataReceived: config.OnDataReceived,
	}
	rec.len = EncodeRaw(rec.value[:], config.Value)

	handle, err := a.gatt.Register(CharacteristicRegistration{
		Service:     service,
		UUID:        uuid,
		Description: config.Description,
		Flags:       config.Flags,
		Handler:     rec,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "register characteristic %s", uuid)
	}
	rec.handle = handle
	logger.WithField("uuid", uuid.String()).Debugf("registered characteristic, handle 0x%04x", uint16(handle))
	return &Characteristic{rec: rec}, nil
}
