package bluetooth

import "errors"

// fakeRadio records what the adapter hands to the radio.
type fakeRadio struct {
	advData      []byte
	scanResponse []byte
	params       AdvertisingParameters
	advertising  bool
	starts       int
	stops        int
	failStart    error

	onConnect func(device Device, connected bool)
	onTimeout func()
}

func (r *fakeRadio) SetAdvertisingData(data []byte) error {
	r.advData = data
	return nil
}

func (r *fakeRadio) SetScanResponseData(data []byte) error {
	r.scanResponse = data
	return nil
}

func (r *fakeRadio) StartAdvertising(params AdvertisingParameters) error {
	if r.failStart != nil {
		return r.failStart
	}
	r.params = params
	r.advertising = true
	r.starts++
	return nil
}

func (r *fakeRadio) StopAdvertising() error {
	r.advertising = false
	r.stops++
	return nil
}

func (r *fakeRadio) SetConnectHandler(handler func(device Device, connected bool)) {
	r.onConnect = handler
}

func (r *fakeRadio) SetAdvertisingTimeoutHandler(handler func()) {
	r.onTimeout = handler
}

type notification struct {
	handle AttributeHandle
	value  []byte
}

// fakeGatt is an in-memory attribute table.
type fakeGatt struct {
	next          AttributeHandle
	registered    map[AttributeHandle]CharacteristicRegistration
	notifications []notification
	failAfter     int
	failRemove    error
}

func newFakeGatt() *fakeGatt {
	return &fakeGatt{next: 0x10, registered: map[AttributeHandle]CharacteristicRegistration{}, failAfter: -1}
}

var errTableFull = errors.New("attribute table full")

func (g *fakeGatt) Register(reg CharacteristicRegistration) (AttributeHandle, error) {
	if g.failAfter == 0 {
		return 0, errTableFull
	}
	g.failAfter--
	g.next++
	g.registered[g.next] = reg
	return g.next, nil
}

func (g *fakeGatt) Unregister(handle AttributeHandle) error {
	if g.failRemove != nil {
		return g.failRemove
	}
	if _, ok := g.registered[handle]; !ok {
		return ErrNotFound
	}
	delete(g.registered, handle)
	return nil
}

func (g *fakeGatt) Notify(handle AttributeHandle, value []byte) error {
	g.notifications = append(g.notifications, notification{handle, value})
	return nil
}
