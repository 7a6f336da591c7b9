package bluez

import (
	"github.com/muka/go-bluetooth/bluez/profile/gatt"
	"github.com/pkg/errors"
	"gopkg.in/check.v1"

	"github.com/advkit/bluetooth"
)

type exportedChar struct {
	id    uint16
	reg   bluetooth.CharacteristicRegistration
	read  func() ([]byte, error)
	write func(value []byte) error
	sent  [][]byte
}

func (c *exportedChar) setValue(value []byte) error {
	c.sent = append(c.sent, value)
	return nil
}

// fakeApp keeps exported characteristics in memory.
type fakeApp struct {
	chars  []*exportedChar
	fail   error
	runs   int
	closes int
}

func (a *fakeApp) exportCharacteristic(id uint16, reg bluetooth.CharacteristicRegistration,
	read func() ([]byte, error), write func(value []byte) error) (valueNotifier, error) {
	if a.fail != nil {
		return nil, a.fail
	}
	c := &exportedChar{id: id, reg: reg, read: read, write: write}
	a.chars = append(a.chars, c)
	return c, nil
}

func (a *fakeApp) Run() error { a.runs++; return nil }
func (a *fakeApp) Close()     { a.closes++ }

type storedValue struct {
	data []byte
}

func (v *storedValue) ReadValue() []byte { return v.data }

func (v *storedValue) WriteValue(peer bluetooth.Device, data []byte) error {
	v.data = append([]byte(nil), data...)
	return nil
}

type gattSuite struct{}

var _ = check.Suite(&gattSuite{})

func (s *gattSuite) TestRegister(c *check.C) {
	app := &fakeApp{}
	server := newGattServer(app)
	level := &storedValue{data: []byte{80}}

	handle, err := server.Register(bluetooth.CharacteristicRegistration{
		Service: bluetooth.ServiceUUIDBattery,
		UUID:    bluetooth.CharacteristicUUIDBatteryLevel,
		Flags:   bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission,
		Handler: level,
	})
	c.Assert(err, check.IsNil)
	c.Assert(app.chars, check.HasLen, 1)
	exported := app.chars[0]
	c.Check(exported.id, check.Equals, uint16(handle))

	data, err := exported.read()
	c.Assert(err, check.IsNil)
	c.Check(data, check.DeepEquals, []byte{80})
	c.Assert(exported.write([]byte{75}), check.IsNil)
	c.Check(level.data, check.DeepEquals, []byte{75})

	c.Assert(server.Run(), check.IsNil)
	c.Check(app.runs, check.Equals, 1)
	c.Check(server.Close(), check.IsNil)
	c.Check(app.closes, check.Equals, 1)
}

func (s *gattSuite) TestUnregister(c *check.C) {
	app := &fakeApp{}
	server := newGattServer(app)
	level := &storedValue{data: []byte{80}}
	handle, err := server.Register(bluetooth.CharacteristicRegistration{
		Service: bluetooth.ServiceUUIDBattery,
		UUID:    bluetooth.CharacteristicUUIDBatteryLevel,
		Flags:   bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission,
		Handler: level,
	})
	c.Assert(err, check.IsNil)

	c.Assert(server.Unregister(handle), check.IsNil)
	exported := app.chars[0]
	_, err = exported.read()
	c.Check(errors.Is(err, bluetooth.ErrReleased), check.Equals, true)
	err = exported.write([]byte{1})
	c.Check(errors.Is(err, bluetooth.ErrReleased), check.Equals, true)
	c.Check(level.data, check.DeepEquals, []byte{80})

	err = server.Unregister(handle)
	c.Check(errors.Is(err, bluetooth.ErrNotFound), check.Equals, true)
	err = server.Notify(handle, []byte{1})
	c.Check(errors.Is(err, bluetooth.ErrNotFound), check.Equals, true)
	c.Check(exported.sent, check.HasLen, 0)
}

func (s *gattSuite) TestNotify(c *check.C) {
	app := &fakeApp{}
	server := newGattServer(app)
	handle, err := server.Register(bluetooth.CharacteristicRegistration{
		Service: bluetooth.ServiceUUIDHeartRate,
		UUID:    bluetooth.CharacteristicUUIDHeartRateMeasurement,
		Flags:   bluetooth.CharacteristicNotifyPermission,
		Handler: &storedValue{},
	})
	c.Assert(err, check.IsNil)

	c.Assert(server.Notify(handle, []byte{0, 60}), check.IsNil)
	c.Assert(server.Notify(handle, []byte{0, 61}), check.IsNil)
	c.Check(app.chars[0].sent, check.DeepEquals, [][]byte{{0, 60}, {0, 61}})

	err = server.Notify(handle+1, []byte{0})
	c.Check(errors.Is(err, bluetooth.ErrNotFound), check.Equals, true)
}

func (s *gattSuite) TestRegisterFailure(c *check.C) {
	app := &fakeApp{fail: errors.New("cannot add service")}
	server := newGattServer(app)
	_, err := server.Register(bluetooth.CharacteristicRegistration{
		Service: bluetooth.ServiceUUIDBattery,
		UUID:    bluetooth.CharacteristicUUIDBatteryLevel,
		Handler: &storedValue{},
	})
	c.Check(err, check.Equals, app.fail)
	c.Check(server.chars, check.HasLen, 0)
}

func (s *gattSuite) TestCharacteristicFlags(c *check.C) {
	c.Check(characteristicFlags(0), check.HasLen, 0)
	c.Check(characteristicFlags(bluetooth.CharacteristicReadPermission|bluetooth.CharacteristicNotifyPermission),
		check.DeepEquals, []string{gatt.FlagCharacteristicRead, gatt.FlagCharacteristicNotify})
	c.Check(characteristicFlags(bluetooth.CharacteristicBroadcastPermission|
		bluetooth.CharacteristicWriteWithoutResponsePermission|
		bluetooth.CharacteristicWritePermission|
		bluetooth.CharacteristicIndicatePermission),
		check.DeepEquals, []string{
			gatt.FlagCharacteristicBroadcast,
			gatt.FlagCharacteristicWriteWithoutResponse,
			gatt.FlagCharacteristicWrite,
			gatt.FlagCharacteristicIndicate,
		})
}
