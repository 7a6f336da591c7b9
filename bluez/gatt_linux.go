//go:build linux

package bluez

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/api/service"
	"github.com/muka/go-bluetooth/bluez/profile/agent"
	"github.com/muka/go-bluetooth/bluez/profile/gatt"
	"github.com/pkg/errors"

	"github.com/advkit/bluetooth"
)

// NewGattServer creates the GATT application on adapter id (such as hci0).
func NewGattServer(id string) (*GattServer, error) {
	app, err := service.NewApp(service.AppOptions{
		AdapterID: id,
		AgentCaps: agent.CapNoInputNoOutput,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create GATT application")
	}

	if !app.Adapter().Properties.Powered {
		if err := app.Adapter().SetPowered(true); err != nil {
			app.Close()
			return nil, errors.Wrap(err, "cannot power on adapter")
		}
	}
	return newGattServer(&mukaApp{
		app:      app,
		services: make(map[string]*service.Service),
	}), nil
}

// mukaApp exports characteristics through go-bluetooth's service.App.
type mukaApp struct {
	app      *service.App
	services map[string]*service.Service
}

func (m *mukaApp) Run() error { return m.app.Run() }
func (m *mukaApp) Close()     { m.app.Close() }

func (m *mukaApp) exportCharacteristic(id uint16, reg bluetooth.CharacteristicRegistration,
	read func() ([]byte, error), write func(value []byte) error) (valueNotifier, error) {
	svc, ok := m.services[reg.Service.String()]
	if !ok {
		var err error
		svc, err = m.app.NewService(fmt.Sprintf("%04X", id))
		if err != nil {
			return nil, errors.Wrap(err, "cannot create service")
		}
		// The application derives UUIDs from its own base; use ours.
		svc.Properties.UUID = reg.Service.String()
		if err := m.app.AddService(svc); err != nil {
			return nil, errors.Wrap(err, "cannot add service")
		}
		m.services[reg.Service.String()] = svc
	}

	char, err := svc.NewChar(fmt.Sprintf("%04X", id))
	if err != nil {
		return nil, errors.Wrap(err, "cannot create characteristic")
	}
	char.Properties.UUID = reg.UUID.String()
	char.Properties.Flags = characteristicFlags(reg.Flags)
	char.OnRead(func(c *service.Char, options map[string]interface{}) ([]byte, error) {
		return read()
	})
	char.OnWrite(func(c *service.Char, value []byte) ([]byte, error) {
		if err := write(value); err != nil {
			return nil, err
		}
		return value, nil
	})

	if reg.Description != "" {
		descr, err := char.NewDescr("2901")
		if err != nil {
			return nil, errors.Wrap(err, "cannot create descriptor")
		}
		descr.Properties.UUID = bluetooth.New16BitUUID(userDescriptionUUID).String()
		descr.Properties.Flags = []string{gatt.FlagDescriptorRead}
		description := []byte(reg.Description)
		descr.OnRead(service.DescrReadCallback(func(c *service.Descr, options map[string]interface{}) ([]byte, error) {
			return description, nil
		}))
		if err := char.AddDescr(descr); err != nil {
			return nil, errors.Wrap(err, "cannot add descriptor")
		}
	}

	if err := svc.AddChar(char); err != nil {
		return nil, errors.Wrap(err, "cannot add characteristic")
	}
	return mukaChar{char}, nil
}

type mukaChar struct {
	char *service.Char
}

// setValue updates the exported Value property. The property is declared
// with emit, so a PropertiesChanged signal goes out and BlueZ forwards it to
// peers that enabled notifications.
func (c mukaChar) setValue(value []byte) error {
	c.char.Properties.Value = value
	props := c.char.DBusProperties()
	if props == nil || props.Instance() == nil {
		return errors.Wrap(bluetooth.ErrNotSupported, "characteristic is not exported")
	}
	if err := props.Instance().Set(gatt.GattCharacteristic1Interface, "Value", dbus.MakeVariant(value)); err != nil {
		return err
	}
	return nil
}
