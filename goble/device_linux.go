//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	ble_linux "github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/go-ble/ble/linux/hci/evt"
	"github.com/pkg/errors"

	"github.com/advkit/bluetooth"
)

// hciController adds advertising parameters in bluetooth terms to the HCI.
type hciController struct {
	*hci.HCI
}

func (h hciController) SetAdvertisingParameters(params bluetooth.AdvertisingParameters) error {
	interval := hciAdvInterval(params.Interval)
	return h.SetAdvParams(cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin: interval,
		AdvertisingIntervalMax: interval,
		AdvertisingType:        hciAdvType(params.Type),
		AdvertisingChannelMap:  0x07,
	})
}

// Open opens the first HCI device and names it name.
func Open(name string) (*Device, error) {
	var d *Device
	ldev, err := ble_linux.NewDeviceWithName(name,
		ble.OptConnectHandler(func(e evt.LEConnectionComplete) {
			if d != nil {
				d.connected(e.PeerAddress(), e.PeerAddressType() == 0x01, e.ConnectionHandle())
			}
		}),
		ble.OptDisconnectHandler(func(e evt.DisconnectionComplete) {
			if d != nil {
				d.disconnected(e.ConnectionHandle())
			}
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cannot obtain device")
	}
	d = newDevice(hciController{ldev.HCI}, ldev)
	return d, nil
}
