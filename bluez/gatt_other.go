//go:build !linux

package bluez

import (
	"github.com/pkg/errors"

	"github.com/advkit/bluetooth"
)

// NewGattServer is only implemented on Linux.
func NewGattServer(id string) (*GattServer, error) {
	return nil, errors.Wrap(bluetooth.ErrNotSupported, "BlueZ needs Linux")
}
