//go:build !linux

package goble

import (
	"github.com/pkg/errors"

	"github.com/advkit/bluetooth"
)

// Open is only implemented on Linux.
func Open(name string) (*Device, error) {
	return nil, errors.Wrap(bluetooth.ErrNotSupported, "HCI sockets need Linux")
}
