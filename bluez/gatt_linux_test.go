//go:build linux

package bluez

import (
	"gopkg.in/check.v1"
)

func (s *gattSuite) TestNewGattServer(c *check.C) {
	server, err := NewGattServer("hci0")
	if err != nil {
		c.Skip("no BlueZ adapter: " + err.Error())
	}
	_, ok := server.app.(*mukaApp)
	c.Check(ok, check.Equals, true)
	c.Check(server.Close(), check.IsNil)
}
