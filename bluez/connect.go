package bluez

import (
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/advkit/bluetooth"
)

const (
	bluezDevice1Interface = "org.bluez.Device1"
	bluezDevice1Connected = "Connected"

	// Argument positions of the PropertiesChanged signal.
	dbusPropertiesChangedInterfaceName = 0
	dbusPropertiesChangedDictionary    = 1
)

var matchOptionsPropertiesChanged = []dbus.MatchOption{
	dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
	dbus.WithMatchMember("PropertiesChanged"),
	dbus.WithMatchArg(dbusPropertiesChangedInterfaceName, bluezDevice1Interface),
}

// SetConnectHandler implements bluetooth.ConnectionNotifier. BlueZ does not
// expose connection handles, reported devices carry the address only.
func (a *Advertiser) SetConnectHandler(handler func(device bluetooth.Device, connected bool)) {
	a.mu.Lock()
	a.onConnected = handler
	if a.sigCh != nil {
		a.mu.Unlock()
		return
	}
	if err := a.conn.AddMatchSignal(matchOptionsPropertiesChanged...); err != nil {
		a.mu.Unlock()
		log.Errorf("bluetooth: add dbus match signal: PropertiesChanged: %v", err)
		return
	}
	a.sigCh = make(chan *dbus.Signal, 10)
	a.done = make(chan struct{})
	a.conn.Signal(a.sigCh)
	go a.handleDBusSignals(a.sigCh, a.done)
	a.mu.Unlock()
}

// Close stops advertising and delivering connection events. The advertiser
// can be started again, but SetConnectHandler has to be called anew.
func (a *Advertiser) Close() error {
	err := a.StopAdvertising()

	a.mu.Lock()
	sigCh, done := a.sigCh, a.done
	a.sigCh, a.done = nil, nil
	a.mu.Unlock()
	if sigCh == nil {
		return err
	}
	if rerr := a.conn.RemoveMatchSignal(matchOptionsPropertiesChanged...); rerr != nil {
		log.Debugf("remove dbus match signal: %v", rerr)
	}
	a.conn.RemoveSignal(sigCh)
	close(sigCh)
	<-done
	return err
}

func (a *Advertiser) handleDBusSignals(sigCh <-chan *dbus.Signal, done chan<- struct{}) {
	defer close(done)
	for sig := range sigCh {
		device, connected, ok := parseConnectionSignal(sig)
		if !ok {
			continue
		}
		a.mu.Lock()
		cb := a.onConnected
		a.mu.Unlock()
		log.Infof("peer %s connected=%v", device.Address.MAC, connected)
		if cb != nil {
			cb(device, connected)
		}
	}
}

// parseConnectionSignal extracts a change of Device1.Connected.
func parseConnectionSignal(sig *dbus.Signal) (bluetooth.Device, bool, bool) {
	if len(sig.Body) <= dbusPropertiesChangedDictionary {
		return bluetooth.Device{}, false, false
	}
	if name, ok := sig.Body[dbusPropertiesChangedInterfaceName].(string); !ok || name != bluezDevice1Interface {
		return bluetooth.Device{}, false, false
	}
	changes, ok := sig.Body[dbusPropertiesChangedDictionary].(map[string]dbus.Variant)
	if !ok {
		return bluetooth.Device{}, false, false
	}
	variant, ok := changes[bluezDevice1Connected]
	if !ok {
		return bluetooth.Device{}, false, false
	}
	connected, ok := variant.Value().(bool)
	if !ok {
		return bluetooth.Device{}, false, false
	}
	mac, err := macFromPath(sig.Path)
	if err != nil {
		log.Debugf("ignoring signal from %s: %v", sig.Path, err)
		return bluetooth.Device{}, false, false
	}
	return bluetooth.Device{Address: bluetooth.Address{MAC: mac}}, connected, true
}

// macFromPath parses the address out of a device object path such as
// /org/bluez/hci0/dev_11_22_33_AA_BB_CC.
func macFromPath(path dbus.ObjectPath) (bluetooth.MAC, error) {
	s := string(path)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return bluetooth.MAC{}, errors.Wrapf(bluetooth.ErrInvalidInput, "not a device path: %s", path)
	}
	return bluetooth.ParseMAC(strings.ReplaceAll(s[i+len("/dev_"):], "_", ":"))
}
