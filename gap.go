package bluetooth

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// AdvertisingEventType is the kind of advertising PDU sent.
type AdvertisingEventType uint8

// Advertising event types.
const (
	AdvertisingTypeConnectableScannableUndirected AdvertisingEventType = iota
	AdvertisingTypeConnectableUndirected
	AdvertisingTypeConnectableDirected
	AdvertisingTypeNonConnectableUndirected
	AdvertisingTypeNonConnectableDirected
	AdvertisingTypeScannableUndirected
	AdvertisingTypeScannableDirected
)

// Connectable reports whether peers may connect in response to the
// advertisement.
func (t AdvertisingEventType) Connectable() bool {
	return t <= AdvertisingTypeConnectableDirected
}

// Scannable reports whether the scan response payload is sent.
func (t AdvertisingEventType) Scannable() bool {
	switch t {
	case AdvertisingTypeConnectableScannableUndirected, AdvertisingTypeScannableUndirected, AdvertisingTypeScannableDirected:
		return true
	}
	return false
}

// AdvertiseInterval is the advertisement interval in 0.625ms units.
type AdvertiseInterval uint32

// NewAdvertiseInterval returns a new advertisement interval, based on an
// interval in milliseconds.
func NewAdvertiseInterval(intervalMillis uint32) AdvertiseInterval {
	// Convert an interval to units of 0.625ms.
	return AdvertiseInterval(intervalMillis * 8 / 5)
}

// Duration returns the interval as a time.Duration.
func (i AdvertiseInterval) Duration() time.Duration {
	return time.Duration(i) * 625 * time.Microsecond
}

// defaultAdvertiseInterval is 100ms.
const defaultAdvertiseInterval AdvertiseInterval = 160

// AdvertisingParameters is handed to the radio when advertising starts.
type AdvertisingParameters struct {
	Interval AdvertiseInterval
	// Timeout in units of 10ms, zero advertises until stopped.
	Timeout uint16
	Type    AdvertisingEventType
}

// AdvertisementOptions configures everything related to BLE advertisements.
//
// When AdvertisingData is nil the payload is built from the flags, LocalName,
// ServiceUUIDs, ServiceData and ManufacturerData, in that order.
type AdvertisementOptions struct {
	AdvertisingData *AdvertisingData
	ScanResponse    *AdvertisingData

	LocalName        string
	ServiceUUIDs     []UUID
	ServiceData      []ServiceDataElement
	ManufacturerData []ManufacturerDataElement

	Interval AdvertiseInterval
	Timeout  uint16
	Type     AdvertisingEventType
}

// Advertisement encapsulates a single advertisement instance.
type Advertisement struct {
	adapter      *Adapter
	params       AdvertisingParameters
	advData      AdvertisingData
	scanResponse AdvertisingData

	mu          sync.Mutex
	advertising bool
}

// DefaultAdvertisement returns the default advertisement instance. It starts
// out with just the flags structure.
func (a *Adapter) DefaultAdvertisement() *Advertisement {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.defaultAdvertisement == nil {
		adv := &Advertisement{
			adapter: a,
			params:  AdvertisingParameters{Interval: defaultAdvertiseInterval},
		}
		// 3 bytes into an empty payload, cannot fail.
		_, _ = adv.advData.AppendFlags(defaultAdvertisementFlags)
		a.defaultAdvertisement = adv
	}
	return a.defaultAdvertisement
}

// addFromOptions builds the payload described by the options.
func (buf *AdvertisingData) addFromOptions(options AdvertisementOptions) error {
	if _, err := buf.AppendFlags(defaultAdvertisementFlags); err != nil {
		return err
	}
	if options.LocalName != "" {
		if _, err := buf.AppendLocalName(options.LocalName); err != nil {
			return err
		}
	}
	for i, u := range options.ServiceUUIDs {
		if u.isIn(options.ServiceUUIDs[:i]) {
			continue
		}
		if _, err := buf.AppendServiceUUID(u, false); err != nil {
			return err
		}
	}
	for _, el := range options.ServiceData {
		if _, err := buf.AppendServiceData(el); err != nil {
			return err
		}
	}
	for _, md := range options.ManufacturerData {
		b := make([]byte, 0, len(md.Data)+2)
		b = append(b, byte(md.CompanyID), byte(md.CompanyID>>8))
		if _, err := buf.AppendCustomData(append(b, md.Data...), false); err != nil {
			return err
		}
	}
	return nil
}

// Configure this advertisement. The payloads are only handed to the radio by
// Start, so a running advertisement keeps its old payload until restarted.
func (a *Advertisement) Configure(options AdvertisementOptions) error {
	var advData, scanResponse AdvertisingData
	if options.AdvertisingData != nil {
		advData = *options.AdvertisingData
	} else if err := advData.addFromOptions(options); err != nil {
		return errors.Wrap(err, "advertising data")
	}
	if options.ScanResponse != nil {
		scanResponse = *options.ScanResponse
	}
	if err := advData.Validate(); err != nil {
		return errors.Wrap(err, "advertising data")
	}
	if err := scanResponse.Validate(); err != nil {
		return errors.Wrap(err, "scan response")
	}

	a.advData = advData
	a.scanResponse = scanResponse
	a.params = AdvertisingParameters{
		Interval: options.Interval,
		Timeout:  options.Timeout,
		Type:     options.Type,
	}
	if a.params.Interval == 0 {
		a.params.Interval = defaultAdvertiseInterval
	}
	return nil
}

// AdvertiseIBeacon replaces the advertising data with an iBeacon payload and
// starts advertising it as a non-connectable advertisement.
func (a *Advertisement) AdvertiseIBeacon(beacon IBeacon) error {
	advData, err := NewIBeaconAdvertisingData(beacon)
	if err != nil {
		return err
	}
	a.advData = advData
	a.scanResponse.Clear()
	a.params.Type = AdvertisingTypeNonConnectableUndirected
	if a.params.Interval == 0 {
		a.params.Interval = defaultAdvertiseInterval
	}
	return a.Start()
}

// AdvertisingData returns a copy of the configured advertising payload.
func (a *Advertisement) AdvertisingData() AdvertisingData {
	return a.advData
}

// ScanResponse returns a copy of the configured scan response payload.
func (a *Advertisement) ScanResponse() AdvertisingData {
	return a.scanResponse
}

// Parameters returns the configured advertising parameters.
func (a *Advertisement) Parameters() AdvertisingParameters {
	return a.params
}

// Start advertisement. The radio receives copies of the payloads. If the
// advertisement is already running it is stopped and restarted with the
// current payloads.
func (a *Advertisement) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	radio := a.adapter.radio
	if a.advertising {
		if err := radio.StopAdvertising(); err != nil {
			return errors.Wrap(err, "restart advertising")
		}
		a.advertising = false
	}
	if err := radio.SetAdvertisingData(a.advData.Bytes()); err != nil {
		return errors.Wrap(err, "set advertising data")
	}
	if err := radio.SetScanResponseData(a.scanResponse.Bytes()); err != nil {
		return errors.Wrap(err, "set scan response data")
	}
	if err := radio.StartAdvertising(a.params); err != nil {
		return errors.Wrap(err, "start advertising")
	}
	a.advertising = true
	logger.WithField("interval", a.params.Interval.Duration()).Debugf("advertising %x", a.advData.Bytes())
	return nil
}

// Stop advertisement. Stopping an advertisement that is not running is a
// no-op.
func (a *Advertisement) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.advertising {
		return nil
	}
	if err := a.adapter.radio.StopAdvertising(); err != nil {
		return errors.Wrap(err, "stop advertising")
	}
	a.advertising = false
	logger.Debug("advertising stopped")
	return nil
}

// Advertising reports whether Start succeeded and neither Stop nor the
// advertising timeout has ended it since.
func (a *Advertisement) Advertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.advertising
}
