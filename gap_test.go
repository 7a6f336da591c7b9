package bluetooth

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestCreateAdvertisementPayload(t *testing.T) {
	type testCase struct {
		raw    string
		parsed AdvertisementOptions
	}
	tests := []testCase{
		{
			raw:    "\x02\x01\x06", // flags
			parsed: AdvertisementOptions{},
		},
		{
			raw: "\x02\x01\x06", // flags
			parsed: AdvertisementOptions{
				// Interval doesn't affect the advertisement payload.
				Interval: NewAdvertiseInterval(100),
			},
		},
		{
			raw: "\x02\x01\x06" + // flags
				"\x07\x09foobar", // local name
			parsed: AdvertisementOptions{
				LocalName: "foobar",
			},
		},
		{
			raw: "\x02\x01\x06" + // flags
				"\x0b\x09Heart rate" + // local name
				"\x03\x03\x0d\x18", // service UUID
			parsed: AdvertisementOptions{
				LocalName: "Heart rate",
				ServiceUUIDs: []UUID{
					ServiceUUIDHeartRate,
				},
			},
		},
		{
			raw: "\x02\x01\x06" + // flags
				"\x0b\x09Heart rate" + // local name
				"\x05\x03\x0d\x18\x0f\x18", // heart rate and battery service UUIDs
			parsed: AdvertisementOptions{
				LocalName: "Heart rate",
				ServiceUUIDs: []UUID{
					ServiceUUIDHeartRate,
					ServiceUUIDBattery,
					ServiceUUIDHeartRate,
				},
			},
		},
		{
			raw: "\x02\x01\x06" + // flags
				"\x0B\x09\x44\x49\x59\x2D\x73\x65\x6E\x73\x6F\x72" + // local name
				"\x0A\x16\xD2\xFC\x40\x02\xC4\x09\x03\xBF\x13", // service data
			parsed: AdvertisementOptions{
				LocalName: "DIY-sensor",
				ServiceData: []ServiceDataElement{
					{UUID: New16BitUUID(0xFCD2), Data: []byte{0x40, 0x02, 0xC4, 0x09, 0x03, 0xBF, 0x13}},
				},
			},
		},
		{
			raw: "\x02\x01\x06" + // flags
				"\x05\xff\x59\x00\xca\xfe", // manufacturer data
			parsed: AdvertisementOptions{
				ManufacturerData: []ManufacturerDataElement{
					{CompanyID: 0x0059, Data: []byte{0xca, 0xfe}},
				},
			},
		},
	}
	for _, tc := range tests {
		expectedRaw := payloadOf(tc.raw)

		var raw AdvertisingData
		if err := raw.addFromOptions(tc.parsed); err != nil {
			t.Errorf("error when serializing options %#v: %v", tc.parsed, err)
			continue
		}
		if raw != expectedRaw {
			t.Errorf("error when serializing options: %#v\nexpected: %#v\nactual:   %#v\n", tc.parsed, tc.raw, string(raw.Bytes()))
		}
	}
}

func TestAdvertiseInterval(t *testing.T) {
	if i := NewAdvertiseInterval(100); i != 160 {
		t.Errorf("expected 160 units, got %d", i)
	}
	if d := NewAdvertiseInterval(100).Duration(); d != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %s", d)
	}
}

func TestAdvertisementStart(t *testing.T) {
	radio := &fakeRadio{}
	adv := NewAdapter(radio, nil).DefaultAdvertisement()

	if err := adv.Start(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(radio.advData, []byte{0x02, 0x01, 0x06}) {
		t.Errorf("expected flags only, got %x", radio.advData)
	}
	if radio.params.Interval != defaultAdvertiseInterval {
		t.Errorf("expected default interval, got %d", radio.params.Interval)
	}

	err := adv.Configure(AdvertisementOptions{
		LocalName: "sensor",
		Interval:  NewAdvertiseInterval(500),
		Type:      AdvertisingTypeScannableUndirected,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(radio.advData, []byte{0x02, 0x01, 0x06}) {
		t.Error("configure must not change a running advertisement")
	}

	if err := adv.Start(); err != nil {
		t.Fatal(err)
	}
	if radio.stops != 1 || radio.starts != 2 {
		t.Errorf("expected a restart, got %d stops and %d starts", radio.stops, radio.starts)
	}
	if string(radio.advData) != "\x02\x01\x06\x07\x09sensor" {
		t.Errorf("unexpected payload %x", radio.advData)
	}
	if radio.params.Type != AdvertisingTypeScannableUndirected || radio.params.Interval != 800 {
		t.Errorf("unexpected parameters %+v", radio.params)
	}

	if err := adv.Stop(); err != nil {
		t.Fatal(err)
	}
	if adv.Advertising() || radio.advertising {
		t.Error("advertisement still running")
	}
	if err := adv.Stop(); err != nil || radio.stops != 2 {
		t.Errorf("second stop must be a no-op, got %v with %d stops", err, radio.stops)
	}
}

func TestAdvertisementTimeout(t *testing.T) {
	radio := &fakeRadio{}
	adv := NewAdapter(radio, nil).DefaultAdvertisement()
	if radio.onTimeout == nil {
		t.Fatal("adapter did not install a timeout handler")
	}

	if err := adv.Start(); err != nil {
		t.Fatal(err)
	}
	radio.onTimeout()
	if adv.Advertising() {
		t.Error("still advertising after the timeout")
	}
	if err := adv.Stop(); err != nil || radio.stops != 0 {
		t.Errorf("stop after a timeout must be a no-op, got %v with %d stops", err, radio.stops)
	}
	if err := adv.Start(); err != nil {
		t.Fatal(err)
	}
	if !adv.Advertising() || radio.starts != 2 {
		t.Errorf("restart failed, %d starts", radio.starts)
	}
}

func TestAdvertisementCopiesPayload(t *testing.T) {
	radio := &fakeRadio{}
	adv := NewAdapter(radio, nil).DefaultAdvertisement()

	var data AdvertisingData
	data.AppendLocalName("abc")
	if err := adv.Configure(AdvertisementOptions{AdvertisingData: &data}); err != nil {
		t.Fatal(err)
	}
	data.AppendLocalName("changed")
	if err := adv.Start(); err != nil {
		t.Fatal(err)
	}
	if string(radio.advData) != "\x04\x09abc" {
		t.Errorf("unexpected payload %x", radio.advData)
	}
	radio.advData[2] = 'x'
	if b := adv.AdvertisingData(); string(b.Bytes()) != "\x04\x09abc" {
		t.Errorf("radio buffer aliases the advertisement: %x", b.Bytes())
	}
}

func TestAdvertisementConfigureInvalid(t *testing.T) {
	adv := NewAdapter(&fakeRadio{}, nil).DefaultAdvertisement()
	before := adv.AdvertisingData()

	err := adv.Configure(AdvertisementOptions{LocalName: "a name that does not fit into thirty one bytes"})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}
	broken := payloadOf("\x05\x09ab")
	if err := adv.Configure(AdvertisementOptions{ScanResponse: &broken}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if adv.AdvertisingData() != before {
		t.Error("failed configure changed the advertisement")
	}
}

func TestAdvertisementStartFailure(t *testing.T) {
	radio := &fakeRadio{failStart: ErrNotSupported}
	adv := NewAdapter(radio, nil).DefaultAdvertisement()
	if err := adv.Start(); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
	if adv.Advertising() {
		t.Error("advertising after a failed start")
	}
}

func TestAdvertiseIBeacon(t *testing.T) {
	radio := &fakeRadio{}
	adv := NewAdapter(radio, nil).DefaultAdvertisement()
	err := adv.AdvertiseIBeacon(IBeacon{Major: 1, Minor: 2, UUID: DefaultServiceUUID, MeasurePower: -59})
	if err != nil {
		t.Fatal(err)
	}
	if len(radio.advData) != 30 || radio.advData[len(radio.advData)-1] != 0xc5 {
		t.Errorf("unexpected iBeacon payload %x", radio.advData)
	}
	if len(radio.scanResponse) != 0 {
		t.Errorf("expected no scan response, got %x", radio.scanResponse)
	}
	if radio.params.Type.Connectable() {
		t.Error("iBeacon must not be connectable")
	}
}
