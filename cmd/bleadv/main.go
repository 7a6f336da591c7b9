// Command bleadv builds BLE advertising payloads and optionally advertises
// them on a local controller.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/advkit/bluetooth"
	"github.com/advkit/bluetooth/bluez"
	"github.com/advkit/bluetooth/goble"
)

type options struct {
	HCI     string `long:"hci" default:"hci0" description:"Adapter used by the bluez backend"`
	Backend string `short:"b" long:"backend" default:"none" choice:"none" choice:"goble" choice:"bluez" description:"Stack used to advertise, none only prints the payloads"`

	Name         string   `short:"n" long:"name" description:"Complete local name"`
	Services     []string `short:"s" long:"service" description:"Service UUID, may be repeated"`
	Manufacturer string   `short:"m" long:"manufacturer" description:"Manufacturer data as hex, company ID first (little endian)"`

	IBeaconUUID string `long:"ibeacon-uuid" description:"Advertise an iBeacon with this proximity UUID"`
	Major       uint16 `long:"major" description:"iBeacon major"`
	Minor       uint16 `long:"minor" description:"iBeacon minor"`
	Power       int8   `long:"power" default:"-59" description:"iBeacon measured power at 1m, in dBm"`

	Text string `short:"t" long:"text" description:"Serve a readable, writable and notifying characteristic in the default service holding this text"`

	Interval    uint32 `short:"i" long:"interval" default:"100" description:"Advertising interval in milliseconds"`
	Connectable bool   `short:"c" long:"connectable" description:"Accept connections"`
	Verbose     []bool `short:"v" long:"verbose" description:"More logging, repeat for trace output"`
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	switch len(opts.Verbose) {
	case 0:
	case 1:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.TraceLevel)
	}
	bluetooth.SetLogger(log.StandardLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	radio, gatt, err := openBackend(opts, out)
	if err != nil {
		return err
	}
	return serve(ctx, opts, radio, gatt)
}

// serve adds the requested characteristics, starts advertising and waits
// for ctx. Backends that can be closed are closed on return.
func serve(ctx context.Context, opts options, radio bluetooth.Radio, gatt bluetooth.GattServer) error {
	if c, ok := radio.(io.Closer); ok {
		defer c.Close()
	}
	if c, ok := gatt.(io.Closer); ok {
		defer c.Close()
	}
	adapter := bluetooth.NewAdapter(radio, gatt)
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		log.Infof("%s connected=%v", device.Address.MAC, connected)
	})

	if opts.Text != "" {
		char, err := addTextCharacteristic(adapter, opts.Text)
		if err != nil {
			return err
		}
		defer char.Release()
	}
	// Applications exported over D-Bus are only visible once all services
	// are in place.
	if r, ok := gatt.(interface{ Run() error }); ok {
		if err := r.Run(); err != nil {
			return errors.Wrap(err, "cannot register GATT application")
		}
	}

	adv := adapter.DefaultAdvertisement()
	beacon, advOpts, err := buildOptions(opts)
	if err != nil {
		return err
	}
	if beacon != nil {
		err = adv.AdvertiseIBeacon(*beacon)
	} else if err = adv.Configure(advOpts); err == nil {
		err = adv.Start()
	}
	if err != nil {
		return err
	}
	if opts.Backend == "none" {
		return nil
	}

	log.Infof("advertising on %s, interrupt to stop", opts.Backend)
	<-ctx.Done()
	return adv.Stop()
}

func openBackend(opts options, out io.Writer) (bluetooth.Radio, bluetooth.GattServer, error) {
	switch opts.Backend {
	case "goble":
		dev, err := goble.Open(opts.Name)
		if err != nil {
			return nil, nil, err
		}
		return dev, dev, nil
	case "bluez":
		adv, err := bluez.Open(opts.HCI)
		if err != nil {
			return nil, nil, err
		}
		gatt, err := bluez.NewGattServer(opts.HCI)
		if err != nil {
			adv.Close()
			return nil, nil, err
		}
		return adv, gatt, nil
	}
	return &printRadio{out: out}, nil, nil
}

// addTextCharacteristic serves text in the default service. Peers may
// overwrite it, subscribers are notified of every change.
func addTextCharacteristic(adapter *bluetooth.Adapter, text string) (*bluetooth.Characteristic, error) {
	var char bluetooth.Characteristic
	added, err := adapter.AddCharacteristic(bluetooth.CharacteristicConfig{
		Handle:      &char,
		Description: "bleadv text",
		Value:       []byte(text),
		Flags: bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission |
			bluetooth.CharacteristicNotifyPermission,
		OnDataReceived: func(data []byte, peer bluetooth.Device) {
			log.Infof("%s wrote %q", peer.Address.MAC, data)
			if err := char.Notify(); err != nil {
				log.Warnf("cannot notify text change: %v", err)
			}
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "--text")
	}
	// char holds its own reference.
	if err := added.Release(); err != nil {
		return nil, err
	}
	return &char, nil
}

// buildOptions turns the command line into either an iBeacon or regular
// advertisement options.
func buildOptions(opts options) (*bluetooth.IBeacon, bluetooth.AdvertisementOptions, error) {
	advOpts := bluetooth.AdvertisementOptions{
		LocalName: opts.Name,
		Interval:  bluetooth.NewAdvertiseInterval(opts.Interval),
		Type:      bluetooth.AdvertisingTypeNonConnectableUndirected,
	}
	if opts.Connectable {
		advOpts.Type = bluetooth.AdvertisingTypeConnectableScannableUndirected
	}

	if opts.IBeaconUUID != "" {
		u, err := bluetooth.ParseUUID(opts.IBeaconUUID)
		if err != nil {
			return nil, advOpts, errors.Wrap(err, "--ibeacon-uuid")
		}
		return &bluetooth.IBeacon{
			UUID:         u,
			Major:        opts.Major,
			Minor:        opts.Minor,
			MeasurePower: opts.Power,
		}, advOpts, nil
	}

	for _, s := range opts.Services {
		u, err := parseServiceUUID(s)
		if err != nil {
			return nil, advOpts, errors.Wrapf(err, "--service %s", s)
		}
		advOpts.ServiceUUIDs = append(advOpts.ServiceUUIDs, u)
	}
	if opts.Manufacturer != "" {
		b, err := hex.DecodeString(strings.ReplaceAll(opts.Manufacturer, ":", ""))
		if err != nil || len(b) < 2 {
			return nil, advOpts, errors.Wrapf(bluetooth.ErrInvalidInput, "--manufacturer %s", opts.Manufacturer)
		}
		advOpts.ManufacturerData = append(advOpts.ManufacturerData, bluetooth.ManufacturerDataElement{
			CompanyID: uint16(b[0]) | uint16(b[1])<<8,
			Data:      b[2:],
		})
	}
	return nil, advOpts, nil
}

// parseServiceUUID accepts 16-bit UUIDs as four hex digits next to the full
// textual form.
func parseServiceUUID(s string) (bluetooth.UUID, error) {
	if len(s) != 4 {
		return bluetooth.ParseUUID(s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return bluetooth.UUID{}, errors.Wrap(bluetooth.ErrInvalidInput, "failed to parse UUID")
	}
	return bluetooth.New16BitUUID(uint16(b[0])<<8 | uint16(b[1])), nil
}

// printRadio writes the payloads it is given instead of sending them.
type printRadio struct {
	out    io.Writer
	ad, sr []byte
}

func (r *printRadio) SetAdvertisingData(data []byte) error {
	r.ad = data
	return nil
}

func (r *printRadio) SetScanResponseData(data []byte) error {
	r.sr = data
	return nil
}

func (r *printRadio) StartAdvertising(params bluetooth.AdvertisingParameters) error {
	fmt.Fprintf(r.out, "advertising data: %x\n", r.ad)
	if len(r.sr) > 0 {
		fmt.Fprintf(r.out, "scan response:    %x\n", r.sr)
	}
	fmt.Fprintf(r.out, "interval:         %v\n", params.Interval.Duration())
	return nil
}

func (r *printRadio) StopAdvertising() error {
	return nil
}
