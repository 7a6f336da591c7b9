// Package bluetooth builds Bluetooth Low Energy advertising payloads and
// local GATT characteristics on top of a pluggable radio stack.
//
// Advertising data is kept in a fixed 31-byte buffer of length/type/value
// structures. iBeacon payloads, 16-bit and 128-bit UUIDs and characteristic
// values are encoded the way they go over the air.
//
// The goble and bluez subpackages provide stacks for Linux, through raw HCI
// sockets and through BlueZ over D-Bus respectively.
package bluetooth // import "github.com/advkit/bluetooth"
