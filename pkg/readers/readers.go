package readers

import (
	"github.com/wizzomafizzo/figtool/pkg/mifare"
)

const (
	TypeMifare = "MIFARE"
	TypeNTAG   = "NTAG"
)

// Target is a card selected on a reader.
type Target struct {
	Type string
	UID  mifare.UID
}

type Reader interface {
	mifare.Transport
	// Ids returns the connection string prefixes handled by the reader.
	Ids() []string
	// Open any necessary connections to the device. Takes a device
	// connection string.
	Open(string) error
	// Close any open connections to the device.
	Close() error
	// Detect attempts to search for a connected device and returns the device
	// connection string. If no device is found, an empty string is returned.
	// Takes a list of currently connected device strings.
	Detect([]string) string
	// Device returns the device connection string.
	Device() string
	// Connected returns true if the device is connected and active.
	Connected() bool
	// Info returns a string with information about the connected device.
	Info() string
	// Target selects the card on the reader. Returns nil if there is none.
	Target() (*Target, error)
}

// TargetType identifies a card from its ATQA and SAK.
func TargetType(atqa [2]byte, sak byte) string {
	if atqa == [2]byte{0x00, 0x04} && sak == 0x08 {
		// https://www.nxp.com/docs/en/application-note/AN10833.pdf page 9
		return TypeMifare
	} else if atqa == [2]byte{0x00, 0x44} && sak == 0x00 {
		return TypeNTAG
	}
	return ""
}
