//go:build (linux || darwin) && cgo

package libnfc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clausecker/nfc/v2"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/config"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
	"github.com/wizzomafizzo/figtool/pkg/readers"
	"github.com/wizzomafizzo/figtool/pkg/utils"
)

const (
	connectMaxTries    = 10
	timesToPoll        = 1
	periodBetweenPolls = 250 * time.Millisecond
	transceiveTimeout  = 0
)

var supportedCardTypes = []nfc.Modulation{
	{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106},
}

// transceiver is the part of nfc.Device used to talk to a selected card.
type transceiver interface {
	InitiatorTransceiveBytes(tx, rx []byte, timeout int) (int, error)
}

type Reader struct {
	cfg  *config.UserConfig
	conn string
	pnd  *nfc.Device
	dev  transceiver
}

func NewReader(cfg *config.UserConfig) *Reader {
	return &Reader{
		cfg: cfg,
	}
}

func (r *Reader) Ids() []string {
	return []string{"libnfc"}
}

// Open takes "libnfc:" followed by a libnfc connection string, such as
// "libnfc:pn532_uart:/dev/ttyUSB0" or "libnfc:acr122_usb:".
func (r *Reader) Open(device string) error {
	_, conn, err := utils.SplitConnection(device, r.Ids())
	if err != nil {
		return err
	}

	pnd, err := openDeviceWithRetries(conn)
	if err != nil {
		return err
	}

	r.conn = device
	r.pnd = &pnd
	r.dev = pnd

	return nil
}

func (r *Reader) Close() error {
	if r.pnd == nil {
		return nil
	}
	err := r.pnd.Close()
	r.pnd = nil
	r.dev = nil
	return err
}

func (r *Reader) Detect(connected []string) string {
	if r.cfg == nil || !r.cfg.GetProbeDevice() {
		return ""
	}

	device := detectConnectionString()
	if device == "" || utils.Contains(connected, device) {
		return ""
	}

	return device
}

func (r *Reader) Device() string {
	return r.conn
}

func (r *Reader) Connected() bool {
	return r.pnd != nil && r.pnd.Connection() != ""
}

func (r *Reader) Info() string {
	if !r.Connected() {
		return ""
	}
	return "libnfc (" + r.pnd.String() + ")"
}

func detectConnectionString() string {
	log.Info().Msg("probing for serial devices")
	devices, err := utils.GetSerialDeviceList()
	if err != nil {
		log.Error().Err(err).Msg("failed to get serial ports")
	}

	for _, device := range devices {
		conn := "pn532_uart:" + device
		log.Info().Msgf("trying %s", conn)
		pnd, err := nfc.Open(conn)
		if err == nil {
			log.Info().Msgf("success using serial: %s", conn)
			_ = pnd.Close()
			return "libnfc:" + conn
		}
	}

	return ""
}

func openDeviceWithRetries(conn string) (nfc.Device, error) {
	log.Info().Msgf("connecting to device: %s", conn)

	tries := 0
	for {
		pnd, err := nfc.Open(conn)
		if err == nil {
			log.Info().Msgf("successful connect after %d tries", tries)
			log.Info().Msgf("device name: %s", pnd.String())

			if err := pnd.InitiatorInit(); err != nil {
				_ = pnd.Close()
				return pnd, fmt.Errorf("could not init initiator: %w", err)
			}

			return pnd, nil
		}

		if tries >= connectMaxTries {
			log.Error().Msgf("could not open device after %d tries: %s", connectMaxTries, err)
			return pnd, err
		}

		tries++
	}
}

func (r *Reader) Target() (*readers.Target, error) {
	if r.pnd == nil {
		return nil, ErrNotConnected
	}

	count, target, err := r.pnd.InitiatorPollTarget(supportedCardTypes, timesToPoll, periodBetweenPolls)
	if errors.Is(err, nfc.Error(nfc.ETIMEOUT)) || count <= 0 {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if count > 1 {
		log.Info().Msg("more than one card on the reader")
	}

	card, ok := target.(*nfc.ISO14443aTarget)
	if !ok {
		return nil, fmt.Errorf("unsupported target: %s", strings.TrimSpace(target.String()))
	} else if card.UIDLen != mifare.UIDSize {
		return nil, fmt.Errorf("unsupported uid length: %d", card.UIDLen)
	}

	tgt := &readers.Target{
		Type: readers.TargetType(card.Atqa, card.Sak),
	}
	copy(tgt.UID[:], card.UID[:card.UIDLen])

	log.Debug().Msgf("target: %s %s", tgt.Type, tgt.UID)
	return tgt, nil
}

func (r *Reader) AuthenticateBlock(block int, uid mifare.UID, useKeyA bool, key mifare.Key) error {
	if r.dev == nil {
		return ErrNotConnected
	}
	return authenticate(r.dev, block, uid, useKeyA, key)
}

func (r *Reader) ReadBlock(block int) (mifare.Block, error) {
	if r.dev == nil {
		return mifare.Block{}, ErrNotConnected
	}
	return readBlock(r.dev, block)
}

func (r *Reader) WriteBlock(block int, data mifare.Block) error {
	if r.dev == nil {
		return ErrNotConnected
	}
	return writeBlock(r.dev, block, data)
}
