package acr122pcsc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ebfe/scard"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/config"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
	"github.com/wizzomafizzo/figtool/pkg/readers"
	"github.com/wizzomafizzo/figtool/pkg/utils"
)

var (
	ErrNotConnected = errors.New("reader is not connected")
	ErrNoCard       = errors.New("no card selected")
)

// transmitter is the part of scard.Card used to exchange APDUs.
type transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// SwError is a status word other than 90 00.
type SwError struct {
	SW1 byte
	SW2 byte
}

func (e *SwError) Error() string {
	return fmt.Sprintf("apdu failed: %02x %02x", e.SW1, e.SW2)
}

type Acr122Pcsc struct {
	cfg    *config.UserConfig
	device string
	name   string
	ctx    *scard.Context
	card   *scard.Card
	tx     transmitter
}

func NewAcr122Pcsc(cfg *config.UserConfig) *Acr122Pcsc {
	return &Acr122Pcsc{
		cfg: cfg,
	}
}

func (r *Acr122Pcsc) Ids() []string {
	return []string{"acr122_pcsc"}
}

// Open takes the PC/SC reader name, e.g.
// "acr122_pcsc:ACS ACR122U PICC Interface 00 00".
func (r *Acr122Pcsc) Open(device string) error {
	_, name, err := utils.SplitConnection(device, r.Ids())
	if err != nil {
		return err
	}

	if r.ctx == nil {
		ctx, err := scard.EstablishContext()
		if err != nil {
			return err
		}
		r.ctx = ctx
	}

	rs, err := r.ctx.ListReaders()
	if err != nil {
		return err
	} else if !utils.Contains(rs, name) {
		return fmt.Errorf("pcsc reader not found: %s", name)
	}

	r.device = device
	r.name = name

	return nil
}

func (r *Acr122Pcsc) disconnect() {
	if r.card != nil {
		if err := r.card.Disconnect(scard.LeaveCard); err != nil {
			log.Debug().Err(err).Msg("failed to disconnect card")
		}
	}
	r.card = nil
	r.tx = nil
}

func (r *Acr122Pcsc) Close() error {
	r.disconnect()
	r.device = ""
	if r.ctx != nil {
		err := r.ctx.Release()
		r.ctx = nil
		return err
	}
	return nil
}

func (r *Acr122Pcsc) Detect(connected []string) string {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return ""
	}
	defer func() {
		_ = ctx.Release()
	}()

	rs, err := ctx.ListReaders()
	if err != nil {
		log.Debug().Msgf("error listing pcsc readers: %s", err)
		return ""
	}

	log.Debug().Msgf("detected pcsc readers: %v", rs)

	for _, name := range rs {
		device := r.Ids()[0] + ":" + name
		if strings.Contains(name, "ACR122") && !utils.Contains(connected, device) {
			return device
		}
	}

	return ""
}

func (r *Acr122Pcsc) Device() string {
	return r.device
}

func (r *Acr122Pcsc) Connected() bool {
	return r.ctx != nil && r.device != ""
}

func (r *Acr122Pcsc) Info() string {
	return "ACR122U PC/SC (" + r.name + ")"
}

// atrType reads the card name from a PC/SC storage card ATR.
func atrType(atr []byte) string {
	if len(atr) < 15 || atr[0] != 0x3B {
		return ""
	}
	switch {
	case atr[13] == 0x00 && atr[14] == 0x01:
		return readers.TypeMifare
	case atr[13] == 0x00 && atr[14] == 0x03:
		return readers.TypeNTAG
	}
	return ""
}

func (r *Acr122Pcsc) Target() (*readers.Target, error) {
	if !r.Connected() {
		return nil, ErrNotConnected
	}

	r.disconnect()
	card, err := r.ctx.Connect(r.name, scard.ShareShared, scard.ProtocolAny)
	if errors.Is(err, scard.ErrNoSmartcard) || errors.Is(err, scard.ErrRemovedCard) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	r.card = card
	r.tx = card

	status, err := card.Status()
	if err != nil {
		return nil, err
	}

	tgt, err := getUID(r.tx)
	if err != nil {
		return nil, err
	}
	tgt.Type = atrType(status.Atr)

	log.Debug().Msgf("target: %s %s", tgt.Type, tgt.UID)
	return tgt, nil
}

func (r *Acr122Pcsc) AuthenticateBlock(block int, uid mifare.UID, useKeyA bool, key mifare.Key) error {
	if r.tx == nil {
		return ErrNoCard
	}
	return authenticate(r.tx, block, useKeyA, key)
}

func (r *Acr122Pcsc) ReadBlock(block int) (mifare.Block, error) {
	if r.tx == nil {
		return mifare.Block{}, ErrNoCard
	}
	return readBlock(r.tx, block)
}

func (r *Acr122Pcsc) WriteBlock(block int, data mifare.Block) error {
	if r.tx == nil {
		return ErrNoCard
	}
	return writeBlock(r.tx, block, data)
}
