package pn532_uart

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
	"github.com/wizzomafizzo/figtool/pkg/readers"
)

const (
	cmdSamConfiguration    = 0x14
	cmdGetFirmwareVersion  = 0x02
	cmdGetGeneralStatus    = 0x04
	cmdInListPassiveTarget = 0x4A
	cmdInDataExchange      = 0x40
	hostToPn532            = 0xD4
	pn532ToHost            = 0xD5

	statusAuthError = 0x14
)

var (
	ackFrame        = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	nackFrame       = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
	ErrAckTimeout   = errors.New("timeout waiting for ACK")
	ErrNoFrameFound = errors.New("no frame found")
	ErrFrameTooBig  = errors.New("data too big for frame")
)

// port is the part of serial.Port the protocol needs.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
}

var statusMessages = map[byte]string{
	0x01: "target has not answered",
	0x02: "CRC error",
	0x03: "parity error",
	0x05: "framing error during mifare operation",
	0x07: "communication buffer too small",
	0x0B: "RF protocol error",
	0x10: "invalid parameter",
	0x13: "data format does not match the specification",
	0x14: "mifare authentication error",
	0x27: "command not acceptable in current context",
}

// StatusError is a non-zero status byte returned by the PN532 for a command
// sent to the target.
type StatusError struct {
	Code byte
}

func (e *StatusError) Error() string {
	msg, ok := statusMessages[e.Code]
	if !ok {
		msg = "unknown error"
	}
	return fmt.Sprintf("pn532 error %02x: %s", e.Code, msg)
}

// Unwrap lets an authentication failure match mifare.ErrAuthFailed.
func (e *StatusError) Unwrap() error {
	if e.Code == statusAuthError {
		return mifare.ErrAuthFailed
	}
	return nil
}

func writeAll(p port, data []byte, what string) error {
	n, err := p.Write(data)
	if err != nil {
		return err
	} else if n != len(data) {
		return fmt.Errorf("%s write error, not all bytes written", what)
	}
	return p.Drain()
}

func wakeUp(p port) error {
	// over uart, pn532 must be (to be safe) "woken up" by sending a 0x55
	// dummy byte and then waiting for some amount of time
	wake := make([]byte, 16)
	wake[0] = 0x55
	return writeAll(p, wake, "wakeup")
}

func sendAck(p port) error {
	return writeAll(p, ackFrame, "ack")
}

func sendNack(p port) error {
	return writeAll(p, nackFrame, "nack")
}

// Block and wait to receive an ACK frame on the serial port, returning any
// extra data that was received before the ACK frame. Data before the ACK frame
// is not to spec, but is an odd bug happening on Windows.
func waitAck(p port) ([]byte, error) {
	tries := 0
	maxTries := 64 // bytes to scan through

	buf := make([]byte, 1)
	ackBuf := make([]byte, 0)
	preAck := make([]byte, 0)

	for {
		if tries >= maxTries {
			return preAck, ErrAckTimeout
		}

		n, err := p.Read(buf)
		if err != nil {
			return preAck, err
		} else if n == 0 {
			tries++
			continue
		}

		ackBuf = append(ackBuf, buf[0])
		if len(ackBuf) < len(ackFrame) {
			continue
		}

		if bytes.Equal(ackBuf, ackFrame) {
			return preAck, nil
		}

		preAck = append(preAck, ackBuf[0])
		ackBuf = ackBuf[1:]
		tries++
	}
}

// buildFrame wraps a command in a normal information frame.
func buildFrame(cmd byte, args []byte) ([]byte, error) {
	data := append([]byte{hostToPn532, cmd}, args...)
	if len(data) > 255 {
		return nil, ErrFrameTooBig
	}

	dlen := byte(len(data))
	frm := []byte{0x00, 0x00, 0xFF, dlen, ^dlen + 1}

	checksum := byte(0)
	for _, b := range data {
		frm = append(frm, b)
		checksum += b
	}

	return append(frm, ^checksum+1, 0x00), nil
}

func sendFrame(p port, cmd byte, args []byte) ([]byte, error) {
	frm, err := buildFrame(cmd, args)
	if err != nil {
		return nil, err
	}

	if err := wakeUp(p); err != nil {
		return nil, err
	}

	if err := writeAll(p, frm, "frame"); err != nil {
		return nil, err
	}

	return waitAck(p)
}

// parseFrame finds a response frame in buf and returns its data, without
// the TFI byte.
func parseFrame(buf []byte) ([]byte, error) {
	// find middle of packet code (0x00 0xff) and skip preamble
	off := bytes.IndexByte(buf, 0xFF)
	if off < 0 || off+3 >= len(buf) {
		return nil, ErrNoFrameFound
	}
	off++

	frameLen := int(buf[off])
	if (frameLen+int(buf[off+1]))&0xFF != 0 {
		return nil, errors.New("invalid frame length")
	} else if frameLen == 0 || off+2+frameLen+1 > len(buf) {
		return nil, errors.New("truncated frame")
	}

	chk := byte(0)
	for _, b := range buf[off+2 : off+2+frameLen+1] {
		chk += b
	}
	if chk != 0 {
		return nil, errors.New("invalid frame checksum")
	}

	off += 2
	if buf[off] != pn532ToHost {
		return nil, fmt.Errorf("invalid TFI, expected PN532 to host, got: %x", buf[off])
	}
	off++

	data := make([]byte, frameLen-1)
	copy(data, buf[off:off+frameLen-1])
	return data, nil
}

// Read a single frame from the serial port, returning the data part of the
// frame. Optionally accepts data to prepend to the read buffer and
// treat as part of the potential frame.
func receiveFrame(p port, pre []byte) ([]byte, error) {
	tries := 0
	maxTries := 3

	for {
		buf := make([]byte, 255+7)
		n, err := p.Read(buf)
		if err != nil {
			return nil, err
		}
		buf = buf[:n]
		if tries == 0 {
			// prepend any leftover response from a skipped ACK
			buf = append(append([]byte{}, pre...), buf...)
		}

		data, err := parseFrame(buf)
		if errors.Is(err, ErrNoFrameFound) {
			return nil, err
		} else if err != nil {
			if tries >= maxTries {
				return nil, err
			}
			tries++
			log.Debug().Err(err).Msg("bad frame, sending NACK")
			if err := sendNack(p); err != nil {
				return nil, err
			}
			continue
		}

		log.Debug().Msgf("received frame data: %x", data)
		return data, nil
	}
}

func callCommand(p port, cmd byte, data []byte) ([]byte, error) {
	ackData, err := sendFrame(p, cmd, data)
	if err != nil {
		return nil, err
	}

	if len(ackData) > 0 {
		log.Debug().Msgf("pre ack data: %x", ackData)
	}

	time.Sleep(6 * time.Millisecond)

	res, err := receiveFrame(p, ackData)
	if err != nil {
		return nil, err
	}

	return res, sendAck(p)
}

func SamConfiguration(p port) error {
	log.Debug().Msg("running sam configuration")
	// sets pn532 to "normal" mode
	res, err := callCommand(p, cmdSamConfiguration, []byte{0x01, 0x14, 0x01})
	if err != nil {
		return err
	} else if len(res) != 1 || res[0] != 0x15 {
		return errors.New("unexpected sam configuration response")
	}
	return nil
}

type FirmwareVersion struct {
	Version          string
	SupportIso14443a bool
	SupportIso14443b bool
	SupportIso18092  bool
}

func GetFirmwareVersion(p port) (FirmwareVersion, error) {
	log.Debug().Msg("running getfirmwareversion")
	res, err := callCommand(p, cmdGetFirmwareVersion, []byte{})
	if err != nil {
		return FirmwareVersion{}, err
	} else if len(res) != 5 || res[0] != 0x03 {
		return FirmwareVersion{}, errors.New("unexpected firmware version response")
	}

	if res[1] != 0x32 {
		return FirmwareVersion{}, fmt.Errorf("unexpected IC: %x", res[1])
	}

	return FirmwareVersion{
		Version:          fmt.Sprintf("%d.%d", res[2], res[3]),
		SupportIso14443a: res[4]&0x01 == 0x01,
		SupportIso14443b: res[4]&0x02 == 0x02,
		SupportIso18092:  res[4]&0x04 == 0x04,
	}, nil
}

type GeneralStatus struct {
	LastError    byte
	FieldPresent bool
}

// Err returns the last error the PN532 recorded, or nil.
func (gs GeneralStatus) Err() error {
	if gs.LastError == 0 {
		return nil
	}
	return &StatusError{Code: gs.LastError}
}

func GetGeneralStatus(p port) (GeneralStatus, error) {
	log.Debug().Msg("running getgeneralstatus")
	res, err := callCommand(p, cmdGetGeneralStatus, []byte{})
	if err != nil {
		return GeneralStatus{}, err
	} else if len(res) < 4 || res[0] != 0x05 {
		return GeneralStatus{}, errors.New("unexpected general status response")
	}

	return GeneralStatus{
		LastError:    res[1],
		FieldPresent: res[2] == 0x01,
	}, nil
}

// InListPassiveTarget selects one ISO14443A card. Returns nil if no card is
// in the field.
func InListPassiveTarget(p port) (*readers.Target, error) {
	res, err := callCommand(p, cmdInListPassiveTarget, []byte{0x01, 0x00})
	if errors.Is(err, ErrNoFrameFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	} else if len(res) < 2 || res[0] != 0x4B {
		return nil, errors.New("unexpected passive target response")
	} else if res[1] != 0x01 {
		return nil, nil
	} else if len(res) < 7 {
		return nil, errors.New("short passive target response")
	}

	uidLen := int(res[6])
	if uidLen == 0 || len(res) < 7+uidLen {
		return nil, errors.New("invalid uid length")
	} else if uidLen != mifare.UIDSize {
		return nil, fmt.Errorf("unsupported uid length: %d", uidLen)
	}

	tgt := &readers.Target{
		Type: readers.TargetType([2]byte{res[3], res[4]}, res[5]),
	}
	copy(tgt.UID[:], res[7:7+uidLen])

	return tgt, nil
}

// InDataExchange sends a command to the selected target and returns the
// response data after the status byte.
func InDataExchange(p port, data []byte) ([]byte, error) {
	res, err := callCommand(p, cmdInDataExchange, append([]byte{0x01}, data...))
	if err != nil {
		return nil, err
	} else if len(res) < 2 || res[0] != 0x41 {
		return nil, errors.New("unexpected data exchange response")
	} else if res[1]&0x3F != 0x00 {
		return nil, &StatusError{Code: res[1] & 0x3F}
	}

	return res[2:], nil
}

func MifareAuthenticate(p port, block int, uid mifare.UID, useKeyA bool, key mifare.Key) error {
	cmd := byte(mifare.CmdAuthKeyB)
	if useKeyA {
		cmd = mifare.CmdAuthKeyA
	}

	args := append([]byte{cmd, byte(block)}, key[:]...)
	args = append(args, uid[:]...)

	_, err := InDataExchange(p, args)
	return err
}

func MifareRead(p port, block int) (mifare.Block, error) {
	var data mifare.Block

	res, err := InDataExchange(p, []byte{mifare.CmdRead, byte(block)})
	if err != nil {
		return data, err
	} else if len(res) != mifare.BlockSize {
		return data, fmt.Errorf("unexpected read length: %d", len(res))
	}

	copy(data[:], res)
	return data, nil
}

func MifareWrite(p port, block int, data mifare.Block) error {
	_, err := InDataExchange(p, append([]byte{mifare.CmdWrite, byte(block)}, data[:]...))
	return err
}
