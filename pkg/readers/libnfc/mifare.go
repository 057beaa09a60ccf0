//go:build (linux || darwin) && cgo

package libnfc

import (
	"errors"
	"fmt"

	"github.com/clausecker/nfc/v2"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
)

func comm(dev transceiver, tx []byte, replySize int) ([]byte, error) {
	rx := make([]byte, replySize)

	n, err := dev.InitiatorTransceiveBytes(tx, rx, transceiveTimeout)
	if err != nil {
		return nil, err
	}

	return rx[:n], nil
}

func authenticate(dev transceiver, block int, uid mifare.UID, useKeyA bool, key mifare.Key) error {
	cmd := byte(mifare.CmdAuthKeyB)
	if useKeyA {
		cmd = mifare.CmdAuthKeyA
	}

	tx := append([]byte{cmd, byte(block)}, key[:]...)
	tx = append(tx, uid[:]...)

	_, err := comm(dev, tx, 1)
	if errors.Is(err, nfc.Error(nfc.EMFCAUTHFAIL)) {
		return fmt.Errorf("%w: %s", mifare.ErrAuthFailed, err)
	}
	return err
}

func readBlock(dev transceiver, block int) (mifare.Block, error) {
	var data mifare.Block

	rx, err := comm(dev, []byte{mifare.CmdRead, byte(block)}, mifare.BlockSize)
	if err != nil {
		return data, err
	} else if len(rx) != mifare.BlockSize {
		return data, fmt.Errorf("unexpected read length: %d", len(rx))
	}

	copy(data[:], rx)
	return data, nil
}

func writeBlock(dev transceiver, block int, data mifare.Block) error {
	_, err := comm(dev, append([]byte{mifare.CmdWrite, byte(block)}, data[:]...), 1)
	return err
}
