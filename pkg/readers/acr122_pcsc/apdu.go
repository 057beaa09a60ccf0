package acr122pcsc

import (
	"fmt"

	"github.com/wizzomafizzo/figtool/pkg/mifare"
	"github.com/wizzomafizzo/figtool/pkg/readers"
)

const keySlot = 0x00

func transmit(tx transmitter, apdu []byte) ([]byte, error) {
	res, err := tx.Transmit(apdu)
	if err != nil {
		return nil, err
	} else if len(res) < 2 {
		return nil, fmt.Errorf("short apdu response: %x", res)
	}

	sw1, sw2 := res[len(res)-2], res[len(res)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, &SwError{SW1: sw1, SW2: sw2}
	}

	return res[:len(res)-2], nil
}

func getUID(tx transmitter) (*readers.Target, error) {
	res, err := transmit(tx, []byte{0xFF, 0xCA, 0x00, 0x00, 0x00})
	if err != nil {
		return nil, err
	} else if len(res) != mifare.UIDSize {
		return nil, fmt.Errorf("unsupported uid length: %d", len(res))
	}

	tgt := &readers.Target{}
	copy(tgt.UID[:], res)
	return tgt, nil
}

// authenticate loads the key into the reader's volatile slot and uses it
// on the block.
func authenticate(tx transmitter, block int, useKeyA bool, key mifare.Key) error {
	load := append([]byte{0xFF, 0x82, 0x00, keySlot, mifare.KeySize}, key[:]...)
	if _, err := transmit(tx, load); err != nil {
		return fmt.Errorf("loading key: %w", err)
	}

	keyType := byte(mifare.CmdAuthKeyB)
	if useKeyA {
		keyType = mifare.CmdAuthKeyA
	}

	_, err := transmit(tx, []byte{
		0xFF, 0x86, 0x00, 0x00, 0x05,
		0x01, 0x00, byte(block), keyType, keySlot,
	})
	if sw, ok := err.(*SwError); ok && sw.SW1 == 0x63 {
		return fmt.Errorf("%w: %s", mifare.ErrAuthFailed, sw)
	}
	return err
}

func readBlock(tx transmitter, block int) (mifare.Block, error) {
	var data mifare.Block

	res, err := transmit(tx, []byte{0xFF, 0xB0, 0x00, byte(block), mifare.BlockSize})
	if err != nil {
		return data, err
	} else if len(res) != mifare.BlockSize {
		return data, fmt.Errorf("unexpected read length: %d", len(res))
	}

	copy(data[:], res)
	return data, nil
}

func writeBlock(tx transmitter, block int, data mifare.Block) error {
	apdu := append([]byte{0xFF, 0xD6, 0x00, byte(block), mifare.BlockSize}, data[:]...)
	_, err := transmit(tx, apdu)
	return err
}
