package figure

import (
	"crypto/aes"
	"crypto/md5"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/crc"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
)

const aesSeedSize = 0x56

var (
	sectorZeroKey = mifare.Key{0x4b, 0x0b, 0x20, 0x10, 0x7c, 0xcb}
	aesSeedSuffix = " Copyright (C) 2010 Activision. All Rights Reserved. "
)

func inRange(v, lo, hi int) bool {
	return v >= lo && v <= hi
}

// ShouldEncryptBlock reports whether a block is encrypted on a figure. Only
// data blocks inside the two save areas are.
func ShouldEncryptBlock(block int) bool {
	return mifare.IsDataBlock(block) &&
		(inRange(block, 0x08, 0x15) || inRange(block, 0x24, 0x31))
}

// KeyA derives the Key A of a sector from the card UID.
func KeyA(uid mifare.UID, sector int) (mifare.Key, error) {
	var key mifare.Key
	if !mifare.IsValidSector(sector) {
		return key, fmt.Errorf("%w: %d", mifare.ErrInvalidSector, sector)
	}

	if sector == 0 {
		return sectorZeroKey, nil
	}

	seed := append(uid[:], byte(sector))
	copy(key[:], crc.Swap(crc.KeyA.Compute(seed)))
	return key, nil
}

func CalcKeyA(card *mifare.Card, sector int) (mifare.Key, error) {
	return KeyA(card.UID(), sector)
}

// CalcKeysA stores the derived Key A of every sector in the card's cache.
func CalcKeysA(card *mifare.Card) error {
	for s := 0; s < mifare.Sectors; s++ {
		key, err := CalcKeyA(card, s)
		if err != nil {
			return err
		}
		if err := card.SetKeyA(s, key); err != nil {
			return err
		}
	}
	return nil
}

// AESKey returns the key a save area block is encrypted with: the MD5 of
// blocks 0 and 1, the block number and a fixed string.
func AESKey(card *mifare.Card, block int) ([16]byte, error) {
	if !ShouldEncryptBlock(block) {
		return [16]byte{}, fmt.Errorf("%w: %d", ErrNotEncryptable, block)
	}

	seed := make([]byte, aesSeedSize)
	blocks := card.Blocks()
	copy(seed[0x00:], blocks[0][:])
	copy(seed[0x10:], blocks[1][:])
	seed[0x20] = byte(block)
	copy(seed[0x21:], aesSeedSuffix)

	return md5.Sum(seed), nil
}

func (f *Figure) cryptBlock(block int, encrypt bool) error {
	key, err := AESKey(f.card, block)
	if err != nil {
		return err
	}

	c, err := aes.NewCipher(key[:])
	if err != nil {
		return err
	}

	in, err := f.card.Block(block)
	if err != nil {
		return err
	}

	var out mifare.Block
	if encrypt {
		c.Encrypt(out[:], in[:])
	} else {
		c.Decrypt(out[:], in[:])
	}

	return f.card.ReplaceBlock(block, out)
}

func (f *Figure) crypt(encrypt bool) error {
	for b := 0; b < mifare.Blocks; b++ {
		if !ShouldEncryptBlock(b) {
			continue
		}
		if err := f.cryptBlock(b, encrypt); err != nil {
			return err
		}
	}
	f.encrypted = encrypt
	return nil
}

// Encrypt encrypts both save areas in memory. Dirty flags are left alone.
func (f *Figure) Encrypt() error {
	if f.encrypted {
		return ErrAlreadyEncrypted
	}
	log.Debug().Msg("encrypting figure")
	return f.crypt(true)
}

// Decrypt decrypts both save areas in memory.
func (f *Figure) Decrypt() error {
	if !f.encrypted {
		return ErrAlreadyDecrypted
	}
	log.Debug().Msg("decrypting figure")
	return f.crypt(false)
}
