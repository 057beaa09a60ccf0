/*
figtool
Copyright (C) 2024 Callan Barrett

This file is part of figtool.

figtool is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

figtool is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with figtool.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package figure handles the toy figure data stored on a MIFARE Classic
// card: key derivation, save area encryption, the checksum chain and the
// save data fields.
package figure

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
)

var (
	ErrNotEncryptable   = &mifare.Error{Kind: mifare.KindRange, Code: 0x0D, Msg: "block is not part of a save area"}
	ErrAlreadyEncrypted = &mifare.Error{Kind: mifare.KindState, Code: 0x0E, Msg: "figure is already encrypted"}
	ErrAlreadyDecrypted = &mifare.Error{Kind: mifare.KindState, Code: 0x0E, Msg: "figure is already decrypted"}
	ErrEncrypted        = &mifare.Error{Kind: mifare.KindState, Code: 0x0F, Msg: "figure must be decrypted first"}
	ErrChecksumMismatch = &mifare.Error{Kind: mifare.KindIntegrity, Code: 0x10, Msg: "checksum mismatch"}
	ErrUnknownChecksum  = &mifare.Error{Kind: mifare.KindRange, Code: 0x11, Msg: "unknown checksum type"}
	ErrNameTooLong      = &mifare.Error{Kind: mifare.KindRange, Code: 0x12, Msg: "name is longer than 15 characters"}
	ErrXPTooLarge       = &mifare.Error{Kind: mifare.KindRange, Code: 0x13, Msg: "xp value is too large"}
	ErrInvalidArea      = &mifare.Error{Kind: mifare.KindRange, Code: 0x16, Msg: "invalid save area"}
	ErrInvalidLevel     = &mifare.Error{Kind: mifare.KindRange, Msg: "invalid level"}
	ErrNoCurrentArea    = &mifare.Error{Kind: mifare.KindState, Msg: "save areas have equal counters"}
	ErrUnknownCharacter = &mifare.Error{Kind: mifare.KindRange, Msg: "unknown character"}
)

// Figure is a card holding figure data, along with whether its save areas
// are currently encrypted in memory.
type Figure struct {
	card      *mifare.Card
	encrypted bool
	area      int
}

// New wraps a card. Cards read from a real figure or loaded from a dump
// of one are encrypted.
func New(card *mifare.Card, encrypted bool) *Figure {
	return &Figure{
		card:      card,
		encrypted: encrypted,
	}
}

// Read loads a figure from a reader. Sector keys are derived from the UID.
func Read(t mifare.Transport, uid mifare.UID) (*Figure, error) {
	card := mifare.NewWithUID(uid)
	if err := CalcKeysA(card); err != nil {
		return nil, err
	}

	if err := card.Read(t, true); err != nil {
		return nil, err
	}

	log.Debug().Msgf("read figure %s", uid)
	return New(card, true), nil
}

func (f *Figure) Card() *mifare.Card {
	return f.card
}

func (f *Figure) IsEncrypted() bool {
	return f.encrypted
}

// Commit recomputes the checksums of a decrypted figure, encrypts it and
// writes the dirty blocks back to the card. A change to the header
// re-encrypts and writes both save areas.
func (f *Figure) Commit(t mifare.Transport) error {
	if !f.encrypted {
		if err := f.UpdateChecksums(); err != nil {
			return err
		}
		// save area keys are derived from blocks 0 and 1
		dirty := f.card.Dirty()
		if dirty.IsDirty(0) || dirty.IsDirty(1) {
			for b := 0; b < mifare.Blocks; b++ {
				if !ShouldEncryptBlock(b) {
					continue
				}
				if err := f.card.MarkDirty(b); err != nil {
					return err
				}
			}
		}
		if err := f.Encrypt(); err != nil {
			return err
		}
	}

	if err := f.card.Update(t, true); err != nil {
		return fmt.Errorf("writing figure: %w", err)
	}

	return nil
}

// LoadBackup restores the save data of a dump file onto the figure. The
// dump must have been taken from the same card.
func (f *Figure) LoadBackup(path string) error {
	src, err := mifare.LoadFile(path)
	if err != nil {
		return err
	}
	return f.card.Restore(src.Blocks())
}
