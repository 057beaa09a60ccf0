package figure

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
)

// manufacturer bytes found in block 0 of figures
var figureManufacturer = [11]byte{0x81, 0x01, 0x0f, 0xc4, 0x22, 0x00, 0x00, 0x00, 0x00, 0x00, 0x15}

// Format turns a blank magic card still using factory keys into a figure
// of the given character. The UID is kept. The returned figure is
// decrypted and neither save area is selected.
func Format(t mifare.Transport, card *mifare.Card, charCode uint16, typeCode uint16) (*Figure, error) {
	if !card.IsMagic() {
		return nil, mifare.ErrNotMagic
	}

	f := New(card, false)

	zero, err := card.Block(0)
	if err != nil {
		return nil, err
	}
	copy(zero[mifare.OffsetManufacturer:], figureManufacturer[:])
	if err := card.ChangeBlockZero(t, zero, true); err != nil {
		return nil, fmt.Errorf("writing block 0: %w", err)
	}

	if err := f.SetCharacter(charCode, typeCode); err != nil {
		return nil, err
	}

	// blank save areas still have to be stored encrypted
	for b := 0; b < mifare.Blocks; b++ {
		if ShouldEncryptBlock(b) {
			if err := card.MarkDirty(b); err != nil {
				return nil, err
			}
		}
	}
	if err := f.UpdateChecksums(); err != nil {
		return nil, err
	}
	if err := f.Encrypt(); err != nil {
		return nil, err
	}
	if err := card.Update(t, true); err != nil {
		return nil, err
	}

	for s := 0; s < mifare.Sectors; s++ {
		key, err := CalcKeyA(card, s)
		if err != nil {
			return nil, err
		}
		if err := card.ChangeKeyA(t, s, key, true); err != nil {
			return nil, fmt.Errorf("setting key of sector %d: %w", s, err)
		}
	}

	if err := f.Decrypt(); err != nil {
		return nil, err
	}

	log.Info().Msgf("formatted figure %s as %04x/%04x", card.UID(), charCode, typeCode)
	return f, nil
}
