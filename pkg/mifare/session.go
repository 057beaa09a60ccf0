package mifare

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Authenticate unlocks a sector on the card using the cached key of the
// requested type.
func (c *Card) Authenticate(t Transport, sector int, useKeyA bool) error {
	if err := checkSector(sector); err != nil {
		return err
	}

	key := c.keysB[sector]
	if useKeyA {
		key = c.keysA[sector]
	}

	block := SectorTrailer(sector)
	err := t.AuthenticateBlock(block, c.uid, useKeyA, key)
	if err != nil {
		return &TransportError{Op: "authenticate", Block: block, Err: err}
	}

	return nil
}

// ReadSector replaces the memory image of a sector with what is on the card.
// Key A always reads back as zeros, so the cached Key A is put back into the
// trailer. Key B is taken from the card as read, except when it was the key
// used to authenticate.
func (c *Card) ReadSector(t Transport, sector int, useKeyA bool) error {
	if err := c.Authenticate(t, sector, useKeyA); err != nil {
		return err
	}

	var read [BlocksInSector]Block
	first := SectorFirstBlock(sector)
	for i := range read {
		data, err := t.ReadBlock(first + i)
		if err != nil {
			return &TransportError{Op: "read", Block: first + i, Err: err}
		}
		read[i] = data
	}

	for i, data := range read {
		c.data[first+i] = data
		c.dirty.Clear(first + i)
	}

	tr := &c.data[SectorTrailer(sector)]
	copy(tr[OffsetKeyA:], c.keysA[sector][:])
	if !useKeyA {
		copy(tr[OffsetKeyB:], c.keysB[sector][:])
	}
	c.dataToParams(sector)

	if sector == 0 {
		copy(c.uid[:], c.data[0][:UIDSize])
	}

	log.Debug().Msgf("read sector %d", sector)
	return nil
}

// Read loads every sector from the card, stopping at the first failure.
func (c *Card) Read(t Transport, useKeyA bool) error {
	for s := 0; s < Sectors; s++ {
		if err := c.ReadSector(t, s, useKeyA); err != nil {
			return fmt.Errorf("reading sector %d: %w", s, err)
		}
	}
	return nil
}

// UpdateSector writes the dirty blocks of one sector back to the card with
// a single authentication. Data blocks go first and the trailer, if dirty,
// is written last. A block's dirty flag is cleared only after its write
// succeeds.
func (c *Card) UpdateSector(t Transport, sector int, useKeyA bool) error {
	if err := checkSector(sector); err != nil {
		return err
	}

	dirty := c.dirty.InSector(sector)
	if len(dirty) == 0 {
		return nil
	}

	if err := c.Authenticate(t, sector, useKeyA); err != nil {
		return err
	}

	for _, b := range dirty {
		log.Debug().Msgf("writing block %d", b)
		err := t.WriteBlock(b, c.data[b])
		if err != nil {
			return &TransportError{Op: "write", Block: b, Err: err}
		}
		c.dirty.Clear(b)
	}

	return nil
}

// Update writes every dirty block back to the card. Sectors with no dirty
// blocks are not touched.
func (c *Card) Update(t Transport, useKeyA bool) error {
	for s := 0; s < Sectors; s++ {
		if err := c.UpdateSector(t, s, useKeyA); err != nil {
			return fmt.Errorf("updating sector %d: %w", s, err)
		}
	}
	return nil
}

// changeTrailer writes a modified trailer to the card immediately. The memory
// image and cache only change once the write has succeeded.
func (c *Card) changeTrailer(
	t Transport,
	sector int,
	authKeyIsA bool,
	splice func(tr *Block),
) error {
	if err := checkSector(sector); err != nil {
		return err
	}

	block := SectorTrailer(sector)
	tr := c.data[block]
	copy(tr[OffsetKeyA:], c.keysA[sector][:])
	copy(tr[OffsetAccessBits:], c.accessBits[sector][:])
	tr[OffsetSpareByte] = c.spareBytes[sector]
	copy(tr[OffsetKeyB:], c.keysB[sector][:])
	splice(&tr)

	if err := c.Authenticate(t, sector, authKeyIsA); err != nil {
		return err
	}

	log.Debug().Msgf("writing trailer of sector %d", sector)
	if err := t.WriteBlock(block, tr); err != nil {
		return &TransportError{Op: "write", Block: block, Err: err}
	}

	c.data[block] = tr
	c.dataToParams(sector)
	c.dirty.Clear(block)
	return nil
}

// ChangeKeyA replaces Key A of a sector on the card.
func (c *Card) ChangeKeyA(t Transport, sector int, key Key, authKeyIsA bool) error {
	return c.changeTrailer(t, sector, authKeyIsA, func(tr *Block) {
		copy(tr[OffsetKeyA:], key[:])
	})
}

// ChangeKeyB replaces Key B of a sector on the card.
func (c *Card) ChangeKeyB(t Transport, sector int, key Key, authKeyIsA bool) error {
	return c.changeTrailer(t, sector, authKeyIsA, func(tr *Block) {
		copy(tr[OffsetKeyB:], key[:])
	})
}

// ChangeAccessBits replaces the access conditions of a sector on the card.
func (c *Card) ChangeAccessBits(t Transport, sector int, bits AccessBits, authKeyIsA bool) error {
	return c.changeTrailer(t, sector, authKeyIsA, func(tr *Block) {
		copy(tr[OffsetAccessBits:], bits[:])
	})
}

// ChangeBlockZero rewrites the UID and manufacturer block of a magic card.
// The BCC is always recomputed from the new UID.
func (c *Card) ChangeBlockZero(t Transport, data Block, useKeyA bool) error {
	if !c.magic {
		return ErrNotMagic
	}

	var uid UID
	copy(uid[:], data[:UIDSize])
	data[OffsetBCC] = CalcBCC(uid)

	if err := c.Authenticate(t, 0, useKeyA); err != nil {
		return err
	}

	log.Debug().Msgf("writing block 0 with uid %s", uid)
	if err := t.WriteBlock(0, data); err != nil {
		return &TransportError{Op: "write", Block: 0, Err: err}
	}

	c.data[0] = data
	c.uid = uid
	c.dirty.Clear(0)
	return nil
}

// ChangeUID rewrites only the UID of a magic card, keeping the manufacturer
// bytes.
func (c *Card) ChangeUID(t Transport, uid UID, useKeyA bool) error {
	if !c.magic {
		return ErrNotMagic
	}
	data := c.data[0]
	copy(data[:UIDSize], uid[:])
	return c.ChangeBlockZero(t, data, useKeyA)
}

// Clone copies a full card image onto a freshly reset magic card. Data and
// block 0 are written while the factory key still works. Trailers are
// changed last, per sector Key B then Key A then access bits, all
// authenticated with Key A.
func (c *Card) Clone(t Transport, src [Blocks]Block) error {
	if !c.magic {
		return ErrNotMagic
	}

	for b := 1; b < Blocks; b++ {
		if IsDataBlock(b) {
			c.data[b] = src[b]
			c.dirty.Mark(b)
		}
	}

	for s := 0; s < Sectors; s++ {
		c.keysA[s] = DefaultKey
		c.keysB[s] = DefaultKey
		c.accessBits[s] = DefaultAccessBits
		c.spareBytes[s] = DefaultSpareByte
		c.paramsToData(s)
	}

	if err := c.Update(t, true); err != nil {
		return fmt.Errorf("cloning data: %w", err)
	}

	if err := c.ChangeBlockZero(t, src[0], true); err != nil {
		return fmt.Errorf("cloning block 0: %w", err)
	}

	for s := 0; s < Sectors; s++ {
		tr := src[SectorTrailer(s)]

		var keyA, keyB Key
		var bits AccessBits
		copy(keyA[:], tr[OffsetKeyA:])
		copy(keyB[:], tr[OffsetKeyB:])
		copy(bits[:], tr[OffsetAccessBits:])
		c.spareBytes[s] = tr[OffsetSpareByte]

		if err := c.ChangeKeyB(t, s, keyB, true); err != nil {
			return fmt.Errorf("cloning key b of sector %d: %w", s, err)
		}
		if err := c.ChangeKeyA(t, s, keyA, true); err != nil {
			return fmt.Errorf("cloning key a of sector %d: %w", s, err)
		}
		if err := c.ChangeAccessBits(t, s, bits, true); err != nil {
			return fmt.Errorf("cloning access bits of sector %d: %w", s, err)
		}
	}

	log.Info().Msgf("cloned card %s", c.uid)
	return nil
}

// Restore loads the data blocks from sector 1 onwards of a backup image
// and marks them dirty. The backup must come from this card.
func (c *Card) Restore(src [Blocks]Block) error {
	var uid UID
	copy(uid[:], src[0][:UIDSize])
	if uid != c.uid {
		return fmt.Errorf("%w: backup %s, card %s", ErrUIDMismatch, uid, c.uid)
	}

	for b := SectorFirstBlock(1); b < Blocks; b++ {
		if IsDataBlock(b) {
			c.data[b] = src[b]
			c.dirty.Mark(b)
		}
	}

	return nil
}

// Probe tries the factory Key A on every sector of a card and reads the
// ones that accept it. A rejected key is not an error.
func Probe(t Transport, uid UID) (*Card, [Sectors]bool, error) {
	var open [Sectors]bool
	c := NewWithUID(uid)

	for s := 0; s < Sectors; s++ {
		err := c.ReadSector(t, s, true)
		if IsAuthFailed(err) {
			log.Debug().Msgf("sector %d does not use the default key", s)
			continue
		} else if err != nil {
			return c, open, err
		}
		open[s] = true
	}

	return c, open, nil
}
