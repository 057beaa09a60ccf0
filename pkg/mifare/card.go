package mifare

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Card is the in-memory image of one MIFARE Classic 1K card. The per-sector
// keys, access bits and spare byte are cached alongside the raw trailer
// bytes because Key A can't be read back from a real card. A Card belongs to
// a single session and is not safe for concurrent use.
type Card struct {
	data       [Blocks]Block
	dirty      DirtySet
	keysA      [Sectors]Key
	keysB      [Sectors]Key
	accessBits [Sectors]AccessBits
	spareBytes [Sectors]byte
	uid        UID
	magic      bool
}

// New returns a card with factory defaults: zero UID, default keys and
// transport access bits in every trailer.
func New() *Card {
	return NewWithUID(UID{})
}

// NewWithUID returns a factory default card for a target detected on a
// reader, before anything has been read from it.
func NewWithUID(uid UID) *Card {
	c := &Card{}
	for s := 0; s < Sectors; s++ {
		c.keysA[s] = DefaultKey
		c.keysB[s] = DefaultKey
		c.accessBits[s] = DefaultAccessBits
		c.spareBytes[s] = DefaultSpareByte
		c.paramsToData(s)
	}
	copy(c.data[0][OffsetManufacturer:], defaultManufacturer[:])
	c.setUIDBytes(uid)
	return c
}

// FromBlocks builds a card from a full image. Cached sector fields are
// taken from the trailers and nothing is marked dirty.
func FromBlocks(blocks [Blocks]Block) *Card {
	c := &Card{data: blocks}
	for s := 0; s < Sectors; s++ {
		c.dataToParams(s)
	}
	copy(c.uid[:], c.data[0][:UIDSize])
	return c
}

// FromDump builds a card from a raw 1024 byte dump.
func FromDump(raw []byte) (*Card, error) {
	blocks, err := DumpToBlocks(raw)
	if err != nil {
		return nil, err
	}
	return FromBlocks(blocks), nil
}

// DumpToBlocks splits a raw dump into blocks.
func DumpToBlocks(raw []byte) ([Blocks]Block, error) {
	var blocks [Blocks]Block
	if len(raw) != CardSize {
		return blocks, fmt.Errorf("%w: got %d", ErrDumpSize, len(raw))
	}
	for b := 0; b < Blocks; b++ {
		copy(blocks[b][:], raw[b*BlockSize:(b+1)*BlockSize])
	}
	return blocks, nil
}

func (c *Card) paramsToData(sector int) {
	t := &c.data[SectorTrailer(sector)]
	copy(t[OffsetKeyA:], c.keysA[sector][:])
	copy(t[OffsetAccessBits:], c.accessBits[sector][:])
	t[OffsetSpareByte] = c.spareBytes[sector]
	copy(t[OffsetKeyB:], c.keysB[sector][:])
}

func (c *Card) dataToParams(sector int) {
	t := c.data[SectorTrailer(sector)]
	copy(c.keysA[sector][:], t[OffsetKeyA:OffsetKeyA+KeySize])
	copy(c.accessBits[sector][:], t[OffsetAccessBits:OffsetAccessBits+3])
	c.spareBytes[sector] = t[OffsetSpareByte]
	copy(c.keysB[sector][:], t[OffsetKeyB:OffsetKeyB+KeySize])
}

func (c *Card) setUIDBytes(uid UID) {
	c.uid = uid
	copy(c.data[0][:UIDSize], uid[:])
	c.data[0][OffsetBCC] = CalcBCC(uid)
}

func checkSector(sector int) error {
	if !IsValidSector(sector) {
		return fmt.Errorf("%w: %d", ErrInvalidSector, sector)
	}
	return nil
}

func checkBlock(block int) error {
	if !IsValidBlock(block) {
		return fmt.Errorf("%w: %d", ErrInvalidBlock, block)
	}
	return nil
}

func (c *Card) checkDataRange(block int, offset int, n int) error {
	if err := checkBlock(block); err != nil {
		return err
	} else if IsTrailerBlock(block) {
		return fmt.Errorf("%w: %d", ErrNotDataBlock, block)
	} else if block == 0 && !c.magic {
		return ErrNotMagic
	} else if offset < 0 || n < 0 || offset+n > BlockSize {
		return fmt.Errorf("%w: offset %d, length %d", ErrOutOfBlock, offset, n)
	}
	return nil
}

// Bytes returns a copy of n bytes of a data block starting at offset.
func (c *Card) Bytes(block int, offset int, n int) ([]byte, error) {
	if err := c.checkDataRange(block, offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.data[block][offset:offset+n])
	return out, nil
}

// SetBytes writes data into a data block at offset and marks it dirty.
func (c *Card) SetBytes(block int, offset int, data []byte) error {
	if err := c.checkDataRange(block, offset, len(data)); err != nil {
		return err
	}
	copy(c.data[block][offset:], data)
	c.dirty.Mark(block)
	return nil
}

// Block returns any block, trailers included, as it is held in memory.
func (c *Card) Block(block int) (Block, error) {
	if err := checkBlock(block); err != nil {
		return Block{}, err
	}
	return c.data[block], nil
}

// SetBlock replaces a whole block and marks it dirty. Setting a trailer also
// replaces the cached keys and access bits of its sector. Block 0 can only
// be set on a magic card.
func (c *Card) SetBlock(block int, data Block) error {
	if err := checkBlock(block); err != nil {
		return err
	} else if block == 0 && !c.magic {
		return ErrNotMagic
	}
	c.data[block] = data
	if IsTrailerBlock(block) {
		c.dataToParams(BlockToSector(block))
	} else if block == 0 {
		copy(c.uid[:], data[:UIDSize])
	}
	c.dirty.Mark(block)
	return nil
}

// ReplaceBlock overwrites a block in memory without marking it dirty.
func (c *Card) ReplaceBlock(block int, data Block) error {
	if err := checkBlock(block); err != nil {
		return err
	}
	c.data[block] = data
	if IsTrailerBlock(block) {
		c.dataToParams(BlockToSector(block))
	}
	return nil
}

func (c *Card) Blocks() [Blocks]Block {
	return c.data
}

// Raw returns the full 1024 byte image.
func (c *Card) Raw() []byte {
	out := make([]byte, 0, CardSize)
	for _, b := range c.data {
		out = append(out, b[:]...)
	}
	return out
}

// Data returns the contents of every data block in order, skipping trailers.
func (c *Card) Data() []byte {
	out := make([]byte, 0, (Blocks-Sectors)*BlockSize)
	for i, b := range c.data {
		if IsDataBlock(i) {
			out = append(out, b[:]...)
		}
	}
	return out
}

func (c *Card) Dirty() DirtySet {
	return c.dirty
}

// MarkDirty flags a data block for the next Update.
func (c *Card) MarkDirty(block int) error {
	if err := checkBlock(block); err != nil {
		return err
	} else if !IsDataBlock(block) {
		return fmt.Errorf("%w: %d", ErrNotDataBlock, block)
	}
	c.dirty.Mark(block)
	return nil
}

func (c *Card) KeyA(sector int) (Key, error) {
	if err := checkSector(sector); err != nil {
		return Key{}, err
	}
	return c.keysA[sector], nil
}

// SetKeyA changes the key used for the next Key A authentication of a
// sector. It does not touch the card or the trailer image.
func (c *Card) SetKeyA(sector int, key Key) error {
	if err := checkSector(sector); err != nil {
		return err
	}
	c.keysA[sector] = key
	return nil
}

func (c *Card) KeyB(sector int) (Key, error) {
	if err := checkSector(sector); err != nil {
		return Key{}, err
	}
	return c.keysB[sector], nil
}

func (c *Card) SetKeyB(sector int, key Key) error {
	if err := checkSector(sector); err != nil {
		return err
	}
	c.keysB[sector] = key
	return nil
}

func (c *Card) AccessBits(sector int) (AccessBits, error) {
	if err := checkSector(sector); err != nil {
		return AccessBits{}, err
	}
	return c.accessBits[sector], nil
}

func (c *Card) SetAccessBits(sector int, bits AccessBits) error {
	if err := checkSector(sector); err != nil {
		return err
	}
	c.accessBits[sector] = bits
	return nil
}

func (c *Card) SpareByte(sector int) (byte, error) {
	if err := checkSector(sector); err != nil {
		return 0, err
	}
	return c.spareBytes[sector], nil
}

func (c *Card) SetSpareByte(sector int, b byte) error {
	if err := checkSector(sector); err != nil {
		return err
	}
	c.spareBytes[sector] = b
	return nil
}

func (c *Card) UID() UID {
	return c.uid
}

// SetUID changes the UID sent during authentication. Use ChangeUID to
// rewrite it on a magic card.
func (c *Card) SetUID(uid UID) {
	c.uid = uid
}

func (c *Card) IsMagic() bool {
	return c.magic
}

func (c *Card) SetMagic(magic bool) {
	if magic != c.magic {
		log.Debug().Msgf("card magic flag set to %t", magic)
	}
	c.magic = magic
}
