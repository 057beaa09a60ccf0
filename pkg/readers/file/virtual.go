package file

import (
	"errors"
	"sync"

	"github.com/wizzomafizzo/figtool/pkg/mifare"
)

var (
	ErrNotAuthenticated = errors.New("sector not authenticated")
	ErrReadOnlyBlock    = errors.New("block 0 is read only")
)

// VirtualCard behaves like a MIFARE Classic 1K card sitting on a reader.
// Keys are checked against its own trailers and Key A is masked on read.
type VirtualCard struct {
	mu     sync.Mutex
	blocks [mifare.Blocks]mifare.Block
	magic  bool
	authed int
	// OnWrite is called with the full image after every successful write.
	OnWrite func([mifare.Blocks]mifare.Block) error
}

func NewVirtualCard(blocks [mifare.Blocks]mifare.Block, magic bool) *VirtualCard {
	return &VirtualCard{
		blocks: blocks,
		magic:  magic,
		authed: -1,
	}
}

func (v *VirtualCard) UID() mifare.UID {
	v.mu.Lock()
	defer v.mu.Unlock()
	var uid mifare.UID
	copy(uid[:], v.blocks[0][:mifare.UIDSize])
	return uid
}

func (v *VirtualCard) IsMagic() bool {
	return v.magic
}

// Blocks returns a copy of the stored image, keys included.
func (v *VirtualCard) Blocks() [mifare.Blocks]mifare.Block {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.blocks
}

func (v *VirtualCard) AuthenticateBlock(block int, uid mifare.UID, useKeyA bool, key mifare.Key) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.authed = -1
	if !mifare.IsValidBlock(block) {
		return mifare.ErrInvalidBlock
	}

	var cardUID mifare.UID
	copy(cardUID[:], v.blocks[0][:mifare.UIDSize])
	if uid != cardUID {
		return mifare.ErrAuthFailed
	}

	s := mifare.BlockToSector(block)
	tr := v.blocks[mifare.SectorTrailer(s)]
	offset := mifare.OffsetKeyB
	if useKeyA {
		offset = mifare.OffsetKeyA
	}

	var want mifare.Key
	copy(want[:], tr[offset:])
	if key != want {
		return mifare.ErrAuthFailed
	}

	v.authed = s
	return nil
}

func (v *VirtualCard) ReadBlock(block int) (mifare.Block, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !mifare.IsValidBlock(block) {
		return mifare.Block{}, mifare.ErrInvalidBlock
	} else if v.authed != mifare.BlockToSector(block) {
		return mifare.Block{}, ErrNotAuthenticated
	}

	data := v.blocks[block]
	if mifare.IsTrailerBlock(block) {
		copy(data[mifare.OffsetKeyA:], make([]byte, mifare.KeySize))
	}
	return data, nil
}

func (v *VirtualCard) WriteBlock(block int, data mifare.Block) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !mifare.IsValidBlock(block) {
		return mifare.ErrInvalidBlock
	} else if v.authed != mifare.BlockToSector(block) {
		return ErrNotAuthenticated
	} else if block == 0 && !v.magic {
		return ErrReadOnlyBlock
	}

	v.blocks[block] = data
	if v.OnWrite != nil {
		return v.OnWrite(v.blocks)
	}
	return nil
}
