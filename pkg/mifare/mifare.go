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

// Package mifare models the memory of a MIFARE Classic 1K card and the
// ordering rules for writing it back through a reader.
package mifare

import (
	"encoding/hex"
	"fmt"
)

const (
	BlockSize      = 16
	Blocks         = 64
	Sectors        = 16
	BlocksInSector = 4
	CardSize       = Blocks * BlockSize
	KeySize        = 6
	UIDSize        = 4

	// trailer layout
	OffsetKeyA       = 0
	OffsetAccessBits = 6
	OffsetSpareByte  = 9
	OffsetKeyB       = 10

	// block 0 layout
	OffsetBCC          = 4
	OffsetManufacturer = 5
)

const (
	CmdAuthKeyA = 0x60
	CmdAuthKeyB = 0x61
	CmdRead     = 0x30
	CmdWrite    = 0xA0
)

type (
	Block      [BlockSize]byte
	Key        [KeySize]byte
	AccessBits [3]byte
	UID        [UIDSize]byte
)

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

func (u UID) String() string {
	return hex.EncodeToString(u[:])
}

func (a AccessBits) String() string {
	return hex.EncodeToString(a[:])
}

func (b Block) String() string {
	return hex.EncodeToString(b[:])
}

// ParseUID parses a hex string such as "0a1b2c3d".
func ParseUID(s string) (UID, error) {
	var uid UID
	bs, err := hex.DecodeString(s)
	if err != nil {
		return uid, err
	} else if len(bs) != UIDSize {
		return uid, fmt.Errorf("uid must be %d bytes, got %d", UIDSize, len(bs))
	}
	copy(uid[:], bs)
	return uid, nil
}

var (
	DefaultKey        = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	DefaultAccessBits = AccessBits{0xFF, 0x07, 0x80}
	DefaultSpareByte  = byte(0x69)

	defaultManufacturer = [11]byte{0x08, 0x04, 0x00, 0x62, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69}
)

func IsValidSector(sector int) bool {
	return sector >= 0 && sector < Sectors
}

func IsValidBlock(block int) bool {
	return block >= 0 && block < Blocks
}

func IsTrailerBlock(block int) bool {
	return IsValidBlock(block) && block%BlocksInSector == BlocksInSector-1
}

func IsFirstBlock(block int) bool {
	return IsValidBlock(block) && block%BlocksInSector == 0
}

// IsDataBlock is true for every valid block that isn't a sector trailer,
// including block 0.
func IsDataBlock(block int) bool {
	return IsValidBlock(block) && !IsTrailerBlock(block)
}

func BlockToSector(block int) int {
	return block / BlocksInSector
}

func SectorFirstBlock(sector int) int {
	return sector * BlocksInSector
}

func SectorTrailer(sector int) int {
	return sector*BlocksInSector + BlocksInSector - 1
}

// CalcBCC returns the check byte stored after the UID in block 0.
func CalcBCC(uid UID) byte {
	return uid[0] ^ uid[1] ^ uid[2] ^ uid[3]
}

// Transport is the physical link to a selected card. Calls block until the
// reader answers. AuthenticateBlock must return an error wrapping
// ErrAuthFailed when the card rejects the key.
type Transport interface {
	AuthenticateBlock(block int, uid UID, useKeyA bool, key Key) error
	ReadBlock(block int) (Block, error)
	WriteBlock(block int, data Block) error
}

// DirtySet marks blocks whose memory image is ahead of the card.
type DirtySet [Blocks]bool

func (d *DirtySet) Mark(block int) {
	d[block] = true
}

func (d *DirtySet) Clear(block int) {
	d[block] = false
}

func (d DirtySet) IsDirty(block int) bool {
	return IsValidBlock(block) && d[block]
}

// InSector lists the dirty blocks of a sector in ascending order.
func (d DirtySet) InSector(sector int) []int {
	var blocks []int
	first := SectorFirstBlock(sector)
	for b := first; b < first+BlocksInSector; b++ {
		if d[b] {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

func (d DirtySet) Any() bool {
	for _, v := range d {
		if v {
			return true
		}
	}
	return false
}

func (d DirtySet) List() []int {
	var blocks []int
	for b, v := range d {
		if v {
			blocks = append(blocks, b)
		}
	}
	return blocks
}
