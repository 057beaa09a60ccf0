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

// Package crc implements an MSB-first, bit-serial CRC register of any
// byte-aligned width up to 64 bits.
package crc

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

var ErrInvalidWidth = errors.New("crc width must be a multiple of 8 between 8 and 64")

// Spec is the immutable configuration of a CRC register.
type Spec struct {
	Width      uint8
	Polynomial uint64
	Initial    uint64
}

var (
	// KeyA derives per-sector authentication keys from a card UID.
	KeyA = MustNew(48, 0x42f0e1eba9ea3693, 0x9ae903260cc4)
	// Checksum is the CCITT style CRC used for save data checksums.
	Checksum = MustNew(16, 0x1021, 0xffff)
)

func New(width uint8, poly uint64, init uint64) (Spec, error) {
	if width == 0 || width > 64 || width%8 != 0 {
		return Spec{}, fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}

	return Spec{
		Width:      width,
		Polynomial: poly,
		Initial:    init,
	}, nil
}

func MustNew(width uint8, poly uint64, init uint64) Spec {
	s, err := New(width, poly, init)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Spec) mask() uint64 {
	return ^uint64(0) >> (64 - s.Width)
}

// Register runs the CRC over data and returns the final register value.
func (s Spec) Register(data []byte) uint64 {
	mask := s.mask()
	top := uint64(1) << (s.Width - 1)
	crc := s.Initial & mask

	for _, b := range data {
		crc ^= uint64(b) << (s.Width - 8)
		for i := 0; i < 8; i++ {
			if crc&top != 0 {
				crc = (crc << 1) ^ s.Polynomial
			} else {
				crc <<= 1
			}
			crc &= mask
		}
	}

	return crc
}

// Compute returns the register value serialized big-endian, Width/8 bytes.
func (s Spec) Compute(data []byte) []byte {
	crc := s.Register(data)
	n := int(s.Width / 8)
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(crc)
		crc >>= 8
	}
	return out
}

// Swap returns a byte-reversed copy of b. The card stores multi-byte values
// little-endian, so Compute output is swapped before being written.
func Swap(b []byte) []byte {
	out := slices.Clone(b)
	slices.Reverse(out)
	return out
}
