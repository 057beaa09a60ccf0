package mifare

import "fmt"

// Access conditions are 3 bit values, one per block of a sector, with
// C1 in bit 0, C2 in bit 1 and C3 in bit 2. Index 3 is the trailer.
type AccessConditions [BlocksInSector]byte

// EncodeAccessBits packs per-block access conditions into trailer bytes 6-8,
// including the inverted copies.
func EncodeAccessBits(conds AccessConditions) AccessBits {
	var bits AccessBits
	for b, cond := range conds {
		if cond&0x01 != 0 {
			bits[1] |= 1 << (4 + b)
		} else {
			bits[0] |= 1 << b
		}
		if cond&0x02 != 0 {
			bits[2] |= 1 << b
		} else {
			bits[0] |= 1 << (4 + b)
		}
		if cond&0x04 != 0 {
			bits[2] |= 1 << (4 + b)
		} else {
			bits[1] |= 1 << b
		}
	}
	return bits
}

// DecodeAccessBits unpacks trailer bytes 6-8. An error is returned if the
// inverted copies don't match, since writing such a trailer bricks the
// sector.
func DecodeAccessBits(bits AccessBits) (AccessConditions, error) {
	c1 := bits[1] >> 4
	c2 := bits[2] & 0x0F
	c3 := bits[2] >> 4

	if c1 != ^bits[0]&0x0F || c2 != ^bits[0]>>4 || c3 != ^bits[1]&0x0F {
		return AccessConditions{}, fmt.Errorf("%w: %s", ErrInvalidAccessBits, bits)
	}

	var conds AccessConditions
	for b := range conds {
		conds[b] = (c1>>b)&1 | ((c2>>b)&1)<<1 | ((c3>>b)&1)<<2
	}
	return conds, nil
}
