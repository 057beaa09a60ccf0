package figure

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/crc"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
)

type ChecksumType int

const (
	// Type0 covers blocks 0 and 1 and has a single copy.
	Type0 ChecksumType = iota
	Type1
	Type2
	Type3
	Type4
)

// segment is a run of raw card bytes starting at the first byte of a block
// relative to the area header. Runs may cross into the next block.
type segment struct {
	block  int
	length int
}

type patch struct {
	offset int
	value  byte
}

// checksumVariant describes how the input of one checksum type is built.
type checksumVariant struct {
	stored   Location
	segments []segment
	patches  []patch
	pad      int
	noArea   bool
}

var checksumVariants = map[ChecksumType]checksumVariant{
	Type0: {
		stored:   locChecksums[0],
		segments: []segment{{0x00, 0x1E}},
		noArea:   true,
	},
	Type1: {
		stored:   locChecksums[1],
		segments: []segment{{0x00, 0x10}},
		patches:  []patch{{0x0E, 0x05}, {0x0F, 0x00}},
	},
	Type2: {
		stored:   locChecksums[2],
		segments: []segment{{0x01, 0x20}, {0x04, 0x10}},
	},
	Type3: {
		stored:   locChecksums[3],
		segments: []segment{{0x05, 0x20}, {0x08, 0x10}},
		pad:      0xE0,
	},
	Type4: {
		stored:   locChecksums[4],
		segments: []segment{{0x09, 0x20}, {0x0C, 0x20}},
		patches:  []patch{{0x00, 0x06}, {0x01, 0x01}},
	},
}

// Each type's input includes the stored value of the type after it, so
// writes must go from the highest type down.
var (
	updateOrder   = []ChecksumType{Type4, Type3, Type2, Type1}
	validateOrder = []ChecksumType{Type1, Type2, Type3, Type4}
)

// ChecksumMismatchError is returned when a stored checksum doesn't match
// the one calculated from the card.
type ChecksumMismatchError struct {
	Type     ChecksumType
	Area     int
	Expected [2]byte
	Actual   [2]byte
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf(
		"checksum mismatch: type %d area %d: expected %x, got %x",
		e.Type, e.Area, e.Expected, e.Actual,
	)
}

func (e *ChecksumMismatchError) Unwrap() error {
	return ErrChecksumMismatch
}

func checksumVariantOf(t ChecksumType) (checksumVariant, error) {
	v, ok := checksumVariants[t]
	if !ok {
		return v, fmt.Errorf("%w: %d", ErrUnknownChecksum, t)
	}
	return v, nil
}

func (v checksumVariant) header(area int) (int, error) {
	if v.noArea {
		return 0, nil
	} else if area != 1 && area != 2 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidArea, area)
	}
	return AreaBlock(area)
}

func (v checksumVariant) input(blocks [mifare.Blocks]mifare.Block, header int) []byte {
	var src []byte
	for _, seg := range v.segments {
		start := (header + seg.block) * mifare.BlockSize
		for i := 0; i < seg.length; i++ {
			off := start + i
			src = append(src, blocks[off/mifare.BlockSize][off%mifare.BlockSize])
		}
	}
	for _, p := range v.patches {
		src[p.offset] = p.value
	}
	return append(src, make([]byte, v.pad)...)
}

// Checksum calculates a checksum of the decrypted figure. The area is
// ignored for Type0.
func (f *Figure) Checksum(t ChecksumType, area int) ([2]byte, error) {
	var sum [2]byte

	v, err := checksumVariantOf(t)
	if err != nil {
		return sum, err
	} else if f.encrypted {
		return sum, ErrEncrypted
	}

	header, err := v.header(area)
	if err != nil {
		return sum, err
	}

	copy(sum[:], crc.Swap(crc.Checksum.Compute(v.input(f.card.Blocks(), header))))
	return sum, nil
}

// StoredChecksum returns the checksum currently written on the figure.
func (f *Figure) StoredChecksum(t ChecksumType, area int) ([2]byte, error) {
	var sum [2]byte

	v, err := checksumVariantOf(t)
	if err != nil {
		return sum, err
	}

	header, err := v.header(area)
	if err != nil {
		return sum, err
	}

	b, err := f.card.Block(header + v.stored.Block)
	if err != nil {
		return sum, err
	}

	copy(sum[:], b[v.stored.Offset:v.stored.Offset+v.stored.Size])
	return sum, nil
}

func (f *Figure) writeChecksum(t ChecksumType, area int) error {
	sum, err := f.Checksum(t, area)
	if err != nil {
		return err
	}

	v := checksumVariants[t]
	header, err := v.header(area)
	if err != nil {
		return err
	}

	return f.card.SetBytes(header+v.stored.Block, v.stored.Offset, sum[:])
}

// UpdateChecksums recalculates and stores types 4 to 1 of both save areas.
func (f *Figure) UpdateChecksums() error {
	if f.encrypted {
		return ErrEncrypted
	}

	for area := 1; area <= 2; area++ {
		for _, t := range updateOrder {
			if err := f.writeChecksum(t, area); err != nil {
				return err
			}
		}
	}

	log.Debug().Msg("updated checksums")
	return nil
}

// UpdateHeaderChecksum recalculates and stores the Type0 checksum. It only
// needs to change when block 0 or the character codes do.
func (f *Figure) UpdateHeaderChecksum() error {
	return f.writeChecksum(Type0, 0)
}

func (f *Figure) validate(t ChecksumType, area int) error {
	want, err := f.Checksum(t, area)
	if err != nil {
		return err
	}

	got, err := f.StoredChecksum(t, area)
	if err != nil {
		return err
	}

	if want != got {
		return &ChecksumMismatchError{
			Type:     t,
			Area:     area,
			Expected: want,
			Actual:   got,
		}
	}

	return nil
}

// ValidateChecksums checks every stored checksum, Type0 first.
func (f *Figure) ValidateChecksums() error {
	if f.encrypted {
		return ErrEncrypted
	}

	if err := f.validate(Type0, 0); err != nil {
		return err
	}

	for area := 1; area <= 2; area++ {
		for _, t := range validateOrder {
			if err := f.validate(t, area); err != nil {
				return err
			}
		}
	}

	return nil
}
