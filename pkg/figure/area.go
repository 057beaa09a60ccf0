package figure

import (
	"fmt"
)

// AreaBlock returns the header block of a save area. Area 0 addresses
// values outside the save areas.
func AreaBlock(area int) (int, error) {
	switch area {
	case 0:
		return 0x00, nil
	case 1:
		return 0x08, nil
	case 2:
		return 0x24, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidArea, area)
	}
}

func (f *Figure) location(loc Location, area int) (int, error) {
	header, err := AreaBlock(area)
	if err != nil {
		return 0, err
	} else if area != 0 && f.encrypted {
		return 0, ErrEncrypted
	}
	return header + loc.Block, nil
}

func (f *Figure) bytesAt(loc Location, area int) ([]byte, error) {
	block, err := f.location(loc, area)
	if err != nil {
		return nil, err
	}
	return f.card.Bytes(block, loc.Offset, loc.Size)
}

func (f *Figure) setBytesAt(loc Location, area int, data []byte) error {
	block, err := f.location(loc, area)
	if err != nil {
		return err
	}
	return f.card.SetBytes(block, loc.Offset, data)
}

func (f *Figure) value(loc Location, area int) (uint64, error) {
	bs, err := f.bytesAt(loc, area)
	if err != nil {
		return 0, err
	}

	var v uint64
	for i := len(bs) - 1; i >= 0; i-- {
		v = v<<8 | uint64(bs[i])
	}
	return v, nil
}

func (f *Figure) setValue(loc Location, area int, v uint64) error {
	bs := make([]byte, loc.Size)
	for i := range bs {
		bs[i] = byte(v)
		v >>= 8
	}
	return f.setBytesAt(loc, area, bs)
}

// SaveCounter returns the counter that is bumped each time a save area is
// written.
func (f *Figure) SaveCounter(area int) (byte, error) {
	if area != 1 && area != 2 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidArea, area)
	}
	v, err := f.value(locSave, area)
	return byte(v), err
}

// CurrentArea returns the most recently written save area, the one with
// the higher counter. When the counters are equal the previously resolved
// area is kept. If there is none ErrNoCurrentArea is returned.
func (f *Figure) CurrentArea() (int, error) {
	c1, err := f.SaveCounter(1)
	if err != nil {
		return 0, err
	}

	c2, err := f.SaveCounter(2)
	if err != nil {
		return 0, err
	}

	if c1 > c2 {
		f.area = 1
	} else if c2 > c1 {
		f.area = 2
	}

	if f.area == 0 {
		return 0, ErrNoCurrentArea
	}

	return f.area, nil
}

// SelectArea forces the area used by the field accessors until the
// counters say otherwise.
func (f *Figure) SelectArea(area int) error {
	if area != 1 && area != 2 {
		return fmt.Errorf("%w: %d", ErrInvalidArea, area)
	}
	f.area = area
	return nil
}
