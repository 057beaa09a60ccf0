package figure

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"time"
	"unicode/utf16"
)

const (
	MaxNameLength = 15
	MaxLevel      = 20

	xpZone1Max = 33000
	xpZone2Max = 63500
	xpZone3Max = 0xFFFFFF
)

var minXPForLevel = [MaxLevel + 1]uint32{
	0,
	0, // 1
	1000,
	2200,
	3800,
	6000, // 5
	9000,
	13000,
	18200,
	24800,
	33000, // 10
	42700,
	53900,
	66600,
	80800,
	96500, // 15
	113700,
	132400,
	152600,
	174300,
	197500, // 20
}

// XPToLevel converts total XP to a level between 1 and MaxLevel.
func XPToLevel(xp uint32) int {
	for level := 2; level <= MaxLevel; level++ {
		if xp < minXPForLevel[level] {
			return level - 1
		}
	}
	return MaxLevel
}

// LevelToXP returns the minimum XP for a level.
func LevelToXP(level int) (uint32, error) {
	if level < 1 || level > MaxLevel {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	return minXPForLevel[level], nil
}

func (f *Figure) CharacterCode() (uint16, error) {
	v, err := f.value(locCharCode, 0)
	return uint16(v), err
}

func (f *Figure) TypeCode() (uint16, error) {
	v, err := f.value(locTypeCode, 0)
	return uint16(v), err
}

// SetCharacter changes which character and variant the figure is, and
// updates the Type0 checksum to match.
func (f *Figure) SetCharacter(charCode uint16, typeCode uint16) error {
	if f.encrypted {
		return ErrEncrypted
	}
	if err := f.setValue(locCharCode, 0, uint64(charCode)); err != nil {
		return err
	}
	if err := f.setValue(locTypeCode, 0, uint64(typeCode)); err != nil {
		return err
	}
	return f.UpdateHeaderChecksum()
}

func (f *Figure) currentValue(loc Location) (uint64, error) {
	area, err := f.CurrentArea()
	if err != nil {
		return 0, err
	}
	return f.value(loc, area)
}

func (f *Figure) setCurrentValue(loc Location, v uint64) error {
	area, err := f.CurrentArea()
	if err != nil {
		return err
	}
	return f.setValue(loc, area, v)
}

func (f *Figure) Gold() (uint16, error) {
	v, err := f.currentValue(locGold)
	return uint16(v), err
}

func (f *Figure) SetGold(gold uint16) error {
	return f.setCurrentValue(locGold, uint64(gold))
}

// Playtime is in seconds.
func (f *Figure) Playtime() (uint16, error) {
	v, err := f.currentValue(locPlaytime)
	return uint16(v), err
}

func (f *Figure) SetPlaytime(playtime uint16) error {
	return f.setCurrentValue(locPlaytime, uint64(playtime))
}

func (f *Figure) Upgrades() (uint16, error) {
	v, err := f.currentValue(locUpgrades)
	return uint16(v), err
}

func (f *Figure) Platforms() (byte, error) {
	v, err := f.currentValue(locPlatforms)
	return byte(v), err
}

// Ownership is the id of the console that last claimed the figure.
func (f *Figure) Ownership() (uint64, error) {
	return f.currentValue(locOwnership)
}

// XP is stored over three zones which are summed.
func (f *Figure) XP() (uint32, error) {
	area, err := f.CurrentArea()
	if err != nil {
		return 0, err
	}

	var total uint32
	for _, loc := range locXP {
		v, err := f.value(loc, area)
		if err != nil {
			return 0, err
		}
		total += uint32(v)
	}
	return total, nil
}

func (f *Figure) SetXP(xp uint32) error {
	area, err := f.CurrentArea()
	if err != nil {
		return err
	}

	var zones [3]uint32
	switch {
	case xp <= xpZone1Max:
		zones[0] = xp
	case xp-xpZone1Max <= xpZone2Max:
		zones[0] = xpZone1Max
		zones[1] = xp - xpZone1Max
	default:
		zones[0] = xpZone1Max
		zones[1] = xpZone2Max
		zones[2] = xp - xpZone1Max - xpZone2Max
	}
	if zones[2] > xpZone3Max {
		return fmt.Errorf("%w: %d", ErrXPTooLarge, xp)
	}

	for i, loc := range locXP {
		if err := f.setValue(loc, area, uint64(zones[i])); err != nil {
			return err
		}
	}
	return nil
}

func (f *Figure) Level() (int, error) {
	xp, err := f.XP()
	if err != nil {
		return 0, err
	}
	return XPToLevel(xp), nil
}

func (f *Figure) SetLevel(level int) error {
	xp, err := LevelToXP(level)
	if err != nil {
		return err
	}
	return f.SetXP(xp)
}

// Heroics returns how many heroic challenges have been completed.
func (f *Figure) Heroics() (int, error) {
	area, err := f.CurrentArea()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, loc := range locHeroics {
		v, err := f.value(loc, area)
		if err != nil {
			return 0, err
		}
		n += bits.OnesCount64(v)
	}
	return n, nil
}

// Name is stored as up to 15 UTF-16 code units with a zero terminator.
func (f *Figure) Name() (string, error) {
	area, err := f.CurrentArea()
	if err != nil {
		return "", err
	}

	var raw []byte
	for _, loc := range locName {
		bs, err := f.bytesAt(loc, area)
		if err != nil {
			return "", err
		}
		raw = append(raw, bs...)
	}

	var units []uint16
	for i := 0; i+1 < len(raw); i += 2 {
		u := binary.LittleEndian.Uint16(raw[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}

	return string(utf16.Decode(units)), nil
}

func (f *Figure) SetName(name string) error {
	units := utf16.Encode([]rune(name))
	if len(units) > MaxNameLength {
		return fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}

	area, err := f.CurrentArea()
	if err != nil {
		return err
	}

	raw := make([]byte, locName[0].Size+locName[1].Size)
	for i, u := range units {
		binary.LittleEndian.PutUint16(raw[i*2:], u)
	}

	if err := f.setBytesAt(locName[0], area, raw[:locName[0].Size]); err != nil {
		return err
	}
	return f.setBytesAt(locName[1], area, raw[locName[0].Size:])
}

func (f *Figure) history(i int) (time.Time, error) {
	area, err := f.CurrentArea()
	if err != nil {
		return time.Time{}, err
	}

	bs, err := f.bytesAt(locHistory[i], area)
	if err != nil {
		return time.Time{}, err
	}

	year := int(binary.LittleEndian.Uint16(bs[4:]))
	if year == 0 {
		return time.Time{}, nil
	}

	return time.Date(
		year,
		time.Month(bs[3]),
		int(bs[2]),
		int(bs[1]),
		int(bs[0]),
		0, 0, time.UTC,
	), nil
}

func (f *Figure) LastPlayed() (time.Time, error) {
	return f.history(0)
}

func (f *Figure) FirstPlayed() (time.Time, error) {
	return f.history(1)
}
