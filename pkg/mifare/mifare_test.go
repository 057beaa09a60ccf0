package mifare

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTransport is a card on a reader. It checks keys against its own
// trailers and masks Key A on read like a real card.
type memTransport struct {
	blocks    [Blocks]Block
	magic     bool
	authed    int
	failWrite int
	ops       []string
}

func newMemTransport(magic bool) *memTransport {
	return &memTransport{
		blocks:    New().Blocks(),
		magic:     magic,
		authed:    -1,
		failWrite: -1,
	}
}

func (m *memTransport) AuthenticateBlock(block int, _ UID, useKeyA bool, key Key) error {
	s := BlockToSector(block)
	m.ops = append(m.ops, fmt.Sprintf("auth %d", s))

	tr := m.blocks[SectorTrailer(s)]
	var want Key
	if useKeyA {
		copy(want[:], tr[OffsetKeyA:])
	} else {
		copy(want[:], tr[OffsetKeyB:])
	}

	if key != want {
		m.authed = -1
		return ErrAuthFailed
	}
	m.authed = s
	return nil
}

func (m *memTransport) ReadBlock(block int) (Block, error) {
	if m.authed != BlockToSector(block) {
		return Block{}, errors.New("not authenticated")
	}
	m.ops = append(m.ops, fmt.Sprintf("read %d", block))
	data := m.blocks[block]
	if IsTrailerBlock(block) {
		copy(data[OffsetKeyA:], make([]byte, KeySize))
	}
	return data, nil
}

func (m *memTransport) WriteBlock(block int, data Block) error {
	if m.authed != BlockToSector(block) {
		return errors.New("not authenticated")
	} else if block == 0 && !m.magic {
		return errors.New("block 0 is read only")
	} else if block == m.failWrite {
		return errors.New("write failed")
	}
	m.ops = append(m.ops, fmt.Sprintf("write %d", block))
	m.blocks[block] = data
	return nil
}

func (m *memTransport) writes() []string {
	var ws []string
	for _, op := range m.ops {
		if strings.HasPrefix(op, "write") {
			ws = append(ws, op)
		}
	}
	return ws
}

func TestNewDefaults(t *testing.T) {
	c := NewWithUID(UID{0x01, 0x02, 0x04, 0x08})

	b0, err := c.Block(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x04, 0x08, 0x0f}, b0[:5])
	assert.Equal(t, defaultManufacturer[:], b0[OffsetManufacturer:])

	for s := 0; s < Sectors; s++ {
		tr, err := c.Block(SectorTrailer(s))
		require.NoError(t, err)
		assert.Equal(t, Block{
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
			0xff, 0x07, 0x80, 0x69,
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		}, tr)
	}

	assert.False(t, c.dirty.Any())
}

func TestRangeValidation(t *testing.T) {
	c := New()

	_, err := c.Bytes(1, 14, 4)
	require.ErrorIs(t, err, ErrOutOfBlock)
	assert.Equal(t, KindRange, KindOf(err))

	_, err = c.KeyA(16)
	require.ErrorIs(t, err, ErrInvalidSector)
	assert.Equal(t, KindRange, KindOf(err))

	_, err = c.Bytes(7, 0, 1)
	require.ErrorIs(t, err, ErrNotDataBlock)

	_, err = c.Bytes(64, 0, 1)
	require.ErrorIs(t, err, ErrInvalidBlock)

	err = c.SetBytes(1, -1, []byte{0x00})
	require.ErrorIs(t, err, ErrOutOfBlock)

	err = c.SetKeyB(-1, DefaultKey)
	require.ErrorIs(t, err, ErrInvalidSector)

	_, err = c.Bytes(0, 0, 4)
	require.ErrorIs(t, err, ErrNotMagic)
	assert.Equal(t, KindCapability, KindOf(err))

	c.SetMagic(true)
	uid, err := c.Bytes(0, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, uid)

	_, err = c.Bytes(1, 0, 16)
	require.NoError(t, err)
}

func TestSetBytesMarksOnlyThatBlock(t *testing.T) {
	c := New()

	require.NoError(t, c.SetBytes(9, 3, []byte{0xaa, 0xbb}))

	d := c.Dirty()
	assert.Equal(t, []int{9}, d.List())

	got, err := c.Bytes(9, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xaa, 0xbb, 0x00}, got)
}

func TestSetBlockTrailerUpdatesCache(t *testing.T) {
	c := New()
	tr := Block{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06,
		0x78, 0x77, 0x88, 0x42,
		0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	}
	require.NoError(t, c.SetBlock(SectorTrailer(4), tr))

	keyA, _ := c.KeyA(4)
	keyB, _ := c.KeyB(4)
	bits, _ := c.AccessBits(4)
	spare, _ := c.SpareByte(4)
	assert.Equal(t, Key{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, keyA)
	assert.Equal(t, Key{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}, keyB)
	assert.Equal(t, AccessBits{0x78, 0x77, 0x88}, bits)
	assert.Equal(t, byte(0x42), spare)
	assert.True(t, c.dirty.IsDirty(SectorTrailer(4)))

	require.ErrorIs(t, c.SetBlock(0, Block{}), ErrNotMagic)
}

func TestUpdateWritesOnlyDirty(t *testing.T) {
	c := New()
	tr := newMemTransport(false)

	require.NoError(t, c.SetBytes(5, 0, []byte{0x01}))
	require.NoError(t, c.SetBytes(6, 0, []byte{0x02}))
	require.NoError(t, c.SetBytes(40, 0, []byte{0x03}))

	require.NoError(t, c.Update(tr, true))

	assert.Equal(t, []string{
		"auth 1", "write 5", "write 6",
		"auth 10", "write 40",
	}, tr.ops)
	assert.False(t, c.dirty.Any())
	assert.Equal(t, byte(0x03), tr.blocks[40][0])
}

func TestUpdateFailureKeepsDirty(t *testing.T) {
	c := New()
	tr := newMemTransport(false)
	tr.failWrite = 6

	require.NoError(t, c.SetBytes(5, 0, []byte{0x01}))
	require.NoError(t, c.SetBytes(6, 0, []byte{0x02}))
	require.NoError(t, c.SetBytes(8, 0, []byte{0x03}))

	err := c.Update(tr, true)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "write", te.Op)
	assert.Equal(t, 6, te.Block)
	assert.Equal(t, KindTransport, KindOf(err))

	d := c.Dirty()
	assert.Equal(t, []int{6, 8}, d.List())

	// a retry only writes what is still dirty
	tr.failWrite = -1
	tr.ops = nil
	require.NoError(t, c.Update(tr, true))
	assert.Equal(t, []string{"write 6", "write 8"}, tr.writes())
	assert.False(t, c.dirty.Any())
}

func TestUpdateTrailerLast(t *testing.T) {
	c := New()
	tr := newMemTransport(false)

	b, _ := c.Block(7)
	b[OffsetSpareByte] = 0x00
	require.NoError(t, c.SetBlock(7, b))
	require.NoError(t, c.SetBytes(4, 0, []byte{0x01}))

	require.NoError(t, c.Update(tr, true))
	assert.Equal(t, []string{"write 4", "write 7"}, tr.writes())
}

func TestReadReinjectsKeyA(t *testing.T) {
	key := Key{0xa0, 0xa1, 0xa2, 0xa3, 0xa4, 0xa5}
	tr := newMemTransport(false)
	copy(tr.blocks[SectorTrailer(2)][OffsetKeyA:], key[:])
	tr.blocks[9] = Block{0xde, 0xad, 0xbe, 0xef}

	c := New()
	require.NoError(t, c.SetKeyA(2, key))
	require.NoError(t, c.Read(tr, true))

	assert.Equal(t, tr.blocks, c.Blocks())
	got, _ := c.KeyA(2)
	assert.Equal(t, key, got)
	assert.False(t, c.dirty.Any())
}

func TestReadAuthFailure(t *testing.T) {
	tr := newMemTransport(false)
	copy(tr.blocks[SectorTrailer(3)][OffsetKeyA:], []byte{1, 2, 3, 4, 5, 6})

	c := New()
	err := c.Read(tr, true)
	require.Error(t, err)
	assert.True(t, IsAuthFailed(err))
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestAuthenticateWithKeyB(t *testing.T) {
	tr := newMemTransport(false)
	keyB := Key{0xb0, 0xb1, 0xb2, 0xb3, 0xb4, 0xb5}
	copy(tr.blocks[SectorTrailer(1)][OffsetKeyB:], keyB[:])

	c := New()
	require.True(t, IsAuthFailed(c.Authenticate(tr, 1, false)))
	require.NoError(t, c.SetKeyB(1, keyB))
	require.NoError(t, c.Authenticate(tr, 1, false))
}

func TestReadSectorKeepsZeroKeyB(t *testing.T) {
	tr := newMemTransport(false)
	copy(tr.blocks[SectorTrailer(2)][OffsetKeyB:], make([]byte, KeySize))

	c := New()
	require.NoError(t, c.ReadSector(tr, 2, true))
	keyB, _ := c.KeyB(2)
	assert.Equal(t, Key{}, keyB)
	got, _ := c.Block(SectorTrailer(2))
	assert.Equal(t, make([]byte, KeySize), got[OffsetKeyB:OffsetKeyB+KeySize])

	// authenticating with key b means it is known
	keyB = Key{0xb0, 0xb1, 0xb2, 0xb3, 0xb4, 0xb5}
	copy(tr.blocks[SectorTrailer(3)][OffsetKeyB:], keyB[:])
	require.NoError(t, c.SetKeyB(3, keyB))
	require.NoError(t, c.ReadSector(tr, 3, false))
	got, _ = c.Block(SectorTrailer(3))
	assert.Equal(t, keyB[:], got[OffsetKeyB:OffsetKeyB+KeySize])
}

func TestChangeKeyA(t *testing.T) {
	c := New()
	tr := newMemTransport(false)
	key := Key{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}

	require.NoError(t, c.ChangeKeyA(tr, 5, key, true))

	assert.Equal(t, []string{"auth 5", "write 23"}, tr.ops)
	assert.Equal(t, key[:], tr.blocks[23][OffsetKeyA:OffsetKeyA+KeySize])
	assert.Equal(t, DefaultAccessBits[:], tr.blocks[23][OffsetAccessBits:OffsetAccessBits+3])

	got, _ := c.KeyA(5)
	assert.Equal(t, key, got)
	assert.False(t, c.dirty.Any())

	// the old key no longer works, the cached one does
	require.NoError(t, c.ReadSector(tr, 5, true))
}

func TestChangeAccessBitsFailureLeavesCache(t *testing.T) {
	c := New()
	tr := newMemTransport(false)
	tr.failWrite = 11

	err := c.ChangeAccessBits(tr, 2, AccessBits{0x78, 0x77, 0x88}, true)
	require.Error(t, err)

	bits, _ := c.AccessBits(2)
	assert.Equal(t, DefaultAccessBits, bits)
	assert.Equal(t, DefaultAccessBits[:], tr.blocks[11][OffsetAccessBits:OffsetAccessBits+3])
}

func TestChangeBlockZeroRequiresMagic(t *testing.T) {
	c := New()
	tr := newMemTransport(true)

	err := c.ChangeUID(tr, UID{1, 2, 3, 4}, true)
	require.ErrorIs(t, err, ErrNotMagic)
	assert.Equal(t, KindCapability, KindOf(err))
	assert.Empty(t, tr.ops)

	require.ErrorIs(t, c.ChangeBlockZero(tr, Block{}, true), ErrNotMagic)
}

func TestChangeUID(t *testing.T) {
	c := New()
	c.SetMagic(true)
	tr := newMemTransport(true)
	uid := UID{0x12, 0x34, 0x56, 0x78}

	require.NoError(t, c.ChangeUID(tr, uid, true))

	assert.Equal(t, uid, c.UID())
	assert.Equal(t, uid[:], tr.blocks[0][:UIDSize])
	assert.Equal(t, byte(0x12^0x34^0x56^0x78), tr.blocks[0][OffsetBCC])
	assert.Equal(t, defaultManufacturer[:], tr.blocks[0][OffsetManufacturer:])
}

func sourceImage() [Blocks]Block {
	src := NewWithUID(UID{0xca, 0xfe, 0xba, 0xbe})
	for b := 1; b < Blocks; b++ {
		if IsDataBlock(b) {
			for i := range src.data[b] {
				src.data[b][i] = byte(b*7 + i)
			}
		}
	}

	bits := EncodeAccessBits(AccessConditions{0, 0, 0, 6})
	for s := 0; s < Sectors; s++ {
		tr := &src.data[SectorTrailer(s)]
		copy(tr[OffsetKeyA:], []byte{0xa0, byte(s), 0xa2, 0xa3, 0xa4, 0xa5})
		copy(tr[OffsetAccessBits:], bits[:])
		tr[OffsetSpareByte] = 0x42
		copy(tr[OffsetKeyB:], []byte{0xb0, byte(s), 0xb2, 0xb3, 0xb4, 0xb5})
	}

	return src.Blocks()
}

func TestClone(t *testing.T) {
	src := sourceImage()
	tr := newMemTransport(true)

	c := New()
	c.SetMagic(true)
	require.NoError(t, c.Clone(tr, src))

	// read the card back with the cloned keys
	back := NewWithUID(c.UID())
	for s := 0; s < Sectors; s++ {
		var key Key
		copy(key[:], src[SectorTrailer(s)][OffsetKeyA:])
		require.NoError(t, back.SetKeyA(s, key))
	}
	require.NoError(t, back.Read(tr, true))

	assert.Equal(t, UID{0xca, 0xfe, 0xba, 0xbe}, back.UID())
	got := back.Blocks()
	for b := 0; b < Blocks; b++ {
		assert.Equal(t, src[b], got[b], "block %d", b)
	}
	for s := 0; s < Sectors; s++ {
		keyB, _ := back.KeyB(s)
		bits, _ := back.AccessBits(s)
		assert.Equal(t, Key{0xb0, byte(s), 0xb2, 0xb3, 0xb4, 0xb5}, keyB)
		assert.Equal(t, EncodeAccessBits(AccessConditions{0, 0, 0, 6}), bits)
	}

	// data, then block 0, then trailers
	writes := tr.writes()
	zero := -1
	firstTrailer := -1
	lastData := -1
	for i, w := range writes {
		var b int
		_, err := fmt.Sscanf(w, "write %d", &b)
		require.NoError(t, err)
		switch {
		case b == 0:
			zero = i
		case IsTrailerBlock(b):
			if firstTrailer < 0 {
				firstTrailer = i
			}
		default:
			lastData = i
		}
	}
	assert.Less(t, lastData, zero)
	assert.Less(t, zero, firstTrailer)
	assert.Len(t, writes, (Blocks-Sectors-1)+1+Sectors*3)
}

func TestCloneRequiresMagic(t *testing.T) {
	tr := newMemTransport(true)
	err := New().Clone(tr, sourceImage())
	require.ErrorIs(t, err, ErrNotMagic)
	assert.Empty(t, tr.ops)
}

func TestRestore(t *testing.T) {
	src := sourceImage()

	c := New()
	err := c.Restore(src)
	require.ErrorIs(t, err, ErrUIDMismatch)
	assert.Equal(t, KindIntegrity, KindOf(err))
	assert.False(t, c.dirty.Any())

	c = NewWithUID(UID{0xca, 0xfe, 0xba, 0xbe})
	require.NoError(t, c.Restore(src))

	d := c.Dirty()
	assert.Len(t, d.List(), (Blocks-SectorFirstBlock(1))/4*3)
	assert.False(t, d.IsDirty(1))
	assert.False(t, d.IsDirty(7))
	got, _ := c.Block(4)
	assert.Equal(t, src[4], got)
}

func TestProbe(t *testing.T) {
	tr := newMemTransport(false)
	copy(tr.blocks[SectorTrailer(5)][OffsetKeyA:], []byte{1, 2, 3, 4, 5, 6})

	_, open, err := Probe(tr, UID{})
	require.NoError(t, err)
	for s, ok := range open {
		assert.Equal(t, s != 5, ok, "sector %d", s)
	}
}

func TestAccessBits(t *testing.T) {
	tests := []struct {
		conds AccessConditions
		bits  AccessBits
	}{
		{AccessConditions{0, 0, 0, 4}, DefaultAccessBits},
		{AccessConditions{0, 0, 0, 6}, AccessBits{0x7f, 0x07, 0x88}},
		{AccessConditions{1, 1, 1, 6}, AccessBits{0x78, 0x77, 0x88}},
	}

	for _, tt := range tests {
		t.Run(tt.bits.String(), func(t *testing.T) {
			assert.Equal(t, tt.bits, EncodeAccessBits(tt.conds))
			conds, err := DecodeAccessBits(tt.bits)
			require.NoError(t, err)
			assert.Equal(t, tt.conds, conds)
		})
	}

	_, err := DecodeAccessBits(AccessBits{0x00, 0x00, 0x00})
	require.ErrorIs(t, err, ErrInvalidAccessBits)
}

func TestDumpFile(t *testing.T) {
	c := FromBlocks(sourceImage())
	path := filepath.Join(t.TempDir(), "card.dump")
	require.NoError(t, c.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, c.Raw(), loaded.Raw())
	assert.Equal(t, c.UID(), loaded.UID())
	keyB, _ := loaded.KeyB(3)
	assert.Equal(t, Key{0xb0, 0x03, 0xb2, 0xb3, 0xb4, 0xb5}, keyB)

	_, err = FromDump(make([]byte, 1000))
	require.ErrorIs(t, err, ErrDumpSize)

	var buf bytes.Buffer
	require.NoError(t, c.Dump(&buf))
	assert.Equal(t, Blocks, strings.Count(buf.String(), "\n"))
	assert.Len(t, c.Data(), 48*BlockSize)
}

func TestDirtySetInSector(t *testing.T) {
	var d DirtySet
	d.Mark(4)
	d.Mark(7)
	d.Mark(9)

	assert.Equal(t, []int{4, 7}, d.InSector(1))
	assert.Equal(t, []int{9}, d.InSector(2))
	assert.Nil(t, d.InSector(3))

	d.Clear(4)
	assert.Equal(t, []int{7, 9}, d.List())
	assert.False(t, d.IsDirty(64))
}
