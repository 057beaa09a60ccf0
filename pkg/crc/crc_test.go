package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckValue(t *testing.T) {
	s := MustNew(16, 0x1021, 0xffff)
	data := []byte("123456789")

	assert.Equal(t, uint64(0x29b1), s.Register(data))
	assert.Equal(t, []byte{0x29, 0xb1}, s.Compute(data))
	assert.Equal(t, s, Checksum)
}

func TestOutputLength(t *testing.T) {
	tests := map[string]struct {
		spec Spec
		want int
	}{
		"8 bit":  {MustNew(8, 0x07, 0x00), 1},
		"16 bit": {Checksum, 2},
		"48 bit": {KeyA, 6},
		"64 bit": {MustNew(64, 0x42f0e1eba9ea3693, 0), 8},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Len(t, tt.spec.Compute([]byte{0x01, 0x02, 0x03}), tt.want)
		})
	}
}

func TestRegisterMasked(t *testing.T) {
	for i := 0; i < 256; i++ {
		r := KeyA.Register([]byte{byte(i), 0xaa, 0x55})
		if r>>48 != 0 {
			t.Fatalf("register overflowed 48 bits for %d: %x", i, r)
		}
	}
}

func TestEmptyInput(t *testing.T) {
	assert.Equal(t, []byte{0xff, 0xff}, Checksum.Compute(nil))
	assert.Equal(t, []byte{0x9a, 0xe9, 0x03, 0x26, 0x0c, 0xc4}, KeyA.Compute(nil))
}

func TestInvalidWidth(t *testing.T) {
	for _, w := range []uint8{0, 7, 12, 65, 72} {
		_, err := New(w, 0x1021, 0)
		require.ErrorIs(t, err, ErrInvalidWidth, "width %d", w)
	}

	assert.Panics(t, func() { MustNew(4, 0x3, 0) })
}

func TestSwap(t *testing.T) {
	in := []byte{0x01, 0x02, 0x03}
	assert.Equal(t, []byte{0x03, 0x02, 0x01}, Swap(in))
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, in)
}
