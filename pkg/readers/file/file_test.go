package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
	"github.com/wizzomafizzo/figtool/pkg/readers"
)

var _ readers.Reader = (*FileReader)(nil)

var testUID = mifare.UID{0xde, 0xad, 0xbe, 0xef}

func TestVirtualCardAuth(t *testing.T) {
	vc := NewVirtualCard(mifare.NewWithUID(testUID).Blocks(), false)

	err := vc.AuthenticateBlock(7, testUID, true, mifare.Key{})
	require.ErrorIs(t, err, mifare.ErrAuthFailed)

	err = vc.AuthenticateBlock(7, mifare.UID{}, true, mifare.DefaultKey)
	require.ErrorIs(t, err, mifare.ErrAuthFailed)

	_, err = vc.ReadBlock(4)
	require.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, vc.AuthenticateBlock(7, testUID, false, mifare.DefaultKey))
	tr, err := vc.ReadBlock(7)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, mifare.KeySize), tr[:mifare.KeySize])
	assert.Equal(t, mifare.DefaultKey[:], tr[mifare.OffsetKeyB:])

	_, err = vc.ReadBlock(8)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestVirtualCardBlockZero(t *testing.T) {
	vc := NewVirtualCard(mifare.NewWithUID(testUID).Blocks(), false)
	require.NoError(t, vc.AuthenticateBlock(0, testUID, true, mifare.DefaultKey))
	require.ErrorIs(t, vc.WriteBlock(0, mifare.Block{}), ErrReadOnlyBlock)
	require.NoError(t, vc.WriteBlock(1, mifare.Block{1}))
	assert.Equal(t, mifare.Block{1}, vc.Blocks()[1])
}

func TestFileReaderCreatesImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.bin")

	r := NewReader(nil)
	require.NoError(t, r.Open("file:"+path))
	defer r.Close()
	assert.True(t, r.Connected())
	assert.Equal(t, path, r.Info())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(mifare.CardSize), info.Size())

	target, err := r.Target()
	require.NoError(t, err)
	assert.Equal(t, readers.TypeMifare, target.Type)
	assert.Equal(t, mifare.UID{}, target.UID)
}

func TestFileReaderPersistsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.bin")
	require.NoError(t, mifare.NewWithUID(testUID).SaveFile(path))

	r := NewReader(nil)
	require.NoError(t, r.Open("file:"+path))

	target, err := r.Target()
	require.NoError(t, err)
	require.Equal(t, testUID, target.UID)

	card := mifare.NewWithUID(target.UID)
	card.SetMagic(true)
	require.NoError(t, card.Read(r, true))
	require.NoError(t, card.SetBytes(5, 0, []byte("figtool")))
	require.NoError(t, card.Update(r, true))
	require.NoError(t, card.ChangeKeyA(r, 1, mifare.Key{1, 2, 3, 4, 5, 6}, true))
	require.NoError(t, r.Close())

	saved, err := mifare.LoadFile(path)
	require.NoError(t, err)
	bs, err := saved.Bytes(5, 0, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("figtool"), bs)
	key, err := saved.KeyA(1)
	require.NoError(t, err)
	assert.Equal(t, mifare.Key{1, 2, 3, 4, 5, 6}, key)
}

func TestFileReaderInvalidDevice(t *testing.T) {
	r := NewReader(nil)
	require.Error(t, r.Open("file:relative/card.bin"))
	require.Error(t, r.Open("pn532_uart:/dev/ttyUSB0"))
	assert.False(t, r.Connected())

	_, err := r.Target()
	require.ErrorIs(t, err, ErrNotOpen)
}
