package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wizzomafizzo/figtool/pkg/database"
	"github.com/wizzomafizzo/figtool/pkg/figure"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
	"github.com/wizzomafizzo/figtool/pkg/readers/file"
)

var testUID = mifare.UID{0x01, 0x02, 0x03, 0x04}

func blankCard() *file.VirtualCard {
	return file.NewVirtualCard(mifare.NewWithUID(testUID).Blocks(), true)
}

func formattedCard(t *testing.T) *file.VirtualCard {
	t.Helper()
	vc := blankCard()
	_, err := Format(vc, testUID, 0x10, 0x3000)
	require.NoError(t, err)
	return vc
}

func TestParseCharacterArg(t *testing.T) {
	tests := []struct {
		arg      string
		char     uint16
		typeCode uint16
		wantErr  bool
	}{
		{"Spyro", 0x10, 0, false},
		{"spyro:0x3000", 0x10, 0x3000, false},
		{"0x1c2:4096", 0x1c2, 0x1000, false},
		{"spyro:nope", 0, 0, true},
		{"nobody", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			char, typeCode, err := ParseCharacterArg(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.char, char)
			assert.Equal(t, tt.typeCode, typeCode)
		})
	}
}

func TestBlockRows(t *testing.T) {
	card := mifare.NewWithUID(testUID)
	require.NoError(t, card.SetBytes(5, 0, []byte{0xab}))

	rows := BlockRows(card)
	require.Len(t, rows, mifare.Blocks)
	assert.Equal(t, "manufacturer", rows[0].Kind)
	assert.Equal(t, "trailer", rows[3].Kind)
	assert.Equal(t, "data", rows[5].Kind)
	assert.Equal(t, 1, rows[5].Sector)
	assert.True(t, rows[5].Dirty)
	assert.False(t, rows[6].Dirty)
	assert.True(t, strings.HasPrefix(rows[5].Hex, "ab00"))
	assert.True(t, strings.HasPrefix(rows[0].Hex, "01020304"))
}

func TestExportCsv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.csv")
	require.NoError(t, ExportCsv(path, mifare.NewWithUID(testUID)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, mifare.Blocks+1)
	assert.Equal(t, "block,sector,kind,hex,dirty", lines[0])
	assert.Equal(t, "3,0,trailer,ffffffffffffff078069ffffffffffff,false", lines[4])
}

func TestFormatAndInfo(t *testing.T) {
	vc := formattedCard(t)

	f, err := ReadDecrypted(vc, testUID)
	require.NoError(t, err)
	require.NoError(t, f.ValidateChecksums())

	var out bytes.Buffer
	require.NoError(t, PrintInfo(&out, f))
	assert.Contains(t, out.String(), "Character:    Spyro (0010)")
	assert.Contains(t, out.String(), "Type:         3000")
	assert.Contains(t, out.String(), "Save data:    none")

	require.NoError(t, f.SelectArea(1))
	require.NoError(t, f.SetName("Spyro"))
	require.NoError(t, f.SetXP(33000))
	require.NoError(t, f.SetPlaytime(125))

	out.Reset()
	require.NoError(t, PrintInfo(&out, f))
	assert.Contains(t, out.String(), "Save area:    1")
	assert.Contains(t, out.String(), "Name:         Spyro")
	assert.Contains(t, out.String(), "Level:        10 (33000 XP)")
	assert.Contains(t, out.String(), "Playtime:     2m5s")
	assert.Contains(t, out.String(), "Last played:  never")
	assert.Contains(t, out.String(), "Upgrades:     0000")
	assert.Contains(t, out.String(), "Platforms:    00")
	assert.Contains(t, out.String(), "Owner:        0000000000000000")
}

func TestSetUID(t *testing.T) {
	newUID := mifare.UID{0xde, 0xad, 0xbe, 0xef}

	// figure keys
	vc := formattedCard(t)
	require.NoError(t, SetUID(vc, testUID, newUID))
	assert.Equal(t, newUID, vc.UID())

	// factory keys
	vc = blankCard()
	require.NoError(t, SetUID(vc, testUID, newUID))
	assert.Equal(t, newUID, vc.UID())
	stored := vc.Blocks()
	assert.Equal(t, mifare.CalcBCC(newUID), stored[0][mifare.OffsetBCC])
}

func TestClone(t *testing.T) {
	src := mifare.NewWithUID(mifare.UID{0xca, 0xfe, 0xba, 0xbe})
	require.NoError(t, src.SetBytes(9, 0, []byte{1, 2, 3}))
	tr, err := src.Block(mifare.SectorTrailer(2))
	require.NoError(t, err)
	copy(tr[mifare.OffsetKeyA:], []byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, src.SetBlock(mifare.SectorTrailer(2), tr))

	vc := blankCard()
	require.NoError(t, Clone(vc, testUID, src))

	assert.Equal(t, src.UID(), vc.UID())
	stored := vc.Blocks()
	want := src.Blocks()
	assert.Equal(t, want[9], stored[9])
	assert.Equal(t, want[mifare.SectorTrailer(2)], stored[mifare.SectorTrailer(2)])
}

func TestRestore(t *testing.T) {
	vc := formattedCard(t)

	before, err := figure.Read(vc, testUID)
	require.NoError(t, err)
	src := mifare.FromBlocks(before.Card().Blocks())

	f, err := ReadDecrypted(vc, testUID)
	require.NoError(t, err)
	require.NoError(t, f.SelectArea(1))
	require.NoError(t, f.SetGold(500))
	require.NoError(t, f.Commit(vc))
	assert.NotEqual(t, src.Blocks(), vc.Blocks())

	plain, err := ReadDecrypted(vc, testUID)
	require.NoError(t, err)
	require.ErrorIs(t, Restore(vc, plain, src), figure.ErrAlreadyDecrypted)

	f, err = figure.Read(vc, testUID)
	require.NoError(t, err)
	require.NoError(t, Restore(vc, f, src))

	stored := vc.Blocks()
	want := src.Blocks()
	for b := mifare.SectorFirstBlock(1); b < mifare.Blocks; b++ {
		if mifare.IsDataBlock(b) {
			assert.Equal(t, want[b], stored[b], "block %d", b)
		}
	}
}

func TestPrintProbe(t *testing.T) {
	var open [mifare.Sectors]bool
	open[0] = true

	var out bytes.Buffer
	PrintProbe(&out, open)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, mifare.Sectors)
	assert.Equal(t, "Sector  0: default key", lines[0])
	assert.Equal(t, "Sector  1: locked", lines[1])
}

func TestPrintBackups(t *testing.T) {
	bs := []database.Backup{
		{Id: uuid.New(), UID: "01020304", Time: time.Now(), Note: "before restore"},
		{Id: uuid.New(), UID: "01020304", Time: time.Now()},
	}

	var out bytes.Buffer
	PrintBackups(&out, bs)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], bs[0].Id.String()))
	assert.True(t, strings.HasSuffix(lines[0], "before restore"))
	assert.True(t, strings.HasSuffix(lines[1], "01020304  "+bs[1].Time.Local().Format(time.DateTime)))
}

func TestFixChecksums(t *testing.T) {
	vc := formattedCard(t)

	f, err := ReadDecrypted(vc, testUID)
	require.NoError(t, err)
	require.NoError(t, f.SelectArea(1))
	require.NoError(t, f.Card().SetBytes(0x08, 0x09, []byte{0x01}))
	require.NoError(t, f.SetGold(777))
	require.NoError(t, f.SetName("Spyro"))
	require.NoError(t, f.SetXP(33000))
	require.NoError(t, f.Commit(vc))

	f, err = figure.Read(vc, testUID)
	require.NoError(t, err)
	fixed, err := FixChecksums(vc, f)
	require.NoError(t, err)
	assert.False(t, fixed)

	// only the header checksum is wrong, save areas are encrypted with
	// the keys of the broken header
	f, err = ReadDecrypted(vc, testUID)
	require.NoError(t, err)
	require.NoError(t, f.Card().SetBytes(0x01, 0x0e, []byte{0x12, 0x34}))
	for b := 0; b < mifare.Blocks; b++ {
		if figure.ShouldEncryptBlock(b) {
			require.NoError(t, f.Card().MarkDirty(b))
		}
	}
	require.NoError(t, f.Encrypt())
	require.NoError(t, f.Card().Update(vc, true))

	f, err = ReadDecrypted(vc, testUID)
	require.NoError(t, err)
	var mismatch *figure.ChecksumMismatchError
	require.ErrorAs(t, f.ValidateChecksums(), &mismatch)
	assert.Equal(t, figure.Type0, mismatch.Type)

	f, err = figure.Read(vc, testUID)
	require.NoError(t, err)
	fixed, err = FixChecksums(vc, f)
	require.NoError(t, err)
	assert.True(t, fixed)

	f, err = ReadDecrypted(vc, testUID)
	require.NoError(t, err)
	require.NoError(t, f.ValidateChecksums())
	gold, err := f.Gold()
	require.NoError(t, err)
	assert.Equal(t, uint16(777), gold)
	name, err := f.Name()
	require.NoError(t, err)
	assert.Equal(t, "Spyro", name)
	xp, err := f.XP()
	require.NoError(t, err)
	assert.Equal(t, uint32(33000), xp)
}
