package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/database"
	"github.com/wizzomafizzo/figtool/pkg/figure"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
)

// BlockRow is one line of a CSV card export.
type BlockRow struct {
	Block  int    `csv:"block"`
	Sector int    `csv:"sector"`
	Kind   string `csv:"kind"`
	Hex    string `csv:"hex"`
	Dirty  bool   `csv:"dirty"`
}

func BlockRows(card *mifare.Card) []*BlockRow {
	blocks := card.Blocks()
	dirty := card.Dirty()

	rows := make([]*BlockRow, 0, mifare.Blocks)
	for b, data := range blocks {
		kind := "data"
		if b == 0 {
			kind = "manufacturer"
		} else if mifare.IsTrailerBlock(b) {
			kind = "trailer"
		}

		rows = append(rows, &BlockRow{
			Block:  b,
			Sector: mifare.BlockToSector(b),
			Kind:   kind,
			Hex:    hex.EncodeToString(data[:]),
			Dirty:  dirty.IsDirty(b),
		})
	}

	return rows
}

func ExportCsv(path string, card *mifare.Card) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows := BlockRows(card)
	return gocsv.MarshalFile(&rows, f)
}

// ParseCharacterArg reads a "character[:type]" argument. The character
// may be a name or a number, the type is a number and defaults to 0.
func ParseCharacterArg(s string) (uint16, uint16, error) {
	name, typeArg, hasType := strings.Cut(s, ":")

	char, err := figure.LookupCharacter(name)
	if err != nil {
		return 0, 0, err
	}

	if !hasType {
		return char, 0, nil
	}

	t, err := strconv.ParseUint(strings.TrimSpace(typeArg), 0, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid type code %q: %w", typeArg, err)
	}

	return char, uint16(t), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}

// PrintInfo writes a summary of a decrypted figure.
func PrintInfo(w io.Writer, f *figure.Figure) error {
	char, err := f.CharacterCode()
	if err != nil {
		return err
	}
	typeCode, err := f.TypeCode()
	if err != nil {
		return err
	}

	name, ok := figure.CharacterName(char)
	if !ok {
		name = "Unknown"
	}

	_, _ = fmt.Fprintf(w, "UID:          %s\n", f.Card().UID())
	_, _ = fmt.Fprintf(w, "Character:    %s (%04x)\n", name, char)
	_, _ = fmt.Fprintf(w, "Type:         %04x\n", typeCode)

	area, err := f.CurrentArea()
	if errors.Is(err, figure.ErrNoCurrentArea) {
		_, _ = fmt.Fprintln(w, "Save data:    none")
		return nil
	} else if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "Save area:    %d\n", area)

	nickname, err := f.Name()
	if err != nil {
		return err
	}
	xp, err := f.XP()
	if err != nil {
		return err
	}
	gold, err := f.Gold()
	if err != nil {
		return err
	}
	playtime, err := f.Playtime()
	if err != nil {
		return err
	}
	heroics, err := f.Heroics()
	if err != nil {
		return err
	}
	last, err := f.LastPlayed()
	if err != nil {
		return err
	}
	first, err := f.FirstPlayed()
	if err != nil {
		return err
	}
	upgrades, err := f.Upgrades()
	if err != nil {
		return err
	}
	platforms, err := f.Platforms()
	if err != nil {
		return err
	}
	owner, err := f.Ownership()
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Name:         %s\n", nickname)
	_, _ = fmt.Fprintf(w, "Level:        %d (%d XP)\n", figure.XPToLevel(xp), xp)
	_, _ = fmt.Fprintf(w, "Gold:         %d\n", gold)
	_, _ = fmt.Fprintf(w, "Playtime:     %s\n", time.Duration(playtime)*time.Second)
	_, _ = fmt.Fprintf(w, "Heroics:      %d\n", heroics)
	_, _ = fmt.Fprintf(w, "Last played:  %s\n", formatDate(last))
	_, _ = fmt.Fprintf(w, "First played: %s\n", formatDate(first))
	_, _ = fmt.Fprintf(w, "Upgrades:     %04x\n", upgrades)
	_, _ = fmt.Fprintf(w, "Platforms:    %02x\n", platforms)
	_, _ = fmt.Fprintf(w, "Owner:        %016x\n", owner)

	return nil
}

func PrintProbe(w io.Writer, open [mifare.Sectors]bool) {
	for s, ok := range open {
		status := "locked"
		if ok {
			status = "default key"
		}
		_, _ = fmt.Fprintf(w, "Sector %2d: %s\n", s, status)
	}
}

func PrintBackups(w io.Writer, bs []database.Backup) {
	for _, b := range bs {
		_, _ = fmt.Fprintf(w, "%s  %s  %s", b.Id, b.UID, b.Time.Local().Format(time.DateTime))
		if b.Note != "" {
			_, _ = fmt.Fprintf(w, "  %s", b.Note)
		}
		_, _ = fmt.Fprintln(w)
	}
}

// ReadDecrypted reads the figure on the reader and decrypts it.
func ReadDecrypted(t mifare.Transport, uid mifare.UID) (*figure.Figure, error) {
	f, err := figure.Read(t, uid)
	if err != nil {
		return nil, err
	}
	if err := f.Decrypt(); err != nil {
		return nil, err
	}
	return f, nil
}

// readSectorZero loads block 0 of a magic card, trying the figure key
// before the factory key.
func readSectorZero(t mifare.Transport, uid mifare.UID) (*mifare.Card, error) {
	card := mifare.NewWithUID(uid)
	card.SetMagic(true)

	key, err := figure.CalcKeyA(card, 0)
	if err != nil {
		return nil, err
	}
	if err := card.SetKeyA(0, key); err != nil {
		return nil, err
	}

	err = card.ReadSector(t, 0, true)
	if mifare.IsAuthFailed(err) {
		log.Debug().Msg("sector 0 not using figure key, trying default")
		if err := card.SetKeyA(0, mifare.DefaultKey); err != nil {
			return nil, err
		}
		err = card.ReadSector(t, 0, true)
	}
	if err != nil {
		return nil, err
	}

	return card, nil
}

// SetUID rewrites the UID of a magic card.
func SetUID(t mifare.Transport, uid mifare.UID, newUID mifare.UID) error {
	card, err := readSectorZero(t, uid)
	if err != nil {
		return err
	}
	return card.ChangeUID(t, newUID, true)
}

// Clone copies a card image onto a blank magic card.
func Clone(t mifare.Transport, uid mifare.UID, src *mifare.Card) error {
	card := mifare.NewWithUID(uid)
	card.SetMagic(true)
	return card.Clone(t, src.Blocks())
}

// Format writes a new figure of the given character onto a blank magic
// card.
func Format(t mifare.Transport, uid mifare.UID, char uint16, typeCode uint16) (*figure.Figure, error) {
	card := mifare.NewWithUID(uid)
	card.SetMagic(true)
	if err := card.ReadSector(t, 0, true); err != nil {
		return nil, err
	}
	return figure.Format(t, card, char, typeCode)
}

// Restore writes the save data of a backup image back to the figure it
// was taken from. The figure must be in its encrypted state, as read.
func Restore(t mifare.Transport, f *figure.Figure, src *mifare.Card) error {
	if !f.IsEncrypted() {
		return figure.ErrAlreadyDecrypted
	}
	if err := f.Card().Restore(src.Blocks()); err != nil {
		return err
	}
	return f.Commit(t)
}

// FixChecksums validates a figure as read from the card and, if any
// checksum is wrong, recalculates them all and writes the figure back.
// Returns true if the card was written.
func FixChecksums(t mifare.Transport, f *figure.Figure) (bool, error) {
	if err := f.Decrypt(); err != nil {
		return false, err
	}

	err := f.ValidateChecksums()
	if err == nil {
		return false, nil
	} else if !errors.Is(err, figure.ErrChecksumMismatch) {
		return false, err
	}
	log.Info().Msgf("fixing checksums: %v", err)

	if err := f.UpdateHeaderChecksum(); err != nil {
		return false, err
	}
	if err := f.Commit(t); err != nil {
		return false, err
	}

	return true, nil
}
