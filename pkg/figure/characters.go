package figure

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"
)

//go:embed characters.csv
var charactersCsv []byte

// CharCode is a character code as stored in the figure header. It's
// written as 4 hex digits in CSV files.
type CharCode uint16

func (c *CharCode) UnmarshalCSV(s string) error {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return fmt.Errorf("invalid character code %q: %w", s, err)
	}
	*c = CharCode(v)
	return nil
}

func (c CharCode) MarshalCSV() (string, error) {
	return fmt.Sprintf("%04x", uint16(c)), nil
}

type Character struct {
	Code CharCode `csv:"code"`
	Name string   `csv:"name"`
}

var (
	charactersOnce sync.Once
	characters     []Character
	charactersErr  error
)

func loadCharacters() ([]Character, error) {
	charactersOnce.Do(func() {
		charactersErr = gocsv.UnmarshalBytes(charactersCsv, &characters)
	})
	return characters, charactersErr
}

// Characters returns the table of known characters ordered by code.
func Characters() ([]Character, error) {
	return loadCharacters()
}

// CharacterName looks up the name of a character code. Unknown codes
// return false.
func CharacterName(code uint16) (string, bool) {
	cs, err := loadCharacters()
	if err != nil {
		return "", false
	}
	for _, c := range cs {
		if uint16(c.Code) == code {
			return c.Name, true
		}
	}
	return "", false
}

// LookupCharacter finds a character code by name, ignoring case. A
// numeric value (decimal, or hex with a 0x prefix) is accepted as is.
func LookupCharacter(name string) (uint16, error) {
	name = strings.TrimSpace(name)
	if v, err := strconv.ParseUint(name, 0, 16); err == nil {
		return uint16(v), nil
	}

	cs, err := loadCharacters()
	if err != nil {
		return 0, err
	}
	for _, c := range cs {
		if strings.EqualFold(c.Name, name) {
			return uint16(c.Code), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownCharacter, name)
}
