package mifare

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// LoadFile reads a raw 1024 byte card dump.
func LoadFile(path string) (*Card, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	log.Debug().Msgf("loaded dump: %s", path)
	return FromDump(raw)
}

// SaveFile writes the card image as a raw 1024 byte dump.
func (c *Card) SaveFile(path string) error {
	log.Debug().Msgf("saving dump: %s", path)
	return os.WriteFile(path, c.Raw(), 0644)
}

// Dump prints one block per line with its sector and dirty marker.
func (c *Card) Dump(w io.Writer) error {
	for b, data := range c.data {
		mark := " "
		if c.dirty[b] {
			mark = "*"
		} else if IsTrailerBlock(b) {
			mark = "T"
		}

		_, err := fmt.Fprintf(w, "%02x %02d %s % x\n", b, BlockToSector(b), mark, data[:])
		if err != nil {
			return err
		}
	}
	return nil
}
