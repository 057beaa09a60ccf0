//go:build !((linux || darwin) && cgo)

package libnfc

import (
	"errors"

	"github.com/wizzomafizzo/figtool/pkg/config"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
	"github.com/wizzomafizzo/figtool/pkg/readers"
)

var ErrUnsupported = errors.New("libnfc is not available in this build")

// Reader is a placeholder on builds without libnfc. It never connects.
type Reader struct {
	cfg *config.UserConfig
}

func NewReader(cfg *config.UserConfig) *Reader {
	return &Reader{cfg: cfg}
}

func (r *Reader) Ids() []string                    { return []string{"libnfc"} }
func (r *Reader) Open(string) error                { return ErrUnsupported }
func (r *Reader) Close() error                     { return nil }
func (r *Reader) Detect([]string) string           { return "" }
func (r *Reader) Device() string                   { return "" }
func (r *Reader) Connected() bool                  { return false }
func (r *Reader) Info() string                     { return "" }
func (r *Reader) Target() (*readers.Target, error) { return nil, ErrNotConnected }

func (r *Reader) AuthenticateBlock(int, mifare.UID, bool, mifare.Key) error {
	return ErrNotConnected
}

func (r *Reader) ReadBlock(int) (mifare.Block, error) {
	return mifare.Block{}, ErrNotConnected
}

func (r *Reader) WriteBlock(int, mifare.Block) error {
	return ErrNotConnected
}
