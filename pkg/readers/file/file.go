package file

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/config"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
	"github.com/wizzomafizzo/figtool/pkg/readers"
	"github.com/wizzomafizzo/figtool/pkg/utils"
)

var ErrNotOpen = errors.New("reader is not open")

// FileReader presents a raw 1024 byte card image on disk as a magic card on
// a reader. Every write is saved back to the file.
type FileReader struct {
	cfg    *config.UserConfig
	device string
	path   string
	card   *VirtualCard
}

func NewReader(cfg *config.UserConfig) *FileReader {
	return &FileReader{
		cfg: cfg,
	}
}

func (r *FileReader) Ids() []string {
	return []string{"file"}
}

func (r *FileReader) Open(device string) error {
	_, path, err := utils.SplitConnection(device, r.Ids())
	if err != nil {
		return err
	}

	if !filepath.IsAbs(path) {
		return errors.New("invalid device path, must be absolute")
	}

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info().Msgf("creating blank card image: %s", path)
		if err := mifare.New().SaveFile(path); err != nil {
			return err
		}
	}

	card, err := mifare.LoadFile(path)
	if err != nil {
		return err
	}

	vc := NewVirtualCard(card.Blocks(), true)
	vc.OnWrite = func(blocks [mifare.Blocks]mifare.Block) error {
		return mifare.FromBlocks(blocks).SaveFile(path)
	}

	r.device = device
	r.path = path
	r.card = vc

	return nil
}

func (r *FileReader) Close() error {
	r.card = nil
	return nil
}

func (r *FileReader) Detect(_ []string) string {
	return ""
}

func (r *FileReader) Device() string {
	return r.device
}

func (r *FileReader) Connected() bool {
	return r.card != nil
}

func (r *FileReader) Info() string {
	return r.path
}

func (r *FileReader) Target() (*readers.Target, error) {
	if r.card == nil {
		return nil, ErrNotOpen
	}
	return &readers.Target{
		Type: readers.TypeMifare,
		UID:  r.card.UID(),
	}, nil
}

func (r *FileReader) AuthenticateBlock(block int, uid mifare.UID, useKeyA bool, key mifare.Key) error {
	if r.card == nil {
		return ErrNotOpen
	}
	return r.card.AuthenticateBlock(block, uid, useKeyA, key)
}

func (r *FileReader) ReadBlock(block int) (mifare.Block, error) {
	if r.card == nil {
		return mifare.Block{}, ErrNotOpen
	}
	return r.card.ReadBlock(block)
}

func (r *FileReader) WriteBlock(block int, data mifare.Block) error {
	if r.card == nil {
		return ErrNotOpen
	}
	return r.card.WriteBlock(block, data)
}
