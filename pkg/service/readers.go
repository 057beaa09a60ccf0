package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/config"
	"github.com/wizzomafizzo/figtool/pkg/readers"
	acr122pcsc "github.com/wizzomafizzo/figtool/pkg/readers/acr122_pcsc"
	"github.com/wizzomafizzo/figtool/pkg/readers/file"
	"github.com/wizzomafizzo/figtool/pkg/readers/libnfc"
	"github.com/wizzomafizzo/figtool/pkg/readers/pn532_uart"
	"github.com/wizzomafizzo/figtool/pkg/utils"
)

var (
	ErrNoReader = errors.New("no reader found")
	ErrNoTarget = errors.New("no card found on reader")
)

const periodBetweenPolls = 250 * time.Millisecond

func SupportedReaders(cfg *config.UserConfig) []readers.Reader {
	return []readers.Reader{
		pn532_uart.NewReader(cfg),
		libnfc.NewReader(cfg),
		acr122pcsc.NewAcr122Pcsc(cfg),
		file.NewReader(cfg),
	}
}

func readerIds(rs []readers.Reader) []string {
	var ids []string
	for _, r := range rs {
		ids = append(ids, r.Ids()...)
	}
	return ids
}

func openReader(rs []readers.Reader, device string) (readers.Reader, error) {
	id, _, err := utils.SplitConnection(device, readerIds(rs))
	if err != nil {
		return nil, err
	}

	for _, r := range rs {
		if utils.Contains(r.Ids(), id) {
			if err := r.Open(device); err != nil {
				return nil, err
			}
			log.Info().Msgf("opened reader: %s", device)
			return r, nil
		}
	}

	return nil, fmt.Errorf("no reader handles device: %s", device)
}

// ConnectReader opens the first working reader. An explicit device is
// tried first, then the readers in the config, then auto-detection if
// probing is enabled.
func ConnectReader(cfg *config.UserConfig, device string) (readers.Reader, error) {
	rs := SupportedReaders(cfg)

	var toConnect []string
	if device != "" {
		toConnect = append(toConnect, device)
	}
	for _, d := range cfg.GetReader() {
		if !utils.Contains(toConnect, d) {
			toConnect = append(toConnect, d)
		}
	}

	for _, d := range toConnect {
		r, err := openReader(rs, d)
		if err != nil {
			log.Error().Msgf("error opening reader %s: %s", d, err)
			continue
		}
		return r, nil
	}

	if !cfg.GetProbeDevice() {
		return nil, ErrNoReader
	}

	for _, r := range rs {
		detect := r.Detect(toConnect)
		if detect == "" {
			continue
		}

		err := r.Open(detect)
		if err != nil {
			log.Error().Msgf("error opening detected reader %s: %s", detect, err)
			_ = r.Close()
			continue
		}

		log.Info().Msgf("opened detected reader: %s", detect)
		return r, nil
	}

	return nil, ErrNoReader
}

// WaitForTarget polls the reader until a MIFARE card is found or the
// timeout passes.
func WaitForTarget(r readers.Reader, timeout time.Duration) (*readers.Target, error) {
	deadline := time.Now().Add(timeout)

	for {
		tgt, err := r.Target()
		if err != nil {
			return nil, err
		}

		if tgt != nil {
			if tgt.Type != readers.TypeMifare {
				return nil, fmt.Errorf("unsupported card type: %q", tgt.Type)
			}
			log.Info().Msgf("found card: %s", tgt.UID)
			return tgt, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrNoTarget
		}

		time.Sleep(periodBetweenPolls)
	}
}
