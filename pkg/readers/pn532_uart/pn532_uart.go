package pn532_uart

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/config"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
	"github.com/wizzomafizzo/figtool/pkg/readers"
	"github.com/wizzomafizzo/figtool/pkg/utils"
	"go.bug.st/serial"
)

var ErrNotConnected = errors.New("reader is not connected")

type Pn532UartReader struct {
	cfg    *config.UserConfig
	device string
	name   string
	port   port
	closer func() error
}

func NewReader(cfg *config.UserConfig) *Pn532UartReader {
	return &Pn532UartReader{
		cfg: cfg,
	}
}

func (r *Pn532UartReader) Ids() []string {
	return []string{"pn532_uart"}
}

func connect(name string) (serial.Port, error) {
	log.Debug().Msgf("connecting to %s", name)
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}

	err = port.SetReadTimeout(100 * time.Millisecond)
	if err != nil {
		return port, err
	}

	return port, initDevice(port)
}

// initDevice puts the PN532 in normal mode and reports its state.
func initDevice(p port) error {
	if err := SamConfiguration(p); err != nil {
		return err
	}

	fv, err := GetFirmwareVersion(p)
	if err != nil {
		return err
	}
	log.Debug().Msgf("firmware version: %v", fv)

	gs, err := GetGeneralStatus(p)
	if err != nil {
		return err
	}
	log.Debug().Msgf("general status: %+v", gs)
	if err := gs.Err(); err != nil {
		log.Warn().Err(err).Msg("reader reported an error on startup")
	}

	return nil
}

func (r *Pn532UartReader) Open(device string) error {
	_, name, err := utils.SplitConnection(device, r.Ids())
	if err != nil {
		return err
	}

	if runtime.GOOS != "windows" {
		if _, err := os.Stat(name); err != nil {
			return err
		}
	}

	port, err := connect(name)
	if err != nil {
		if port != nil {
			_ = port.Close()
		}
		return err
	}

	r.port = port
	r.closer = port.Close
	r.device = device
	r.name = name

	return nil
}

func (r *Pn532UartReader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer()
	r.port = nil
	r.closer = nil
	return err
}

// keep track of serial devices that had failed opens
var serialCacheMu = &sync.RWMutex{}
var serialBlockList []string

// resolvedPath follows a device symlink such as those in /dev/serial/by-id.
func resolvedPath(name string) string {
	symPath, err := os.Readlink(name)
	if err != nil {
		return ""
	}
	abs, err := filepath.Abs(filepath.Join(filepath.Dir(name), symPath))
	if err != nil {
		return ""
	}
	return abs
}

func alreadyConnected(connected []string, name string) bool {
	paths := []string{name}
	if runtime.GOOS != "windows" {
		if resolved := resolvedPath(name); resolved != "" {
			paths = append(paths, resolved)
		}
	}

	for _, connDev := range connected {
		for _, p := range paths {
			if strings.HasSuffix(connDev, ":"+p) {
				return true
			}
		}
	}
	return false
}

func (r *Pn532UartReader) Detect(connected []string) string {
	ports, err := utils.GetSerialDeviceList()
	if err != nil {
		log.Error().Err(err).Msg("failed to get serial ports")
	}

	for _, name := range ports {
		device := r.Ids()[0] + ":" + name

		serialCacheMu.RLock()
		blocked := utils.Contains(serialBlockList, name)
		serialCacheMu.RUnlock()
		if blocked {
			continue
		}

		if alreadyConnected(connected, name) {
			continue
		}

		port, err := connect(name)
		if port != nil {
			if cerr := port.Close(); cerr != nil {
				log.Warn().Err(cerr).Msg("failed to close serial port")
			}
		}
		if err != nil {
			log.Debug().Err(err).Msgf("failed to open detected serial port, blocklisting: %s", name)
			serialCacheMu.Lock()
			serialBlockList = append(serialBlockList, name)
			serialCacheMu.Unlock()
			continue
		}

		return device
	}

	return ""
}

func (r *Pn532UartReader) Device() string {
	return r.device
}

func (r *Pn532UartReader) Connected() bool {
	return r.port != nil
}

func (r *Pn532UartReader) Info() string {
	return "PN532 UART (" + r.name + ")"
}

func (r *Pn532UartReader) Target() (*readers.Target, error) {
	if r.port == nil {
		return nil, ErrNotConnected
	}
	tgt, err := InListPassiveTarget(r.port)
	if err != nil {
		return nil, err
	} else if tgt != nil {
		log.Debug().Msgf("target: %s %s", tgt.Type, tgt.UID)
	}
	return tgt, nil
}

func (r *Pn532UartReader) AuthenticateBlock(block int, uid mifare.UID, useKeyA bool, key mifare.Key) error {
	if r.port == nil {
		return ErrNotConnected
	}
	return MifareAuthenticate(r.port, block, uid, useKeyA, key)
}

func (r *Pn532UartReader) ReadBlock(block int) (mifare.Block, error) {
	if r.port == nil {
		return mifare.Block{}, ErrNotConnected
	}
	return MifareRead(r.port, block)
}

func (r *Pn532UartReader) WriteBlock(block int, data mifare.Block) error {
	if r.port == nil {
		return ErrNotConnected
	}
	return MifareWrite(r.port, block, data)
}
