package utils

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

type serialDevice struct {
	Vid string
	Pid string
}

// USB serial devices known not to be NFC readers. Probing them with PN532
// wake up frames can upset them.
var ignoreDevices = []serialDevice{
	// Sinden Lightgun
	{Vid: "16c0", Pid: "0f38"},
	{Vid: "16c0", Pid: "0f39"},
	{Vid: "16c0", Pid: "0f01"},
	{Vid: "16c0", Pid: "0f02"},
	{Vid: "16d0", Pid: "0f38"},
	{Vid: "16d0", Pid: "0f39"},
	{Vid: "16d0", Pid: "0f01"},
	{Vid: "16d0", Pid: "0f02"},
	{Vid: "16d0", Pid: "1094"},
	{Vid: "16d0", Pid: "1095"},
	{Vid: "16d0", Pid: "1096"},
	{Vid: "16d0", Pid: "1097"},
	{Vid: "16d0", Pid: "1098"},
	{Vid: "16d0", Pid: "1099"},
	{Vid: "16d0", Pid: "109a"},
	{Vid: "16d0", Pid: "109b"},
	{Vid: "16d0", Pid: "109c"},
	{Vid: "16d0", Pid: "109d"},
}

// parseUdevIds pulls the vendor and product ids out of udevadm info output.
func parseUdevIds(out string) serialDevice {
	var dev serialDevice
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "E: ID_VENDOR_ID="); ok {
			dev.Vid = strings.ToLower(strings.TrimSpace(v))
		} else if v, ok := strings.CutPrefix(line, "E: ID_MODEL_ID="); ok {
			dev.Pid = strings.ToLower(strings.TrimSpace(v))
		}
	}
	return dev
}

func ignoreSerialDevice(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return true
	}

	if _, err := os.Stat("/usr/bin/udevadm"); err != nil {
		log.Debug().Msgf("udevadm not found, skipping ignore list check")
		return false
	}

	out, err := exec.Command("/usr/bin/udevadm", "info", "--name="+path).Output()
	if err != nil {
		log.Error().Err(err).Msg("udevadm failed")
		return false
	}

	dev := parseUdevIds(string(out))
	if dev.Vid == "" || dev.Pid == "" {
		return false
	}

	return Contains(ignoreDevices, dev)
}

func getLinuxList() ([]string, error) {
	path := "/dev/serial/by-id"

	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var devices []string
	for _, v := range entries {
		if v.IsDir() {
			continue
		}

		dev := filepath.Join(path, v.Name())
		if ignoreSerialDevice(dev) {
			continue
		}

		devices = append(devices, dev)
	}

	return devices, nil
}

// GetSerialDeviceList returns serial ports which could have a PN532 attached.
func GetSerialDeviceList() ([]string, error) {
	if runtime.GOOS == "linux" {
		return getLinuxList()
	}

	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}

	prefix := ""
	switch runtime.GOOS {
	case "darwin":
		prefix = "/dev/tty."
	case "windows":
		prefix = "COM"
	}

	var devices []string
	for _, v := range ports {
		if strings.HasPrefix(v, prefix) {
			devices = append(devices, v)
		}
	}

	return devices, nil
}
