package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitConnection(t *testing.T) {
	tests := map[string]struct {
		device string
		id     string
		path   string
		ok     bool
	}{
		"serial":     {"pn532_uart:/dev/ttyUSB0", "pn532_uart", "/dev/ttyUSB0", true},
		"libnfc":     {"libnfc:pn532_uart:/dev/ttyUSB0", "libnfc", "pn532_uart:/dev/ttyUSB0", true},
		"no path":    {"pn532_uart", "", "", false},
		"unknown id": {"pn533:/dev/ttyUSB0", "", "", false},
	}

	ids := []string{"pn532_uart", "libnfc"}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			id, path, err := SplitConnection(tt.device, ids)
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.path, path)
		})
	}
}

func TestParseUdevIds(t *testing.T) {
	out := "P: /devices/pci0000:00/usb1/1-1\nE: ID_VENDOR_ID=16D0\nE: ID_MODEL_ID=0f38\nE: ID_SERIAL=foo\n"
	dev := parseUdevIds(out)
	assert.Equal(t, serialDevice{Vid: "16d0", Pid: "0f38"}, dev)
	assert.True(t, Contains(ignoreDevices, dev))
}

func TestSessionLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := LockSession(dir)
	require.NoError(t, err)

	_, err = LockSession(dir)
	require.ErrorIs(t, err, ErrSessionActive)

	require.NoError(t, lock.Release())

	lock, err = LockSession(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}
