package config

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const (
	Version     = "0.3.0"
	AppName     = "figtool"
	LogFilename = "figtool.log"
	DbFilename  = "figtool.db"
)

// MkTempDir returns the app's temp folder, creating it if needed.
func MkTempDir() string {
	path := filepath.Join(os.TempDir(), AppName)
	err := os.MkdirAll(path, 0755)
	if err != nil {
		log.Error().Err(err).Msg("error creating temp folder")
	}
	return path
}
