package utils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogging sends logs to a rotating file in dir, and to stderr as well
// if console logging is enabled.
func InitLogging(cfg *config.UserConfig, dir string) error {
	logFile := filepath.Join(dir, config.LogFilename)

	err := os.MkdirAll(filepath.Dir(logFile), 0755)
	if err != nil {
		return err
	}

	var writers = []io.Writer{&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    1,
		MaxBackups: 2,
	}}

	if cfg.GetConsoleLogging() {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(io.MultiWriter(writers...))

	cfg.SetDebug(cfg.GetDebug())

	return nil
}
