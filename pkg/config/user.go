/*
figtool
Copyright (C) 2024 Callan Barrett

This file is part of figtool.

figtool is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

figtool is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with figtool.  If not, see <http://www.gnu.org/licenses/>.
*/

package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/ini.v1"
)

const UserConfigEnv = "FIGTOOL_CONFIG"
const UserAppPathEnv = "FIGTOOL_APP_PATH"

type FigtoolConfig struct {
	Reader         []string `ini:"reader,omitempty,allowshadow"`
	ProbeDevice    bool     `ini:"probe_device"`
	ConsoleLogging bool     `ini:"console_logging"`
	Debug          bool     `ini:"debug"`
}

type BackupsConfig struct {
	AutoBackup bool   `ini:"auto_backup"`
	DbPath     string `ini:"db_path,omitempty"`
}

type UserConfig struct {
	mu      sync.RWMutex
	AppPath string        `ini:"-"`
	IniPath string        `ini:"-"`
	Figtool FigtoolConfig `ini:"figtool"`
	Backups BackupsConfig `ini:"backups"`
}

func (c *UserConfig) GetReader() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Figtool.Reader
}

func (c *UserConfig) SetReader(reader []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Figtool.Reader = reader
}

func (c *UserConfig) GetProbeDevice() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Figtool.ProbeDevice
}

func (c *UserConfig) SetProbeDevice(probeDevice bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Figtool.ProbeDevice = probeDevice
}

func (c *UserConfig) GetConsoleLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Figtool.ConsoleLogging
}

func (c *UserConfig) SetConsoleLogging(consoleLogging bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Figtool.ConsoleLogging = consoleLogging
}

func (c *UserConfig) GetDebug() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Figtool.Debug
}

func (c *UserConfig) SetDebug(debug bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Figtool.Debug = debug
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func (c *UserConfig) GetAutoBackup() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Backups.AutoBackup
}

func (c *UserConfig) SetAutoBackup(autoBackup bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Backups.AutoBackup = autoBackup
}

// GetDbPath returns the backup database path, defaulting to a file next
// to the executable.
func (c *UserConfig) GetDbPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Backups.DbPath != "" {
		return c.Backups.DbPath
	}
	return filepath.Join(filepath.Dir(c.AppPath), DbFilename)
}

func (c *UserConfig) SetDbPath(dbPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Backups.DbPath = dbPath
}

func (c *UserConfig) LoadConfig() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg, err := ini.ShadowLoad(c.IniPath)
	if err != nil {
		return err
	}

	err = cfg.StrictMapTo(c)
	if err != nil {
		return err
	}

	return nil
}

func (c *UserConfig) SaveConfig() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := ini.Empty()

	ini.PrettyEqual = true
	ini.PrettyFormat = false

	err := cfg.ReflectFrom(c)
	if err != nil {
		return err
	}

	err = cfg.SaveTo(c.IniPath)
	if err != nil {
		return err
	}

	return nil
}

func NewUserConfig(defaultConfig *UserConfig) (*UserConfig, error) {
	iniPath := os.Getenv(UserConfigEnv)

	exePath, err := os.Executable()
	if err != nil {
		return defaultConfig, err
	}

	appPath := os.Getenv(UserAppPathEnv)
	if appPath != "" {
		exePath = appPath
	}

	if iniPath == "" {
		iniPath = filepath.Join(filepath.Dir(exePath), AppName+".ini")
	}

	defaultConfig.AppPath = exePath
	defaultConfig.IniPath = iniPath

	if _, err := os.Stat(iniPath); os.IsNotExist(err) {
		// create a blank one on disk
		err := defaultConfig.SaveConfig()
		if err != nil {
			log.Error().Err(err).Msg("failed to save new user config to disk")
			return defaultConfig, err
		}

		return defaultConfig, nil
	}

	err = defaultConfig.LoadConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to load user config")
		return defaultConfig, err
	}

	return defaultConfig, nil
}
