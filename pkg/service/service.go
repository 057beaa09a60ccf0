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

package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/config"
	"github.com/wizzomafizzo/figtool/pkg/database"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
	"github.com/wizzomafizzo/figtool/pkg/readers"
	"github.com/wizzomafizzo/figtool/pkg/utils"
)

const targetTimeout = 30 * time.Second

// Session owns the reader and card for one run of the tool. Only one
// session may hold a reader at a time.
type Session struct {
	Cfg    *config.UserConfig
	Reader readers.Reader
	Target *readers.Target
	Db     *database.Database
	lock   *utils.SessionLock
}

// Start locks the session, connects a reader and waits for a card.
func Start(cfg *config.UserConfig, device string, lockDir string) (*Session, error) {
	lock, err := utils.LockSession(lockDir)
	if err != nil {
		return nil, err
	}

	s := &Session{Cfg: cfg, lock: lock}

	s.Reader, err = ConnectReader(cfg, device)
	if err != nil {
		_ = s.Stop()
		return nil, err
	}
	log.Info().Msgf("using reader: %s", s.Reader.Info())

	s.Target, err = WaitForTarget(s.Reader, targetTimeout)
	if err != nil {
		_ = s.Stop()
		return nil, err
	}

	return s, nil
}

func (s *Session) openDb() error {
	if s.Db != nil {
		return nil
	}
	db, err := database.Open(s.Cfg.GetDbPath())
	if err != nil {
		return fmt.Errorf("error opening backup database: %w", err)
	}
	s.Db = db
	return nil
}

// Database opens the backup database on first use.
func (s *Session) Database() (*database.Database, error) {
	if err := s.openDb(); err != nil {
		return nil, err
	}
	return s.Db, nil
}

// Backup stores the card image if automatic backups are enabled. It must
// be called before anything is written to the card.
func (s *Session) Backup(card *mifare.Card, note string) error {
	if !s.Cfg.GetAutoBackup() {
		return nil
	}

	db, err := s.Database()
	if err != nil {
		return err
	}

	b := database.NewBackup(card, note)
	if err := db.AddBackup(b); err != nil {
		return err
	}

	log.Info().Msgf("saved backup %s of %s", b.Id, b.UID)
	return nil
}

func (s *Session) Stop() error {
	var errs []error

	if s.Db != nil {
		errs = append(errs, s.Db.Close())
	}
	if s.Reader != nil {
		errs = append(errs, s.Reader.Close())
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Release())
	}

	return errors.Join(errs...)
}
