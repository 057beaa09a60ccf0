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

package main

import (
	"github.com/wizzomafizzo/figtool/pkg/cli"
	"github.com/wizzomafizzo/figtool/pkg/config"
)

func main() {
	flags := cli.SetupFlags()
	flags.Pre()

	cfg := cli.Setup(&config.UserConfig{
		Figtool: config.FigtoolConfig{
			ProbeDevice:    true,
			ConsoleLogging: true,
		},
		Backups: config.BackupsConfig{
			AutoBackup: true,
		},
	})

	flags.Post(cfg)
}
