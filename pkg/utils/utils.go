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

package utils

import (
	"errors"
	"strings"

	"golang.org/x/exp/slices"
)

// Contains returns true if slice contains value.
func Contains[T comparable](xs []T, x T) bool {
	return slices.Contains(xs, x)
}

// SplitConnection splits a device connection string such as
// "pn532_uart:/dev/ttyUSB0" into its reader id and path, checking the id
// is one of ids.
func SplitConnection(device string, ids []string) (string, string, error) {
	ps := strings.SplitN(device, ":", 2)
	if len(ps) != 2 {
		return "", "", errors.New("invalid device string: " + device)
	}

	if !Contains(ids, ps[0]) {
		return "", "", errors.New("invalid reader id: " + ps[0])
	}

	return ps[0], ps[1], nil
}
