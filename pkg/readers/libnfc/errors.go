package libnfc

import "errors"

var ErrNotConnected = errors.New("reader is not connected")
