package store

import "errors"

// ErrNotFound indicates the requested device does not exist.
var ErrNotFound = errors.New("store: device not found")
