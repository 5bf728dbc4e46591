package history

import "errors"

// Sentinel errors for event history operations.
var (
	// ErrNotConnected indicates the recorder is not connected to InfluxDB.
	ErrNotConnected = errors.New("history: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("history: connection failed")

	// ErrDisabled indicates event history is disabled in configuration.
	ErrDisabled = errors.New("history: disabled in configuration")
)
