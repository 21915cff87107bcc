// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers match with errors.Is; producers wrap with %w.
var (
	// Transport errors, fatal to the current stream session
	ErrTransportClosed = errors.New("framestream: transport closed")
	ErrConnection      = errors.New("framestream: connection failed")

	// Producer errors
	ErrSourceLost     = errors.New("framestream: source lost")
	ErrNotConfigured  = errors.New("framestream: producer not configured")
	ErrAlreadyStarted = errors.New("framestream: producer already started")
	ErrStopped        = errors.New("framestream: producer stopped")

	// Stream errors
	ErrStreamClosed = errors.New("framestream: stream closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("framestream: invalid configuration")
)
