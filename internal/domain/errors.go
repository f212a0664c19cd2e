// SPDX-License-Identifier: MIT
//
// Package domain defines the error taxonomy shared by the engine, the mapper
// and the configuration layer. Callers match kinds with errors.Is.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreadableSource is returned when an audio asset cannot be opened or decoded.
	ErrUnreadableSource = errors.New("unreadable source")

	// ErrSourceNotFound is returned by source providers when the handle does not
	// resolve to an existing asset. The engine surfaces it wrapped under
	// ErrUnreadableSource so both checks succeed.
	ErrSourceNotFound = errors.New("source not found")

	// ErrDeviceUnavailable is returned when the output device or processing graph
	// cannot be started.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrMalformedConfiguration is returned at construction time for invalid parameters.
	ErrMalformedConfiguration = errors.New("malformed configuration")
)

// EngineError carries the operation and handle that failed alongside the
// underlying error.
type EngineError struct {
	Op     string // Operation that failed (e.g. "load", "start")
	Handle string // Source handle, if any
	Err    error
}

func (e *EngineError) Error() string {
	if e.Handle != "" {
		return fmt.Sprintf("engine %s '%s': %v", e.Op, e.Handle, e.Err)
	}
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Malformed wraps a formatted message under ErrMalformedConfiguration.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedConfiguration, fmt.Sprintf(format, args...))
}
