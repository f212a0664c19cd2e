// SPDX-License-Identifier: MIT
//
// Package transport carries peak events and playback notifications to
// consumers outside the process.
package transport

import "errors"

// Transport defines a generic interface for sending events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans every message out to several transports.
type Multi []Transport

// Compile-time check for interface implementation.
var _ Transport = Multi(nil)

// Send delivers data to every transport and joins their errors.
func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
