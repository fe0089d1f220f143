// SPDX-License-Identifier: MIT
package transport

import "errors"

// Transport defines a generic interface for publishing processor output.
// Implementations must be safe for concurrent use and must not block the
// caller; a full queue drops the message.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans every message out to several transports.
type Multi []Transport

// Send forwards data to every transport and joins their errors.
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

var _ Transport = Multi(nil)

// MagnitudeCarrier is implemented by messages that carry a magnitude
// spectrum, letting binary transports extract it without knowing the type.
type MagnitudeCarrier interface {
	MagnitudeValues() []float64
}
