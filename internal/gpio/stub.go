//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(chip string, pin int, activeLow bool) (*RealReader, error) {
	return nil, errUnsupported
}

func (r *RealReader) Read() (bool, error) { return false, errUnsupported }
func (r *RealReader) Close() error        { return nil }

// RealLED is not available on non-Linux platforms.
type RealLED struct{}

// NewRealLED returns an error on non-Linux platforms.
func NewRealLED(chip string, pin int) (*RealLED, error) {
	return nil, errUnsupported
}

func (l *RealLED) Set(bool) error { return errUnsupported }
func (l *RealLED) Close() error   { return nil }
