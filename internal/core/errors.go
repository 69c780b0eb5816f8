// Package core defines sentinel errors.
package core

import "errors"

var (
	// Configuration errors
	ErrConfigInvalid = errors.New("vrtbridge: invalid configuration")

	// Input errors
	ErrUnsupportedInput  = errors.New("vrtbridge: unsupported iq input type")
	ErrUnsupportedFormat = errors.New("vrtbridge: unsupported iq file format")
	ErrSourceClosed      = errors.New("vrtbridge: iq source closed")

	// Output errors
	ErrUnsupportedOutput = errors.New("vrtbridge: unsupported vrt output type")
	ErrSinkClosed        = errors.New("vrtbridge: vrt sink closed")
)
