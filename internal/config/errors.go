package config

import "errors"

// Errors returned by configuration operations.
var (
	// ErrValidationFailed indicates a value is out of range.
	ErrValidationFailed = errors.New("validation failed")

	// ErrDecode indicates the merged configuration has a value of the wrong type.
	ErrDecode = errors.New("config decode failed")
)
