package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates Start was called twice.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrNotRunning indicates the application is not running.
	ErrNotRunning = errors.New("application not running")

	// ErrNoFormatter indicates no formatter is registered for a language.
	ErrNoFormatter = errors.New("no formatter for language")

	// ErrBinaryFile indicates a binary file no handler accepted.
	ErrBinaryFile = errors.New("binary file has no handler")

	// ErrNoWorkspace indicates an operation that needs an open workspace.
	ErrNoWorkspace = errors.New("no workspace open")

	// ErrServiceUnavailable indicates no plugin provides a service.
	ErrServiceUnavailable = errors.New("service not available")

	// ErrUnknownPlugin indicates a plugin id that is not loaded.
	ErrUnknownPlugin = errors.New("unknown plugin")
)

// FileError is an error for a file operation.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// ServiceError reports a missing service.
type ServiceError struct {
	Service string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", ErrServiceUnavailable, e.Service)
}

func (e *ServiceError) Unwrap() error {
	return ErrServiceUnavailable
}
