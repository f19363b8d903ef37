package tool

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Resolve when a tool cannot be located.
var ErrNotFound = errors.New("tool not found")

// Status is the outcome of an invocation.
type Status int

const (
	// StatusSuccess indicates the tool exited with code 0.
	StatusSuccess Status = iota
	// StatusFailed indicates the tool failed to start or exited non-zero.
	StatusFailed
	// StatusNotFound indicates the tool could not be located.
	StatusNotFound
	// StatusCancelled indicates the caller cancelled the invocation.
	StatusCancelled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// CancelFunc is polled while a tool runs; returning true cancels it.
type CancelFunc func() bool

// Result is the response of one invocation.
type Result struct {
	// ID uniquely identifies the invocation in logs.
	ID string

	Tool     string
	Status   Status
	ExitCode int

	// Output is the combined stdout and stderr.
	Output string

	// Message is a human-readable summary, set for every non-success status.
	Message string

	Duration time.Duration
}

// OK reports whether the tool succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Err converts a non-success result into an error.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	if r.Message != "" {
		return fmt.Errorf("%s: %s", r.Status, r.Message)
	}
	return fmt.Errorf("%s: %s", r.Tool, r.Status)
}

// Spec describes how to locate a tool.
type Spec struct {
	// Name identifies the tool (e.g., "apktool").
	Name string

	// Binary is the executable name looked up in directories and PATH.
	Binary string

	// Jar is the bundled jar file name; empty when the tool has no jar.
	Jar string

	// InstallPaths are directories probed last.
	InstallPaths []string
}

// Tool is a located-on-demand external tool.
type Tool struct {
	spec   Spec
	runner *Runner
}

// New creates a tool invoked through runner.
func New(spec Spec, runner *Runner) *Tool {
	return &Tool{spec: spec, runner: runner}
}

// Spec returns the tool description.
func (t *Tool) Spec() Spec {
	return t.spec
}

// Invoke runs the tool with args in workingDir. cancel may be nil.
func (t *Tool) Invoke(ctx context.Context, args []string, workingDir string, cancel CancelFunc) Result {
	return t.runner.Invoke(ctx, t.spec, args, workingDir, cancel)
}

// Available reports whether the tool can be located.
func (t *Tool) Available() bool {
	_, err := t.runner.resolver.Resolve(t.spec)
	return err == nil
}
