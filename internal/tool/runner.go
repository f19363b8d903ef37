package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Defaults for Runner.
const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultGracePeriod  = 2 * time.Second
)

// Runner starts tool processes and waits for them with a polling loop.
type Runner struct {
	resolver     *Resolver
	logger       *logrus.Entry
	pollInterval time.Duration
	grace        time.Duration
	env          []string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger.WithField("component", "tool-runner")
		}
	}
}

// WithPollInterval sets how often the cancel predicate is checked.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithGracePeriod sets how long a cancelled process has between SIGTERM
// and SIGKILL.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d >= 0 {
			r.grace = d
		}
	}
}

// WithEnv appends environment variables ("KEY=value") to every invocation.
func WithEnv(env ...string) RunnerOption {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// NewRunner creates a runner resolving tools with resolver.
func NewRunner(resolver *Resolver, opts ...RunnerOption) *Runner {
	if resolver == nil {
		resolver = NewResolver()
	}
	r := &Runner{
		resolver:     resolver,
		logger:       logrus.New().WithField("component", "tool-runner"),
		pollInterval: DefaultPollInterval,
		grace:        DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolver returns the runner's resolver.
func (r *Runner) Resolver() *Resolver {
	return r.resolver
}

// Invoke locates spec and runs it with args in workingDir. It returns once
// the process exits or, after cancellation, once it has been stopped.
func (r *Runner) Invoke(ctx context.Context, spec Spec, args []string, workingDir string, cancel CancelFunc) Result {
	res := Result{ID: uuid.New().String(), Tool: spec.Name, ExitCode: -1}
	log := r.logger.WithFields(logrus.Fields{"tool": spec.Name, "invocation": res.ID})

	loc, err := r.resolver.Resolve(spec)
	if err != nil {
		res.Status = StatusNotFound
		res.Message = fmt.Sprintf("%s was not found; install it or configure the toolchain directory", spec.Name)
		log.Warn("tool not found")
		return res
	}

	argv := loc.Command(args)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = workingDir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	if err := cmd.Start(); err != nil {
		res.Status = StatusFailed
		res.Message = fmt.Sprintf("failed to start %s: %v", spec.Name, err)
		log.WithError(err).Warn("tool failed to start")
		return res
	}
	log.WithField("args", strings.Join(args, " ")).Debug("tool started")

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	cancelled, waitErr := r.poll(ctx, cmd, done, cancel)

	res.Duration = time.Since(start)
	res.Output = out.String()
	res.ExitCode = exitCode(cmd, waitErr)

	switch {
	case cancelled:
		res.Status = StatusCancelled
		res.Message = spec.Name + " was cancelled"
	case waitErr != nil:
		res.Status = StatusFailed
		res.Message = fmt.Sprintf("%s failed: %v", spec.Name, waitErr)
	default:
		res.Status = StatusSuccess
	}

	log.WithFields(logrus.Fields{
		"status":    res.Status,
		"exit_code": res.ExitCode,
		"duration":  res.Duration,
	}).Debug("tool finished")
	return res
}

// poll waits for done, checking cancel and ctx every poll interval. On
// cancellation it stops the process and reports cancelled.
func (r *Runner) poll(ctx context.Context, cmd *exec.Cmd, done <-chan error, cancel CancelFunc) (bool, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return false, err
		case <-ticker.C:
			if ctx.Err() == nil && (cancel == nil || !cancel()) {
				continue
			}
			return true, r.stop(cmd, done)
		}
	}
}

// stop sends SIGTERM, waits up to the grace period, then sends SIGKILL.
func (r *Runner) stop(cmd *exec.Cmd, done <-chan error) error {
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = cmd.Process.Kill()
		return <-done
	}

	timer := time.NewTimer(r.grace)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		r.logger.WithField("pid", cmd.Process.Pid).Debug("tool ignored SIGTERM, killing")
		_ = cmd.Process.Kill()
		return <-done
	}
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
