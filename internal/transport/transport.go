// Package transport executes shell commands against a target host.
//
// Every command the orchestration core issues goes through a Runner. A Runner
// backed by a Session guarantees that exactly one command is in flight per
// target: concurrent callers queue behind the one currently executing.
package transport

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Timeouts used by call sites that do not pick their own.
const (
	// DefaultTimeout bounds ordinary probes and queries
	DefaultTimeout = 30 * time.Second

	// ShortTimeout bounds cheap probes such as `test -d` or `command -v`
	ShortTimeout = 10 * time.Second

	// LongTimeout bounds package installs and similar slow operations
	LongTimeout = 10 * time.Minute
)

// Exit codes synthesized when the remote side never produced one.
const (
	// ExitStartFailed means the command could not be started at all
	ExitStartFailed = -1

	// ExitTimeout mirrors coreutils timeout(1)
	ExitTimeout = 124

	// ExitCanceled means the caller's context was canceled mid-command
	ExitCanceled = 130
)

// ErrSessionNotAvailable is returned when there is no usable session to the
// target: it was never opened, has been closed, or the connection dropped.
var ErrSessionNotAvailable = errors.New("transport: session not available")

// CommandResult is the atomic unit returned by a transport. It is always
// well formed: a failed or timed-out command still carries its command text,
// whatever output was captured, and a nonzero exit code.
type CommandResult struct {
	Command       string        `json:"command"`
	Output        string        `json:"output"`
	ExitCode      int           `json:"exitCode"`
	ExecutionTime time.Duration `json:"executionTime"`
}

// OK reports whether the command exited with status 0.
func (r CommandResult) OK() bool {
	return r.ExitCode == 0
}

// Trimmed returns the output without surrounding whitespace.
func (r CommandResult) Trimmed() string {
	return strings.TrimSpace(r.Output)
}

// Lines splits the output into lines, dropping a trailing empty line and any
// carriage returns.
func (r CommandResult) Lines() []string {
	return SplitLines(r.Output)
}

// SplitLines splits text on newlines, strips CR and drops the empty line a
// trailing newline would produce.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Executor runs one shell command string with a timeout. It is the raw
// primitive behind a Session and makes no ordering guarantees of its own.
type Executor interface {
	Execute(ctx context.Context, command string, timeout time.Duration) (CommandResult, error)
	Close() error
}

// Runner is what detectors, providers and the aggregator depend on.
// Implementations must serialize commands per target.
type Runner interface {
	Run(ctx context.Context, command string, opts ...RunOption) (CommandResult, error)
}

// RunConfig holds the per-command settings assembled from RunOptions.
type RunConfig struct {
	Timeout  time.Duration
	Elevated bool
}

// RunOption configures a single Run call
type RunOption func(*RunConfig)

// WithTimeout overrides the timeout for one command
func WithTimeout(d time.Duration) RunOption {
	return func(c *RunConfig) {
		c.Timeout = d
	}
}

// Elevated asks the runner to execute the command with elevated privileges
func Elevated() RunOption {
	return func(c *RunConfig) {
		c.Elevated = true
	}
}

// ElevatedIf is Elevated when cond holds and a no-op otherwise.
func ElevatedIf(cond bool) RunOption {
	return func(c *RunConfig) {
		if cond {
			c.Elevated = true
		}
	}
}

// NewRunConfig applies opts over the given default timeout.
func NewRunConfig(defaultTimeout time.Duration, opts ...RunOption) RunConfig {
	cfg := RunConfig{Timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg
}
