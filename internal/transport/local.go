package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/renameio/v2"
)

// FileMode is the mode used for files written on a local target
const FileMode = 0o644

// Local executes commands on this machine through a POSIX shell.
type Local struct {
	// Shell is the shell binary (default: "/bin/sh")
	Shell string

	// Env is appended to the current environment for each command
	Env []string
}

// NewLocal creates a Local executor using /bin/sh
func NewLocal() *Local {
	return &Local{Shell: "/bin/sh"}
}

// Execute runs command through the shell with a timeout
func (l *Local) Execute(ctx context.Context, command string, timeout time.Duration) (CommandResult, error) {
	start := time.Now()
	res := CommandResult{Command: command}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, l.Shell, "-c", command)
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	out, err := cmd.CombinedOutput()
	res.Output = string(out)
	res.ExecutionTime = time.Since(start)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case ctx.Err() != nil:
		res.ExitCode = ExitCanceled
		return res, ctx.Err()
	case errors.Is(cctx.Err(), context.DeadlineExceeded):
		res.ExitCode = ExitTimeout
		res.Output += fmt.Sprintf("\ncommand timed out after %s", timeout)
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = ExitStartFailed
		res.Output += err.Error()
	}
	return res, nil
}

// WriteFile atomically replaces path with data
func (l *Local) WriteFile(path string, data []byte) error {
	return renameio.WriteFile(path, data, FileMode)
}

// Close is a no-op for local execution
func (l *Local) Close() error {
	return nil
}
