package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session serializes commands against one target. It wraps an Executor,
// applies sudo elevation on request and owns the executor's lifetime.
type Session struct {
	// ID identifies the session in logs
	ID string

	// Host is the target's display name
	Host string

	// UseSudo indicates whether elevated commands are wrapped in sudo
	UseSudo bool

	// SudoCommand is the sudo command to use (default: "sudo")
	SudoCommand string

	// Timeout is applied to commands that do not set their own
	Timeout time.Duration

	exec   Executor
	log    *zap.Logger
	slot   chan struct{}
	closed chan struct{}
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithSudo configures sudo usage for elevated commands
func WithSudo(use bool, command string) SessionOption {
	return func(s *Session) {
		s.UseSudo = use
		if command != "" {
			s.SudoCommand = command
		}
	}
}

// WithDefaultTimeout sets the timeout for commands without an explicit one
func WithDefaultTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.Timeout = d
		}
	}
}

// WithHost sets the display name of the target
func WithHost(host string) SessionOption {
	return func(s *Session) {
		s.Host = host
	}
}

// WithLogger sets the logger used for command tracing
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSession creates a Session over exec. By default elevation uses sudo
// unless the local process already runs as root.
func NewSession(exec Executor, opts ...SessionOption) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		Host:        "localhost",
		UseSudo:     os.Geteuid() != 0,
		SudoCommand: "sudo",
		Timeout:     DefaultTimeout,
		exec:        exec,
		log:         zap.NewNop(),
		slot:        make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("session", s.ID), zap.String("host", s.Host))
	return s
}

// Run executes command, waiting for any command already in flight on this
// session to finish first.
func (s *Session) Run(ctx context.Context, command string, opts ...RunOption) (CommandResult, error) {
	cfg := NewRunConfig(s.Timeout, opts...)
	if cfg.Elevated && s.UseSudo {
		command = fmt.Sprintf("%s -n sh -c %s", s.SudoCommand, Quote(command))
	}

	if res, err := s.usable(ctx, command); err != nil {
		return res, err
	}
	select {
	case <-s.closed:
		return CommandResult{Command: command, ExitCode: ExitStartFailed}, ErrSessionNotAvailable
	case <-ctx.Done():
		return CommandResult{Command: command, ExitCode: ExitCanceled}, ctx.Err()
	case s.slot <- struct{}{}:
	}
	defer func() { <-s.slot }()

	// the slot can be won while ctx is already done
	if res, err := s.usable(ctx, command); err != nil {
		return res, err
	}

	res, err := s.exec.Execute(ctx, command, cfg.Timeout)
	s.log.Debug("command finished",
		zap.String("command", command),
		zap.Int("exit", res.ExitCode),
		zap.Duration("elapsed", res.ExecutionTime),
		zap.Error(err))
	return res, err
}

// usable fails when the session is closed or ctx is already done
func (s *Session) usable(ctx context.Context, command string) (CommandResult, error) {
	select {
	case <-s.closed:
		return CommandResult{Command: command, ExitCode: ExitStartFailed}, ErrSessionNotAvailable
	default:
	}
	if err := ctx.Err(); err != nil {
		return CommandResult{Command: command, ExitCode: ExitCanceled}, err
	}
	return CommandResult{}, nil
}

// WriteFile writes content to path on the target. Unelevated writes go
// straight to the executor when it can write files itself; everything else
// falls back to a shell pipeline.
func (s *Session) WriteFile(ctx context.Context, path, content string, elevated bool) (bool, error) {
	if fw, ok := s.exec.(fileWriter); ok && !elevated {
		if err := fw.WriteFile(path, []byte(content)); err != nil {
			s.log.Debug("direct write failed", zap.String("path", path), zap.Error(err))
			return false, nil
		}
		return true, nil
	}
	return writeFileCommand(ctx, s, path, content, elevated)
}

// Close releases the executor. Commands issued afterwards fail with
// ErrSessionNotAvailable.
func (s *Session) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
		close(s.closed)
	}
	return s.exec.Close()
}

// Done is closed when the session is closed
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

type fileWriter interface {
	WriteFile(path string, data []byte) error
}
