package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig describes how to reach a remote target
type SSHConfig struct {
	Address  string
	Port     int
	User     string
	KeyFile  string
	Password string

	// KnownHosts is the known_hosts file used to verify the host key.
	// Defaults to ~/.ssh/known_hosts.
	KnownHosts string

	// InsecureIgnoreHostKey disables host key verification
	InsecureIgnoreHostKey bool

	DialTimeout time.Duration
}

// SSH executes commands on a remote host over one SSH connection.
type SSH struct {
	client *ssh.Client
	addr   string
}

// DialSSH opens the connection described by cfg
func DialSSH(ctx context.Context, cfg SSHConfig) (*SSH, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: no address", ErrSessionNotAvailable)
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Address, strconv.Itoa(port))

	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = ShortTimeout
	}
	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         dialTimeout,
	}

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrSessionNotAvailable, addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: handshake %s: %v", ErrSessionNotAvailable, addr, err)
	}
	return &SSH{client: ssh.NewClient(c, chans, reqs), addr: addr}, nil
}

func authMethods(cfg SSHConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(expandHome(cfg.KeyFile))
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing key file: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("ssh: no key file or password configured")
	}
	return methods, nil
}

func hostKeyCallback(cfg SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := cfg.KnownHosts
	if path == "" {
		path = "~/.ssh/known_hosts"
	}
	cb, err := knownhosts.New(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("loading known hosts: %w", err)
	}
	return cb, nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

type sshOutcome struct {
	out []byte
	err error
}

// Execute runs command in a fresh SSH channel
func (s *SSH) Execute(ctx context.Context, command string, timeout time.Duration) (CommandResult, error) {
	start := time.Now()
	res := CommandResult{Command: command}

	sess, err := s.client.NewSession()
	if err != nil {
		res.ExitCode = ExitStartFailed
		return res, fmt.Errorf("%w: %s: %v", ErrSessionNotAvailable, s.addr, err)
	}
	defer func() { _ = sess.Close() }()

	done := make(chan sshOutcome, 1)
	go func() {
		out, err := sess.CombinedOutput(command)
		done <- sshOutcome{out: out, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		res.ExitCode = ExitCanceled
		res.ExecutionTime = time.Since(start)
		return res, ctx.Err()
	case <-timer.C:
		_ = sess.Signal(ssh.SIGKILL)
		res.ExitCode = ExitTimeout
		res.Output = fmt.Sprintf("command timed out after %s", timeout)
		res.ExecutionTime = time.Since(start)
		return res, nil
	case o := <-done:
		res.Output = string(o.out)
		res.ExecutionTime = time.Since(start)
		var exitErr *ssh.ExitError
		var missing *ssh.ExitMissingError
		switch {
		case o.err == nil:
			res.ExitCode = 0
		case errors.As(o.err, &exitErr):
			res.ExitCode = exitErr.ExitStatus()
		case errors.As(o.err, &missing):
			res.ExitCode = ExitStartFailed
		default:
			res.ExitCode = ExitStartFailed
			return res, fmt.Errorf("%w: %s: %v", ErrSessionNotAvailable, s.addr, o.err)
		}
		return res, nil
	}
}

// Close closes the underlying connection
func (s *SSH) Close() error {
	return s.client.Close()
}
