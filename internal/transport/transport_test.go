package transport

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingExecutor struct {
	mu       sync.Mutex
	commands []string
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (e *recordingExecutor) Execute(_ context.Context, command string, _ time.Duration) (CommandResult, error) {
	n := atomic.AddInt32(&e.inFlight, 1)
	for {
		seen := atomic.LoadInt32(&e.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&e.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(e.delay)
	atomic.AddInt32(&e.inFlight, -1)

	e.mu.Lock()
	e.commands = append(e.commands, command)
	e.mu.Unlock()
	return CommandResult{Command: command, Output: "ok\n"}, nil
}

func (e *recordingExecutor) Close() error { return nil }

func TestSessionSerializesCommands(t *testing.T) {
	exec := &recordingExecutor{delay: 5 * time.Millisecond}
	s := NewSession(exec, WithLogger(zaptest.NewLogger(t)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Run(context.Background(), "true")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, exec.commands, 8)
	assert.Equal(t, int32(1), atomic.LoadInt32(&exec.maxSeen))
}

func TestSessionElevation(t *testing.T) {
	tests := []struct {
		name    string
		useSudo bool
		opts    []RunOption
		want    string
	}{
		{name: "plain", useSudo: true, want: "cat /etc/hosts"},
		{name: "elevated with sudo", useSudo: true, opts: []RunOption{Elevated()}, want: "sudo -n sh -c 'cat /etc/hosts'"},
		{name: "elevated as root", useSudo: false, opts: []RunOption{Elevated()}, want: "cat /etc/hosts"},
		{name: "elevated if false", useSudo: true, opts: []RunOption{ElevatedIf(false)}, want: "cat /etc/hosts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &recordingExecutor{}
			s := NewSession(exec, WithSudo(tt.useSudo, "sudo"))
			_, err := s.Run(context.Background(), "cat /etc/hosts", tt.opts...)
			require.NoError(t, err)
			require.Len(t, exec.commands, 1)
			assert.Equal(t, tt.want, exec.commands[0])
		})
	}
}

func TestSessionClosed(t *testing.T) {
	s := NewSession(&recordingExecutor{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	res, err := s.Run(context.Background(), "true")
	assert.ErrorIs(t, err, ErrSessionNotAvailable)
	assert.Equal(t, ExitStartFailed, res.ExitCode)
}

func TestSessionCanceledContext(t *testing.T) {
	s := NewSession(&recordingExecutor{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Run(ctx, "true")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ExitCanceled, res.ExitCode)
}

func TestSessionCanceledContextNeverExecutes(t *testing.T) {
	exec := &recordingExecutor{}
	s := NewSession(exec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 200; i++ {
		res, err := s.Run(ctx, "true")
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, ExitCanceled, res.ExitCode)
	}
	assert.Empty(t, exec.commands)
}

func TestLocalExecute(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	res, err := l.Execute(ctx, "echo hello; echo oops >&2", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "hello")
	assert.Contains(t, res.Output, "oops")

	res, err = l.Execute(ctx, "exit 3", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.OK())
}

func TestLocalExecuteTimeout(t *testing.T) {
	res, err := NewLocal().Execute(context.Background(), "sleep 5", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ExitTimeout, res.ExitCode)
	assert.Contains(t, res.Output, "timed out")
}

func TestSessionWriteFileLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.conf")
	s := NewSession(NewLocal(), WithSudo(false, ""))

	ok, err := WriteFile(context.Background(), s, path, "server {}\n", false)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "server {}\n", string(data))

	f, err := ReadFile(context.Background(), s, path, false)
	require.NoError(t, err)
	assert.True(t, f.OK())
	assert.Equal(t, "server {}\n", f.Content)
}

func TestWriteFileThroughShell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "it's.conf")
	s := NewSession(NewLocal(), WithSudo(false, ""))

	ok, err := writeFileCommand(context.Background(), s, path, "line 'one'\nline two\n", false)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line 'one'\nline two\n", string(data))
}

func TestReadFileMissing(t *testing.T) {
	s := NewSession(NewLocal())
	f, err := ReadFile(context.Background(), s, "/nonexistent/velo.conf", false)
	require.NoError(t, err)
	assert.False(t, f.OK())
	assert.True(t, f.Missing)
	assert.Empty(t, f.Content)
}

func TestClassifyInspectsOnlyTheToolDiagnostic(t *testing.T) {
	const errorLog = "2024/05/01 10:00:00 [crit] 812#812: *1 open() \"/srv/app/index.html\" failed (13: Permission denied)\n" +
		"2024/05/01 10:00:01 [error] 812#812: *2 open() \"/srv/app/favicon.ico\" failed (2: No such file or directory)\n"

	tests := []struct {
		name    string
		res     CommandResult
		ok      bool
		missing bool
		denied  bool
	}{
		{name: "content mentioning errors", res: CommandResult{Output: errorLog}, ok: true},
		{name: "missing with status 0", res: CommandResult{Output: "tail: cannot open '/x' for reading: No such file or directory\n"}, missing: true},
		{name: "denied", res: CommandResult{ExitCode: 1, Output: "tail: cannot open '/x' for reading: Permission denied\n"}, denied: true},
		{name: "sudo refused", res: CommandResult{ExitCode: 1, Output: "sudo: a password is required\n"}, denied: true},
		{name: "other failure", res: CommandResult{ExitCode: 127, Output: "sh: tail: not found\n"}},
		{name: "silent failure", res: CommandResult{ExitCode: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify("/x", tt.res, "tail")
			assert.Equal(t, tt.ok, f.OK())
			assert.Equal(t, tt.missing, f.Missing)
			assert.Equal(t, tt.denied, f.Denied)
			if tt.ok {
				assert.Equal(t, tt.res.Output, f.Content)
			} else {
				assert.NotEmpty(t, f.Complaint)
				assert.Empty(t, f.Content)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"":           "''",
		"plain":      "'plain'",
		"it's":       `'it'"'"'s'`,
		"a b; rm -r": "'a b; rm -r'",
	}
	for in, want := range tests {
		assert.Equal(t, want, Quote(in), in)
	}
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines(""))
	assert.Nil(t, SplitLines("\n"))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\r\nb\n"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb"))
}
