package version

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport"
	"github.com/AzozzALFiras/velo/internal/transport/transporttest"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"8.2", "8.10", -1},
		{"8.10", "8.2", 1},
		{"8.2", "8.2.0", 0},
		{"v20.11.0", "20.11.0", 0},
		{"1.24.0", "1.9.15", 1},
		{"3.11", "3.9", 1},
		{"16", "15.4", 1},
		{"", "0", 0},
		{"7.4.33", "7.4.3", 1},
		{"1-beta", "1.0", 0},
	}
	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSortDescending(t *testing.T) {
	got := SortDescending([]string{"8.1", "8.10", "8.2", "7.4", "8.2.0", "", "8.3", "8.1"})
	assert.Equal(t, []string{"8.10", "8.3", "8.2", "8.1", "7.4"}, got)

	for i := 1; i < len(got); i++ {
		assert.Equal(t, 1, Compare(got[i-1], got[i]), "strictly descending at %d", i)
	}
	assert.Empty(t, SortDescending(nil))
}

func TestLatest(t *testing.T) {
	v, ok := Latest([]string{"3.9", "3.12", "3.11"})
	require.True(t, ok)
	assert.Equal(t, "3.12", v)

	_, ok = Latest(nil)
	assert.False(t, ok)
}

func phpDefinition(t *testing.T) app.Definition {
	t.Helper()
	d, ok := app.DefaultRegistry().Application("php")
	require.True(t, ok)
	return d
}

func TestInstalledVersionsFromGlobFallback(t *testing.T) {
	run := transporttest.New()
	run.On("update-alternatives --list").Exit(2, "")
	run.On("ls -1d /usr/bin/php").Output("/usr/bin/php7.4\n/usr/bin/php8.10\n/usr/bin/php8.2\n/usr/bin/php8.2\n/usr/bin/php8.1\n")

	r := NewResolver(phpDefinition(t), zaptest.NewLogger(t))
	got := r.InstalledVersions(context.Background(), run)
	assert.Equal(t, []string{"8.10", "8.2", "8.1", "7.4"}, got)
	assert.True(t, run.Ran("update-alternatives --list"), "primary strategy tried first")
}

func TestInstalledVersionsFromAlternatives(t *testing.T) {
	run := transporttest.New()
	run.On("update-alternatives --list").Output("/usr/bin/php8.1\n/usr/bin/php8.3\n")

	r := NewResolver(phpDefinition(t), nil)
	got := r.InstalledVersions(context.Background(), run)
	assert.Equal(t, []string{"8.3", "8.1"}, got)
	assert.False(t, run.Ran("ls -1d"), "fallback must not run once the primary succeeds")
}

func TestInstalledVersionsNothingFound(t *testing.T) {
	run := transporttest.New()
	r := NewResolver(phpDefinition(t), nil)
	got := r.InstalledVersions(context.Background(), run)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestInstalledVersionsNvm(t *testing.T) {
	d, ok := app.DefaultRegistry().Application("nodejs")
	require.True(t, ok)

	run := transporttest.New()
	run.On("nvm ls").Output("        v18.19.0\n->     v20.11.0\n         system\ndefault -> 20 (-> v20.11.0)\nlts/* -> lts/iron (-> v20.11.0)\n")

	r := NewResolver(d, nil)
	assert.Equal(t, []string{"20.11.0", "18.19.0"}, r.InstalledVersions(context.Background(), run))
}

func TestActiveVersion(t *testing.T) {
	run := transporttest.New()
	run.On("update-alternatives --query").Output("Value: /usr/bin/php8.2\n")

	r := NewResolver(phpDefinition(t), nil)
	v, ok := r.ActiveVersion(context.Background(), run)
	require.True(t, ok)
	assert.Equal(t, "8.2", v)
}

func TestActiveVersionFallsBackToBinary(t *testing.T) {
	run := transporttest.New()
	run.On("php -v").Output("PHP 8.3.4 (cli) (built: Mar 16 2024)\nCopyright (c) The PHP Group\n")

	r := NewResolver(phpDefinition(t), nil)
	v, ok := r.ActiveVersion(context.Background(), run)
	require.True(t, ok)
	assert.Equal(t, "8.3.4", v)

	_, ok = NewResolver(phpDefinition(t), nil).ActiveVersion(context.Background(), transporttest.New())
	assert.False(t, ok)
}

func TestSwitchPrimary(t *testing.T) {
	run := transporttest.New()
	run.On("update-alternatives --list").Output("/usr/bin/php8.1\n/usr/bin/php8.3\n")
	run.On("update-alternatives --set").Output("")

	r := NewResolver(phpDefinition(t), nil)
	res, err := r.Switch(context.Background(), run, "8.1")
	require.NoError(t, err)
	assert.True(t, res.Switched)
	assert.Equal(t, app.SwitchAlternatives, res.Via)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "update-alternatives --set 'php' '/usr/bin/php8.1'", res.Attempts[0].Command)

	for _, c := range run.Calls() {
		if c.Command == res.Attempts[0].Command {
			assert.True(t, c.Config.Elevated)
		}
	}
}

func TestSwitchFallsBackToSymlink(t *testing.T) {
	run := transporttest.New()
	run.On("update-alternatives --list").Output("/usr/bin/php8.1\n/usr/bin/php8.3\n")
	run.On("update-alternatives --set").Exit(2, "update-alternatives: error: alternative /usr/bin/php8.1 for php not registered")
	run.On("ln -sfn").Output("")

	r := NewResolver(phpDefinition(t), nil)
	res, err := r.Switch(context.Background(), run, "8.1")
	require.NoError(t, err)
	assert.True(t, res.Switched)
	assert.Equal(t, app.SwitchSymlink, res.Via)
	require.Len(t, res.Attempts, 2)
	assert.False(t, res.Attempts[0].OK)
	assert.Contains(t, res.Attempts[0].Output, "not registered")
	assert.True(t, res.Attempts[1].OK)
}

func TestSwitchLogicalFailures(t *testing.T) {
	run := transporttest.New()
	run.On("update-alternatives --list").Output("/usr/bin/php8.3\n")
	run.On("update-alternatives --set").Exit(2, "")
	run.On("ln -sfn").Exit(1, "")

	r := NewResolver(phpDefinition(t), nil)

	res, err := r.Switch(context.Background(), run, "5.6")
	require.NoError(t, err)
	assert.False(t, res.Switched)
	assert.Empty(t, res.Attempts)

	res, err = r.Switch(context.Background(), run, "8.3")
	require.NoError(t, err)
	assert.False(t, res.Switched)
	assert.Len(t, res.Attempts, 2)
}

func TestSwitchTransportFailure(t *testing.T) {
	run := transporttest.New()
	run.On("update-alternatives --list").Output("/usr/bin/php8.3\n")
	run.On("update-alternatives --set").Fail(transport.ErrSessionNotAvailable)

	r := NewResolver(phpDefinition(t), nil)
	_, err := r.Switch(context.Background(), run, "8.3")
	assert.True(t, errors.Is(err, transport.ErrSessionNotAvailable))
}

func nodeDefinition(t *testing.T) app.Definition {
	t.Helper()
	d, ok := app.DefaultRegistry().Application("nodejs")
	require.True(t, ok)
	return d
}

func TestSwitchRejectsMalformedVersion(t *testing.T) {
	run := transporttest.New()
	run.On("nvm ls").Output("        v18.19.0\n->     v20.11.0\n")
	run.On("nvm alias default").Output("")

	r := NewResolver(nodeDefinition(t), nil)
	for _, to := range []string{"20.11.0;touch /tmp/pwned", "20.11.0 && id", "v20.11.0", "20.11.0\n", "", "20.x"} {
		res, err := r.Switch(context.Background(), run, to)
		require.NoError(t, err, to)
		assert.False(t, res.Switched, to)
		assert.Empty(t, res.Attempts, to)
	}
	for _, c := range run.Commands() {
		assert.NotContains(t, c, "touch")
		assert.NotContains(t, c, "alias default")
	}
}

func TestSwitchVersionManagerUsesInstalledEntryUnelevated(t *testing.T) {
	run := transporttest.New()
	run.On("nvm ls").Output("        v18.19.0\n->     v20.11.0\n")
	run.On("nvm alias default").Output("")

	r := NewResolver(nodeDefinition(t), nil)
	res, err := r.Switch(context.Background(), run, "18.19")
	require.NoError(t, err)
	assert.True(t, res.Switched)
	assert.Equal(t, "18.19.0", res.Version)
	require.Len(t, res.Attempts, 1)
	assert.Contains(t, res.Attempts[0].Command, "nvm alias default 18.19.0 && nvm use 18.19.0")

	for _, c := range run.Calls() {
		if c.Command == res.Attempts[0].Command {
			assert.False(t, c.Config.Elevated)
		}
	}
}

func TestMatch(t *testing.T) {
	installed := []string{"20.11.0", "18.19.0"}
	got, ok := Match(installed, "20.11")
	assert.True(t, ok)
	assert.Equal(t, "20.11.0", got)

	_, ok = Match(installed, "20.11.0;reboot")
	assert.False(t, ok)
	assert.False(t, Contains(installed, "18.19.0 "))
	assert.True(t, Valid("8.2"))
	assert.False(t, Valid("8.2-beta"))
}

func TestExtractVersion(t *testing.T) {
	assert.Equal(t, "nginx/1.24.0", ExtractVersion("nginx version: nginx/1.24.0\n", `version:\s*(\S+)`))
	assert.Equal(t, "7.2.4", ExtractVersion("Redis server v=7.2.4 sha=00000000:0", `v=(\d+(?:\.\d+)+)`))
	assert.Equal(t, "16.2", ExtractVersion("psql (PostgreSQL) 16.2", ""))
	assert.Empty(t, ExtractVersion("command not found", ""))
}
