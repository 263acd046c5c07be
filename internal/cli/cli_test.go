package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AzozzALFiras/velo"
	"github.com/AzozzALFiras/velo/internal/config"
	"github.com/AzozzALFiras/velo/internal/logging"
	"github.com/AzozzALFiras/velo/internal/transport"
	"github.com/AzozzALFiras/velo/internal/transport/transporttest"
)

const statusOutput = "SVC_REDIS\nactive\nVER_REDIS\nRedis server v=7.2.4\nSVC_NODEJS\nVER_NODEJS\nNOT_INSTALLED\n"

// execute runs the command tree against fake hosts keyed by host name
func execute(t *testing.T, hosts map[string]*transporttest.Fake, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	log, err := logging.New("error", logging.FormatConsole)
	require.NoError(t, err)
	e := &env{
		log: log,
		dial: func(_ context.Context, host string) (transport.Runner, error) {
			f, ok := hosts[host]
			if !ok {
				return nil, fmt.Errorf("no route to %s", host)
			}
			return f, nil
		},
	}

	cmd := newRootCommand(e)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func local(f *transporttest.Fake) map[string]*transporttest.Fake {
	return map[string]*transporttest.Fake{config.Local: f}
}

func TestCommandTree(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"apps"}, {"status"}, {"load"}, {"start"}, {"stop"}, {"restart"}, {"reload"},
		{"config", "get"}, {"config", "set"}, {"config", "pull"},
		{"versions"}, {"switch"}, {"db", "create"}, {"db", "drop"},
		{"site", "create"}, {"site", "delete"}, {"install"}, {"watch"}, {"serve"}, {"version"},
	} {
		found, _, err := cmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, local(transporttest.New()), "", "version", "-o", "json")
	require.NoError(t, err)

	var info velo.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, velo.Version, info.Version)
	assert.Len(t, info.Applications, 9)
}

func TestUnknownFormat(t *testing.T) {
	_, err := execute(t, local(transporttest.New()), "", "version", "-o", "xml")
	assert.ErrorContains(t, err, "xml")
}

func TestStatusText(t *testing.T) {
	run := transporttest.New()
	run.On("echo SVC_REDIS").Output(statusOutput)

	out, err := execute(t, local(run), "", "status", "redis", "nodejs")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	assert.Equal(t, []string{"HOST", "APP", "STATUS", "VERSION"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"local", "nodejs", "notInstalled"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"local", "redis", "running", "7.2.4"}, strings.Fields(lines[2]))
}

func TestStatusFormats(t *testing.T) {
	run := transporttest.New()
	run.On("echo SVC_REDIS").Output(statusOutput)
	hosts := local(run)

	out, err := execute(t, hosts, "", "status", "redis", "nodejs", "-o", "json")
	require.NoError(t, err)
	var asJSON map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &asJSON))
	assert.Equal(t, "running", asJSON["redis"]["status"])
	assert.Equal(t, "7.2.4", asJSON["redis"]["version"])

	out, err = execute(t, hosts, "", "status", "redis", "nodejs", "-o", "yaml")
	require.NoError(t, err)
	var asYAML map[string]string
	require.NoError(t, yaml.Unmarshal([]byte(out), &asYAML))
	assert.Equal(t, map[string]string{"redis": "running(7.2.4)", "nodejs": "notInstalled"}, asYAML)

	out, err = execute(t, hosts, "", "status", "redis", "nodejs", "-o", "toml")
	require.NoError(t, err)
	var asTOML map[string]string
	_, err = toml.Decode(out, &asTOML)
	require.NoError(t, err)
	assert.Equal(t, "running(7.2.4)", asTOML["redis"])
}

func TestAppsCategory(t *testing.T) {
	out, err := execute(t, local(transporttest.New()), "", "apps", "--category", "database")
	require.NoError(t, err)
	assert.Contains(t, out, "mysql")
	assert.Contains(t, out, "postgresql")
	assert.Contains(t, out, "mongodb")
	assert.NotContains(t, out, "nginx")

	_, err = execute(t, local(transporttest.New()), "", "apps", "--category", "queue")
	assert.ErrorContains(t, err, "unknown category")
}

func TestAppsTOMLWrapsList(t *testing.T) {
	out, err := execute(t, local(transporttest.New()), "", "apps", "--category", "cache", "-o", "toml")
	require.NoError(t, err)

	var doc struct {
		Items []map[string]any `toml:"items"`
	}
	_, err = toml.Decode(out, &doc)
	require.NoError(t, err, out)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "redis", doc.Items[0]["ID"])
}

func TestConfigGetAndPull(t *testing.T) {
	run := transporttest.New()
	run.On("cat '/etc/redis/redis.conf'").Output("maxmemory 256mb\n")

	out, err := execute(t, local(run), "", "config", "get", "redis")
	require.NoError(t, err)
	assert.Equal(t, "maxmemory 256mb\n", out)

	dest := filepath.Join(t.TempDir(), "redis.conf")
	out, err = execute(t, local(run), "", "config", "pull", "redis", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "/etc/redis/redis.conf -> "+dest)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "maxmemory 256mb\n", string(got))
}

func TestConfigSetRejected(t *testing.T) {
	run := transporttest.New()
	run.On("cat '/etc/nginx/nginx.conf'").Output("worker_processes auto;\n")
	run.On("base64 -d > '/etc/nginx/nginx.conf'").Output("")
	run.On("nginx -t").Exit(1, "nginx: [emerg] unexpected end of file\n")

	out, err := execute(t, local(run), "events {\n", "config", "set", "nginx", "-")
	assert.ErrorContains(t, err, "not applied")
	assert.Contains(t, out, "rejected by the config test")
	assert.Contains(t, out, "unexpected end of file")
	assert.False(t, run.Ran("systemctl reload"))
}

func TestRestartSkippedWhenConfigTestFails(t *testing.T) {
	run := transporttest.New()
	run.On("nginx -t").Exit(1, "nginx: [emerg] unknown directive \"servr\"\n")

	out, err := execute(t, local(run), "", "restart", "nginx")
	assert.ErrorContains(t, err, "restart nginx failed")
	assert.Contains(t, out, "failed")
	assert.False(t, run.Ran("systemctl restart"))
}

func TestControlAllHosts(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "velo.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
hosts:
  cache1:
    address: 10.0.0.1
    key_file: /dev/null
  cache2:
    address: 10.0.0.2
    key_file: /dev/null
`), 0o644))

	hosts := map[string]*transporttest.Fake{}
	for _, h := range []string{"cache1", "cache2"} {
		f := transporttest.New()
		f.On("systemctl restart").Output("")
		hosts[h] = f
	}

	out, err := execute(t, hosts, "", "-c", cfgFile, "restart", "redis", "--all-hosts")
	require.NoError(t, err, out)
	assert.Contains(t, out, "cache1")
	assert.Contains(t, out, "cache2")
	for h, f := range hosts {
		assert.True(t, f.Ran("systemctl restart"), h)
	}
}

func TestStatusUnknownHost(t *testing.T) {
	_, err := execute(t, local(transporttest.New()), "", "status", "-H", "nowhere")
	assert.ErrorContains(t, err, "nowhere")
}

func TestTOMLDocument(t *testing.T) {
	list := []string{"a"}
	assert.Equal(t, map[string]any{"items": list}, tomlDocument(list))

	m := map[string]int{"a": 1}
	assert.Equal(t, m, tomlDocument(m))

	s := &velo.VersionInfo{}
	assert.Same(t, s, tomlDocument(s))
}
