package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log:
  level: debug
  format: json
timeouts:
  default: 20s
hosts:
  web1:
    address: 10.0.0.5
    user: deploy
    key_file: ~/.ssh/id_ed25519
  db1:
    address: db.internal
    port: 2222
    user: admin
    password_env: DB1_PASSWORD
    sudo: false
default_host: web1
catalog_files:
  - /etc/velo/extra.yaml
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "velo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(NewViper(""))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Default)
	assert.Equal(t, 10*time.Minute, cfg.Timeouts.Long)
	assert.True(t, cfg.Sudo.Enabled)
	assert.Equal(t, Local, cfg.DefaultHost)
	assert.Equal(t, "@every 1m", cfg.Watch.Schedule)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(NewViper(writeConfig(t, sample)))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 20*time.Second, cfg.Timeouts.Default)
	assert.Equal(t, []string{"db1", "web1"}, cfg.HostNames())
	assert.Equal(t, 2222, cfg.Hosts["db1"].Port)
	assert.Equal(t, []string{"/etc/velo/extra.yaml"}, cfg.CatalogFiles)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.UseSudo("web1"))
	assert.False(t, cfg.UseSudo("db1"))
}

func TestLoadMissingNamedFile(t *testing.T) {
	_, err := Load(NewViper(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("VELO_LOG_LEVEL", "warn")
	t.Setenv("VELO_API_ADDR", ":9000")
	cfg, err := Load(NewViper(writeConfig(t, sample)))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":9000", cfg.API.Addr)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(NewViper(writeConfig(t, `
log:
  format: xml
timeouts:
  default: 1m
  long: 10s
default_host: nowhere
hosts:
  local:
    address: 127.0.0.1
    key_file: k
  bad:
    port: 70000
`)))
	require.NoError(t, err)

	err = cfg.Validate()
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)

	fields := map[string]bool{}
	for _, ve := range verrs {
		fields[ve.Field] = true
	}
	for _, f := range []string{"log.format", "timeouts.long", "default_host", "hosts.local", "hosts.bad.address", "hosts.bad.port", "hosts.bad"} {
		assert.True(t, fields[f], "missing error for %s in %v", f, err)
	}
}

func TestSSHConfig(t *testing.T) {
	cfg, err := Load(NewViper(writeConfig(t, sample)))
	require.NoError(t, err)

	_, err = cfg.SSHConfig("db1")
	require.Error(t, err, "password env not set")

	t.Setenv("DB1_PASSWORD", "s3cret")
	sc, err := cfg.SSHConfig("db1")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", sc.Address)
	assert.Equal(t, 2222, sc.Port)
	assert.Equal(t, "s3cret", sc.Password)

	_, err = cfg.SSHConfig("nope")
	assert.Error(t, err)
}

func TestWatchDeliversChanges(t *testing.T) {
	path := writeConfig(t, sample)
	v := NewViper(path)
	_, err := Load(v)
	require.NoError(t, err)

	got := make(chan *Config, 4)
	Watch(v, func(cfg *Config, err error) {
		if err != nil {
			return
		}
		select {
		case got <- cfg:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o644))

	// a truncating write can deliver the empty file first
	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-got:
			if cfg.Log.Level == "error" {
				return
			}
		case <-timeout:
			t.Fatal("no change delivered")
		}
	}
}
