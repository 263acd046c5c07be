// Package config loads velo's settings with viper: a YAML file, VELO_*
// environment variables and defaults, in increasing order of precedence
// from defaults up.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/AzozzALFiras/velo/internal/transport"
)

// Local is the reserved host name for the machine velo runs on
const Local = "local"

// Config is the decoded configuration
type Config struct {
	Log          LogConfig       `mapstructure:"log"`
	Timeouts     Timeouts        `mapstructure:"timeouts"`
	Sudo         SudoConfig      `mapstructure:"sudo"`
	Hosts        map[string]Host `mapstructure:"hosts"`
	DefaultHost  string          `mapstructure:"default_host"`
	CatalogFiles []string        `mapstructure:"catalog_files"`
	Watch        WatchConfig     `mapstructure:"watch"`
	API          APIConfig       `mapstructure:"api"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type Timeouts struct {
	Default time.Duration `mapstructure:"default"`
	Long    time.Duration `mapstructure:"long"`
}

type SudoConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Command string `mapstructure:"command"`
}

// Host is one SSH target
type Host struct {
	Address     string `mapstructure:"address"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	KeyFile     string `mapstructure:"key_file"`
	PasswordEnv string `mapstructure:"password_env"`
	KnownHosts  string `mapstructure:"known_hosts"`

	// InsecureIgnoreHostKey skips host key verification
	InsecureIgnoreHostKey bool `mapstructure:"insecure_ignore_host_key"`

	// Sudo overrides the global sudo.enabled for this host
	Sudo *bool `mapstructure:"sudo"`
}

type WatchConfig struct {
	Schedule string `mapstructure:"schedule"`
}

type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// NewViper returns a viper instance with velo's defaults, search paths and
// environment binding. file, when set, is the only config file read.
func NewViper(file string) *viper.Viper {
	v := viper.New()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("timeouts.default", transport.DefaultTimeout)
	v.SetDefault("timeouts.long", transport.LongTimeout)
	v.SetDefault("sudo.enabled", true)
	v.SetDefault("sudo.command", "sudo")
	v.SetDefault("default_host", Local)
	v.SetDefault("watch.schedule", "@every 1m")
	v.SetDefault("api.addr", "127.0.0.1:8089")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("velo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/velo")
		}
	}

	v.SetEnvPrefix("VELO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and decodes it. A missing file in
// the search path is not an error; a named file that is missing is.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return Decode(v)
}

// Decode decodes v's current settings without reading the file again
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// ValidationError is one invalid setting
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors is every invalid setting found by Validate
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the settings that cannot be checked by decoding alone
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		add("log.format", "must be json or console, got %q", c.Log.Format)
	}
	if c.Timeouts.Default <= 0 {
		add("timeouts.default", "must be positive")
	}
	if c.Timeouts.Long < c.Timeouts.Default {
		add("timeouts.long", "must not be shorter than timeouts.default")
	}
	if c.Sudo.Enabled && c.Sudo.Command == "" {
		add("sudo.command", "required when sudo is enabled")
	}
	if c.DefaultHost != Local {
		if _, ok := c.Hosts[c.DefaultHost]; !ok {
			add("default_host", "unknown host %q", c.DefaultHost)
		}
	}
	for _, name := range c.HostNames() {
		h := c.Hosts[name]
		field := "hosts." + name
		if name == Local {
			add(field, "%q is reserved for the local machine", Local)
		}
		if h.Address == "" {
			add(field+".address", "required")
		}
		if h.Port < 0 || h.Port > 65535 {
			add(field+".port", "out of range: %d", h.Port)
		}
		if h.KeyFile == "" && h.PasswordEnv == "" {
			add(field, "needs key_file or password_env")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// HostNames returns the configured host names, sorted
func (c *Config) HostNames() []string {
	names := make([]string, 0, len(c.Hosts))
	for n := range c.Hosts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SSHConfig returns the transport settings for host name. The password, if
// any, is read from the host's password_env variable.
func (c *Config) SSHConfig(name string) (transport.SSHConfig, error) {
	h, ok := c.Hosts[name]
	if !ok {
		return transport.SSHConfig{}, fmt.Errorf("unknown host %q", name)
	}
	out := transport.SSHConfig{
		Address:               h.Address,
		Port:                  h.Port,
		User:                  h.User,
		KeyFile:               h.KeyFile,
		KnownHosts:            h.KnownHosts,
		InsecureIgnoreHostKey: h.InsecureIgnoreHostKey,
		DialTimeout:           transport.ShortTimeout,
	}
	if h.PasswordEnv != "" {
		pw, ok := os.LookupEnv(h.PasswordEnv)
		if !ok {
			return out, fmt.Errorf("host %q: %s is not set", name, h.PasswordEnv)
		}
		out.Password = pw
	}
	return out, nil
}

// UseSudo reports whether elevated commands on host name go through sudo
func (c *Config) UseSudo(name string) bool {
	if h, ok := c.Hosts[name]; ok && h.Sudo != nil {
		return *h.Sudo
	}
	return c.Sudo.Enabled
}

// Watch re-decodes the configuration whenever its file changes and hands
// the result to fn. Decoding errors are passed along with a nil Config.
func Watch(v *viper.Viper, fn func(*Config, error)) {
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := Decode(v)
		if err == nil {
			err = cfg.Validate()
			if err != nil {
				cfg = nil
			}
		}
		fn(cfg, err)
	})
	v.WatchConfig()
}
