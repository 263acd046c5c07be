package detect

import (
	"context"
	"path"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/fallback"
	"github.com/AzozzALFiras/velo/internal/transport"
	"github.com/AzozzALFiras/velo/internal/version"
)

var leadingNumber = regexp.MustCompile(`\d+(?:\.\d+)*`)

// Detector resolves install state and paths of one application on a target.
// The Runner is passed to every call; a Detector never holds a session.
type Detector struct {
	def    app.Definition
	layout Layout
	log    *zap.Logger

	mu sync.Mutex
	os OSType
}

// Option configures a Detector
type Option func(*Detector)

// WithOS skips OS detection and uses os
func WithOS(os OSType) Option {
	return func(d *Detector) {
		d.os = os
	}
}

// WithLogger sets the logger probes report to
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.log = l
		}
	}
}

// WithLayout overrides the built-in layout for the definition's id
func WithLayout(l Layout) Option {
	return func(d *Detector) {
		d.layout = l
	}
}

// New creates a Detector for def
func New(def app.Definition, opts ...Option) *Detector {
	d := &Detector{
		def:    def,
		layout: LayoutFor(def.ID),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With(zap.String("app", def.ID))
	return d
}

// Definition returns the definition the detector was built for
func (d *Detector) Definition() app.Definition {
	return d.def
}

// OSType classifies the target once and remembers the answer
func (d *Detector) OSType(ctx context.Context, run transport.Runner) OSType {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.os == "" {
		d.os = DetectOS(ctx, run)
		d.log.Debug("os detected", zap.String("os", string(d.os)))
	}
	return d.os
}

// IsInstalled probes install directories, then the package database, then
// PATH, then the definition's default binary path.
func (d *Detector) IsInstalled(ctx context.Context, run transport.Runner) bool {
	os := d.OSType(ctx, run)
	_, via, ok := fallback.First(ctx,
		fallback.Of("directory", func(ctx context.Context) (bool, bool) {
			_, found := firstDir(ctx, run, d.layout.DirsFor(os))
			return true, found
		}),
		fallback.Of("package", func(ctx context.Context) (bool, bool) {
			for _, pkg := range d.layout.PackagesFor(os) {
				res, err := run.Run(ctx, PackageQuery(os, pkg), transport.WithTimeout(transport.ShortTimeout))
				if err == nil && res.OK() {
					return true, true
				}
			}
			return false, false
		}),
		fallback.Of("which", func(ctx context.Context) (bool, bool) {
			_, found := transport.Which(ctx, run, d.binaries()...)
			return true, found
		}),
		fallback.Of("binaryPath", func(ctx context.Context) (bool, bool) {
			p := d.def.Service.BinaryPath
			return true, p != "" && transport.Exists(ctx, run, p)
		}),
	)
	if ok {
		d.log.Debug("installed", zap.String("via", via))
	} else {
		d.log.Debug("not installed")
	}
	return ok
}

func (d *Detector) binaries() []string {
	names := append([]string(nil), d.layout.Binaries...)
	if b := d.def.Service.Binary; b != "" && !contains(names, b) {
		names = append(names, b)
	}
	return names
}

// BinaryPath returns the absolute path of the application's main binary
func (d *Detector) BinaryPath(ctx context.Context, run transport.Runner) (string, bool) {
	return fallback.FirstValue(ctx,
		fallback.Of("which", func(ctx context.Context) (string, bool) {
			return transport.Which(ctx, run, d.binaries()...)
		}),
		fallback.Of("default", func(ctx context.Context) (string, bool) {
			p := d.def.Service.BinaryPath
			return p, p != "" && transport.Exists(ctx, run, p)
		}),
	)
}

// ActiveVersion returns the major.minor version that path templates are
// expanded with. It is empty for applications without version strategies.
func (d *Detector) ActiveVersion(ctx context.Context, run transport.Runner) string {
	if d.def.VersionDetection == nil && d.def.VersionSwitch == nil {
		return ""
	}
	v, ok := version.NewResolver(d.def, d.log).ActiveVersion(ctx, run)
	if !ok {
		return ""
	}
	return majorMinor(v)
}

func majorMinor(v string) string {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return v
	}
	return parts[0] + "." + parts[1]
}

func expand(list []string, ver string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if strings.Contains(s, "{version}") {
			if ver == "" {
				continue
			}
			s = strings.ReplaceAll(s, "{version}", ver)
		}
		out = append(out, s)
	}
	return out
}

// ServiceName returns the first candidate unit known to systemd, or the
// definition's default.
func (d *Detector) ServiceName(ctx context.Context, run transport.Runner) string {
	return d.serviceName(ctx, run, d.OSType(ctx, run), d.ActiveVersion(ctx, run))
}

func (d *Detector) serviceName(ctx context.Context, run transport.Runner, os OSType, ver string) string {
	candidates := expand(d.layout.ServicesFor(os), ver)
	if len(candidates) == 0 {
		return d.def.Service.ServiceName
	}
	units := make([]string, len(candidates))
	for i, c := range candidates {
		units[i] = transport.Quote(c + ".service")
	}
	res, err := run.Run(ctx, "systemctl list-unit-files --no-legend --no-pager "+strings.Join(units, " ")+" 2>/dev/null",
		transport.WithTimeout(transport.ShortTimeout))
	if err == nil {
		known := map[string]bool{}
		for _, line := range res.Lines() {
			if f := strings.Fields(line); len(f) > 0 {
				known[strings.TrimSuffix(f[0], ".service")] = true
			}
		}
		for _, c := range candidates {
			if known[c] {
				return c
			}
		}
	}
	if d.def.Service.ServiceName != "" {
		return d.def.Service.ServiceName
	}
	return candidates[0]
}

// ConfigPath returns the main configuration file
func (d *Detector) ConfigPath(ctx context.Context, run transport.Runner) string {
	return d.configPath(ctx, run, d.OSType(ctx, run), d.ActiveVersion(ctx, run))
}

func (d *Detector) configPath(ctx context.Context, run transport.Runner, os OSType, ver string) string {
	steps := []fallback.Step[string]{}
	if d.def.ID == "postgresql" {
		steps = append(steps, fallback.NonEmpty("server", func(ctx context.Context) string {
			res, err := run.Run(ctx, `sudo -u postgres psql -Atc 'SHOW config_file' 2>/dev/null`,
				transport.Elevated(), transport.WithTimeout(transport.ShortTimeout))
			if err != nil || !res.OK() || !strings.HasPrefix(res.Trimmed(), "/") {
				return ""
			}
			return res.Trimmed()
		}))
	}
	steps = append(steps,
		fallback.Of("layout", func(ctx context.Context) (string, bool) {
			return firstExisting(ctx, run, expand(d.layout.ConfigsFor(os), ver))
		}),
		fallback.Value("default", d.def.Service.ConfigPath),
	)
	p, _ := fallback.FirstValue(ctx, steps...)
	return p
}

// LogPaths returns the layout's log files that exist on the target, or the
// definition's defaults when none do. Globs are kept as globs.
func (d *Detector) LogPaths(ctx context.Context, run transport.Runner) []string {
	return d.logPaths(ctx, run, d.OSType(ctx, run), d.ActiveVersion(ctx, run))
}

func (d *Detector) logPaths(ctx context.Context, run transport.Runner, os OSType, ver string) []string {
	candidates := expand(d.layout.LogsFor(os), ver)
	if len(candidates) > 0 {
		res, err := run.Run(ctx, "ls -1d "+strings.Join(candidates, " ")+" 2>/dev/null", transport.WithTimeout(transport.ShortTimeout))
		if err == nil {
			var out []string
			lines := res.Lines()
			for _, c := range candidates {
				for _, l := range lines {
					if ok, _ := path.Match(c, l); ok {
						out = append(out, c)
						break
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	if len(d.def.Service.LogPaths) > 0 {
		return append([]string(nil), d.def.Service.LogPaths...)
	}
	return candidates
}

// Resolve returns a copy of the definition's ServiceConfiguration with every
// OS- and version-dependent field filled in from the target.
func (d *Detector) Resolve(ctx context.Context, run transport.Runner) app.ServiceConfiguration {
	cfg := d.def.Service.Clone()
	os := d.OSType(ctx, run)
	ver := d.ActiveVersion(ctx, run)

	if len(d.layout.ServicesFor(os)) > 0 {
		cfg.ServiceName = d.serviceName(ctx, run, os, ver)
	}
	if p, ok := d.BinaryPath(ctx, run); ok {
		cfg.BinaryPath = p
		cfg.Binary = path.Base(p)
	}
	cfg.ConfigPath = d.configPath(ctx, run, os, ver)
	cfg.LogPaths = d.logPaths(ctx, run, os, ver)

	switch d.def.ID {
	case "apache":
		if os == RHEL {
			cfg.PidPath = "/run/httpd/httpd.pid"
		}
	case "php":
		cfg.ValidateCommand = PHPFPMBinary(os, ver) + " -t"
	case "redis":
		if os == RHEL {
			cfg.SocketPath = "/run/redis/redis.sock"
		}
	case "mysql":
		if os == RHEL {
			cfg.SocketPath = "/var/lib/mysql/mysql.sock"
		}
	}
	d.log.Debug("service configuration resolved",
		zap.String("service", cfg.ServiceName), zap.String("config", cfg.ConfigPath), zap.String("os", string(os)))
	return cfg
}

// firstDir returns the first of dirs that exists, in one round trip
func firstDir(ctx context.Context, run transport.Runner, dirs []string) (string, bool) {
	if len(dirs) == 0 {
		return "", false
	}
	quoted := make([]string, len(dirs))
	for i, d := range dirs {
		quoted[i] = transport.Quote(d)
	}
	res, err := run.Run(ctx, `for d in `+strings.Join(quoted, " ")+`; do [ -d "$d" ] && { echo "$d"; exit 0; }; done; exit 1`,
		transport.WithTimeout(transport.ShortTimeout))
	if err != nil || !res.OK() || res.Trimmed() == "" {
		return "", false
	}
	return res.Trimmed(), true
}

// firstExisting lists candidates (which may be globs) in one round trip and
// returns the first candidate with a match. When a glob matches several
// paths the one carrying the highest version number wins.
func firstExisting(ctx context.Context, run transport.Runner, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	res, err := run.Run(ctx, "ls -1d "+strings.Join(candidates, " ")+" 2>/dev/null", transport.WithTimeout(transport.ShortTimeout))
	if err != nil {
		return "", false
	}
	lines := res.Lines()
	for _, c := range candidates {
		var best string
		for _, l := range lines {
			l = strings.TrimSpace(l)
			if ok, _ := path.Match(c, l); !ok {
				continue
			}
			if best == "" || version.Compare(leadingNumber.FindString(l), leadingNumber.FindString(best)) > 0 {
				best = l
			}
		}
		if best != "" {
			return best, true
		}
	}
	return "", false
}
