package provider

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport"
	"github.com/AzozzALFiras/velo/internal/version"
)

const phpExtensionsScript = `foreach (get_loaded_extensions() as $e) { echo $e, "\t", phpversion($e), "\n"; }`

const postgresExtensionsQuery = `SELECT name, COALESCE(installed_version, default_version), installed_version IS NOT NULL FROM pg_available_extensions ORDER BY name`

// ExtensionsProvider lists PHP and PostgreSQL extensions
type ExtensionsProvider struct{}

func (ExtensionsProvider) Type() app.ProviderType { return app.ProviderExtensions }

func (ExtensionsProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	var exts []app.Extension
	switch t.App.ID {
	case "php":
		res, err := t.Run.Run(ctx, phpBinary(t)+" -r "+transport.Quote(phpExtensionsScript)+" 2>/dev/null")
		if err != nil {
			return err
		}
		if res.ExitCode == 127 {
			return app.LoadFailed("php binary not found")
		}
		exts = ParsePHPExtensions(res.Output)
	case "postgresql":
		res, err := t.Run.Run(ctx, PSQLQuery(postgresExtensionsQuery), transport.Elevated())
		if err != nil {
			return err
		}
		if !res.OK() {
			return app.LoadFailed("psql: %s", res.Trimmed())
		}
		exts = ParsePostgresExtensions(res.Output)
	default:
		return app.NotSupported(app.ProviderExtensions)
	}
	return w.Update(ctx, func(s *app.State) { s.Extensions = exts })
}

// ParsePHPExtensions parses tab-separated name/version rows. Every listed
// extension is loaded; some report no version.
func ParsePHPExtensions(output string) []app.Extension {
	var out []app.Extension
	for _, row := range (Table{Sep: "\t", Columns: 2}).Rows(output) {
		out = append(out, app.Extension{Name: row[0], Version: row[1], Enabled: true})
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}

// ParsePostgresExtensions parses name|version|installed rows
func ParsePostgresExtensions(output string) []app.Extension {
	var out []app.Extension
	for _, row := range (Table{Sep: "|", Columns: 3}).Rows(output) {
		out = append(out, app.Extension{Name: row[0], Version: row[1], Enabled: row[2] == "t"})
	}
	return out
}

// DisabledFunctionsProvider reads PHP's disable_functions list
type DisabledFunctionsProvider struct{}

func (DisabledFunctionsProvider) Type() app.ProviderType { return app.ProviderDisabledFunctions }

func (DisabledFunctionsProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	if t.App.ID != "php" {
		return app.NotSupported(app.ProviderDisabledFunctions)
	}
	var fns []string
	if ini := t.Service.ConfigPath; ini != "" {
		// the FPM ini is what serves requests; the CLI default may differ
		f, err := transport.ReadFile(ctx, t.Run, ini, true)
		if err != nil {
			return err
		}
		if f.OK() {
			fns = SplitFunctionList(ParseINI(f.Content)["disable_functions"])
			return w.Update(ctx, func(s *app.State) { s.DisabledFunctions = fns })
		}
	}
	res, err := t.Run.Run(ctx, phpBinary(t)+` -r 'echo ini_get("disable_functions");' 2>/dev/null`)
	if err != nil {
		return err
	}
	if res.ExitCode == 127 {
		return app.LoadFailed("php binary not found")
	}
	fns = SplitFunctionList(res.Output)
	return w.Update(ctx, func(s *app.State) { s.DisabledFunctions = fns })
}

// SplitFunctionList splits a comma-separated disable_functions value
func SplitFunctionList(v string) []string {
	var out []string
	for _, f := range strings.Split(v, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

var phpIniLoaded = regexp.MustCompile(`Loaded Configuration File:\s*(\S+)`)

type probe struct{ key, cmd string }

// RuntimeProvider describes the application's interpreter
type RuntimeProvider struct{}

func (RuntimeProvider) Type() app.ProviderType { return app.ProviderRuntime }

func (RuntimeProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	binary := t.Service.Binary
	if binary == "" {
		return app.LoadFailed("%s declares no binary", t.App.ID)
	}
	path, ok := transport.Which(ctx, t.Run, binary)
	if !ok {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return app.LoadFailed("%s not found in PATH", binary)
	}

	info := &app.RuntimeInfo{Binary: binary, Path: path, Extras: map[string]string{}}
	if cmd := t.Service.VersionCommand; cmd != "" {
		res, err := t.Run.Run(ctx, cmd, transport.WithTimeout(transport.ShortTimeout))
		if err != nil {
			return err
		}
		info.Version = version.ExtractVersion(res.Output, t.Service.VersionPattern)
	}

	var extras []probe
	switch t.App.ID {
	case "php":
		res, err := t.Run.Run(ctx, binary+" --ini 2>/dev/null")
		if err != nil {
			return err
		}
		if m := phpIniLoaded.FindStringSubmatch(res.Output); m != nil && m[1] != "(none)" {
			info.IniPath = m[1]
		}
		extras = append(extras, probe{"composer", "composer --version 2>/dev/null"})
	case "nodejs":
		extras = append(extras,
			probe{"npm", "npm --version 2>/dev/null"},
			probe{"yarn", "yarn --version 2>/dev/null"},
		)
	case "python":
		extras = append(extras, probe{"pip", binary + " -m pip --version 2>/dev/null"})
	}
	for _, e := range extras {
		res, err := t.Run.Run(ctx, e.cmd, transport.WithTimeout(transport.ShortTimeout))
		if err != nil {
			return err
		}
		if v := version.ExtractVersion(res.Output, ""); res.OK() && v != "" {
			info.Extras[e.key] = v
		}
	}
	return w.Update(ctx, func(s *app.State) { s.Runtime = info })
}

// VersionsProvider lists installed versions and the active one
type VersionsProvider struct {
	Log *zap.Logger
}

func (VersionsProvider) Type() app.ProviderType { return app.ProviderVersions }

func (p VersionsProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	if t.App.VersionDetection == nil {
		return app.NotSupported(app.ProviderVersions)
	}
	r := version.NewResolver(t.App, p.Log)
	installed := r.InstalledVersions(ctx, t.Run)
	active, _ := r.ActiveVersion(ctx, t.Run)
	if err := ctx.Err(); err != nil {
		return err
	}
	info := &app.VersionsInfo{Active: active, Installed: installed}
	return w.Update(ctx, func(s *app.State) { s.Versions = info })
}
