package provider

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/detect"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// ModulesProvider lists compiled-in and loaded modules of web servers and
// the PHP interpreter
type ModulesProvider struct{}

func (ModulesProvider) Type() app.ProviderType { return app.ProviderModules }

func (ModulesProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	var (
		cmd   string
		parse func(string) []app.Module
	)
	switch t.App.ID {
	case "nginx":
		cmd, parse = "nginx -V 2>&1", ParseNginxModules
	case "apache":
		cmd, parse = "(apachectl -M || apache2ctl -M || httpd -M) 2>/dev/null", ParseApacheModules
	case "php":
		cmd, parse = phpBinary(t)+" -m 2>/dev/null", ParsePHPModules
	default:
		return app.NotSupported(app.ProviderModules)
	}

	res, err := t.Run.Run(ctx, cmd, transport.Elevated())
	if err != nil {
		return err
	}
	if res.ExitCode == 127 {
		return app.LoadFailed("%s binary not found", t.App.ID)
	}
	modules := parse(res.Output)
	return w.Update(ctx, func(s *app.State) { s.Modules = modules })
}

var (
	nginxBuiltin = regexp.MustCompile(`--with-([a-z0-9_]+_module)\b`)
	nginxAdded   = regexp.MustCompile(`--add-(dynamic-)?module=(\S+)`)
)

// ParseNginxModules reads the configure arguments printed by `nginx -V`
func ParseNginxModules(output string) []app.Module {
	var out []app.Module
	seen := map[string]bool{}
	for _, m := range nginxBuiltin.FindAllStringSubmatch(output, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, app.Module{Name: m[1], Kind: "builtin", Enabled: true})
	}
	for _, m := range nginxAdded.FindAllStringSubmatch(output, -1) {
		name := m[2][strings.LastIndex(m[2], "/")+1:]
		kind := "static"
		if m[1] != "" {
			kind = "dynamic"
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, app.Module{Name: name, Kind: kind, Enabled: true})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParseApacheModules reads `apachectl -M`. The "Loaded Modules:" header is
// skipped by content; every listed module is loaded.
func ParseApacheModules(output string) []app.Module {
	var out []app.Module
	for _, line := range transport.SplitLines(output) {
		fields := strings.Fields(line)
		if len(fields) != 2 || !strings.HasPrefix(fields[1], "(") {
			continue
		}
		out = append(out, app.Module{
			Name:    fields[0],
			Kind:    strings.Trim(fields[1], "()"),
			Enabled: true,
		})
	}
	return out
}

// ParsePHPModules reads `php -m`, which groups names under [PHP Modules]
// and [Zend Modules] headers.
func ParsePHPModules(output string) []app.Module {
	var out []app.Module
	kind := "php"
	for _, line := range transport.SplitLines(output) {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "[PHP Modules]":
			kind = "php"
			continue
		case line == "[Zend Modules]":
			kind = "zend"
			continue
		case strings.HasPrefix(line, "["):
			continue
		}
		out = append(out, app.Module{Name: line, Kind: kind, Enabled: true})
	}
	return out
}

// phpBinary returns the versioned CLI binary when a version is active
func phpBinary(t *Target) string {
	if t.Version != "" && t.OS != detect.RHEL {
		return "php" + t.Version
	}
	return "php"
}
