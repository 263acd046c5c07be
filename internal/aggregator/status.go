package aggregator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/detect"
	"github.com/AzozzALFiras/velo/internal/transport"
	"github.com/AzozzALFiras/velo/internal/version"
)

// Marker lines of the batched status script
const (
	serviceMarker   = "SVC_"
	versionMarker   = "VER_"
	notInstalledTag = "NOT_INSTALLED"
)

// Probe is what the batched status script checks for one application
type Probe struct {
	ID  string
	Key string

	// Services are candidate unit names; "*" matches any version
	Services []string

	// Binaries prove installation when any is in PATH
	Binaries []string

	// BinaryPath is checked when none of Binaries is in PATH
	BinaryPath string

	VersionCommand string
	VersionPattern string
}

// ProbeFor derives the status probe of def from its layout and defaults
func ProbeFor(def app.Definition) Probe {
	layout := detect.LayoutFor(def.ID)
	p := Probe{
		ID:             def.ID,
		Key:            def.StatusKey(),
		BinaryPath:     def.Service.BinaryPath,
		VersionCommand: def.Service.VersionCommand,
		VersionPattern: def.Service.VersionPattern,
	}
	for _, s := range layout.ServicesFor(detect.Unknown) {
		p.Services = appendUnique(p.Services, strings.ReplaceAll(s, "{version}", "*"))
	}
	if len(p.Services) == 0 && def.Service.ServiceName != "" {
		p.Services = []string{def.Service.ServiceName}
	}
	p.Binaries = append(p.Binaries, layout.Binaries...)
	if b := def.Service.Binary; b != "" {
		p.Binaries = appendUnique(p.Binaries, b)
	}
	if p.VersionCommand == "" && len(p.Binaries) > 0 {
		p.VersionCommand = p.Binaries[0] + " --version"
	}
	return p
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func (p Probe) activityProbe() string {
	var plain, patterns []string
	for _, s := range p.Services {
		if strings.Contains(s, "*") {
			patterns = append(patterns, transport.Quote(s+".service"))
		} else {
			plain = append(plain, transport.Quote(s))
		}
	}
	var b strings.Builder
	if len(plain) > 0 {
		fmt.Fprintf(&b, "systemctl is-active %s 2>/dev/null\n", strings.Join(plain, " "))
	}
	if len(patterns) > 0 {
		fmt.Fprintf(&b, "systemctl list-units --type=service --state=active --no-legend --plain %s 2>/dev/null | grep -q . && echo active || echo inactive\n",
			strings.Join(patterns, " "))
	}
	return b.String()
}

func (p Probe) installedTest() string {
	var tests []string
	for _, bin := range p.Binaries {
		tests = append(tests, "command -v "+transport.Quote(bin)+" >/dev/null 2>&1")
	}
	if p.BinaryPath != "" {
		tests = append(tests, "[ -x "+transport.Quote(p.BinaryPath)+" ]")
	}
	if len(tests) == 0 {
		return "false"
	}
	return strings.Join(tests, " || ")
}

// StatusScript composes one shell script that checks every probe. For each
// application it prints a service marker followed by the unit activity, and
// a version marker followed by the version output or NOT_INSTALLED.
func StatusScript(probes []Probe) string {
	var b strings.Builder
	for _, p := range probes {
		fmt.Fprintf(&b, "echo %s%s\n", serviceMarker, p.Key)
		b.WriteString(p.activityProbe())
		fmt.Fprintf(&b, "echo %s%s\n", versionMarker, p.Key)
		fmt.Fprintf(&b, "if %s; then { %s; } 2>&1 | head -n 3; else echo %s; fi\n",
			p.installedTest(), p.VersionCommand, notInstalledTag)
	}
	return b.String()
}

// ParseStatus splits batched output into marker-delimited blocks and maps
// each probe to a SoftwareStatus. NOT_INSTALLED wins over anything else the
// block captured; an application without services is installed rather than
// running or stopped.
func ParseStatus(output string, probes []Probe) map[string]app.SoftwareStatus {
	markers := make(map[string]string, 2*len(probes))
	for _, p := range probes {
		markers[serviceMarker+p.Key] = serviceMarker + p.Key
		markers[versionMarker+p.Key] = versionMarker + p.Key
	}

	blocks := map[string][]string{}
	current := ""
	for _, line := range transport.SplitLines(output) {
		trimmed := strings.TrimSpace(line)
		if m, ok := markers[trimmed]; ok {
			current = m
			blocks[current] = []string{}
			continue
		}
		if current != "" && trimmed != "" {
			blocks[current] = append(blocks[current], trimmed)
		}
	}

	out := make(map[string]app.SoftwareStatus, len(probes))
	for _, p := range probes {
		svc, hasSvc := blocks[serviceMarker+p.Key]
		ver, hasVer := blocks[versionMarker+p.Key]
		out[p.ID] = statusFrom(p, svc, hasSvc, ver, hasVer)
	}
	return out
}

func statusFrom(p Probe, svc []string, hasSvc bool, ver []string, hasVer bool) app.SoftwareStatus {
	active := false
	for _, l := range svc {
		if l == "active" {
			active = true
		}
	}
	if !hasVer {
		if hasSvc && active {
			return app.Running("")
		}
		return app.NotInstalled()
	}
	for _, l := range ver {
		if strings.Contains(l, notInstalledTag) {
			return app.NotInstalled()
		}
	}

	text := strings.Join(ver, "\n")
	v := version.ExtractVersion(text, p.VersionPattern)
	if v == "" && len(ver) > 0 {
		v = ver[0]
	}
	switch {
	case len(p.Services) == 0:
		return app.Installed(v)
	case active:
		return app.Running(v)
	default:
		return app.Stopped(v)
	}
}

func (a *Aggregator) probes(ids []string) ([]Probe, error) {
	var defs []app.Definition
	if len(ids) == 0 {
		defs = a.apps.All()
	}
	for _, id := range ids {
		def, err := a.definition(id)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	probes := make([]Probe, len(defs))
	for i, d := range defs {
		probes[i] = ProbeFor(d)
	}
	return probes, nil
}

// FetchStatuses checks ids, or every application when ids is empty, in a
// single round trip. Only transport failure is an error.
func (a *Aggregator) FetchStatuses(ctx context.Context, run transport.Runner, ids ...string) (map[string]app.SoftwareStatus, error) {
	if run == nil {
		return nil, app.ErrSessionNotAvailable
	}
	probes, err := a.probes(ids)
	if err != nil {
		return nil, err
	}
	res, err := run.Run(ctx, StatusScript(probes))
	if err != nil {
		return nil, fmt.Errorf("status probe: %w", err)
	}
	statuses := ParseStatus(res.Output, probes)
	a.log.Debug("statuses fetched", zap.Int("apps", len(statuses)), zap.Duration("elapsed", res.ExecutionTime))
	return statuses, nil
}

// FetchStatus checks one application
func (a *Aggregator) FetchStatus(ctx context.Context, run transport.Runner, id string) (app.SoftwareStatus, error) {
	def, err := a.definition(id)
	if err != nil {
		return app.NotInstalled(), err
	}
	statuses, err := a.FetchStatuses(ctx, run, def.ID)
	if err != nil {
		return app.NotInstalled(), err
	}
	return statuses[def.ID], nil
}

// FetchInstalled returns the definitions installed on the target, ordered
// by id
func (a *Aggregator) FetchInstalled(ctx context.Context, run transport.Runner) ([]app.Definition, error) {
	statuses, err := a.FetchStatuses(ctx, run)
	if err != nil {
		return nil, err
	}
	var out []app.Definition
	for _, def := range a.apps.All() {
		if statuses[def.ID].IsInstalled() {
			out = append(out, def)
		}
	}
	return out, nil
}

// SweepHosts fetches statuses from several hosts concurrently, one batched
// script per host. Hosts that fail are reported in the returned MultiError
// and left out of the result.
func (a *Aggregator) SweepHosts(ctx context.Context, hosts map[string]transport.Runner, ids ...string) (map[string]map[string]app.SoftwareStatus, error) {
	results := make(map[string]map[string]app.SoftwareStatus, len(hosts))
	if len(hosts) == 0 {
		return results, nil
	}

	var mu sync.Mutex
	err := EachHost(ctx, a.Concurrency, 0, hosts, func(ctx context.Context, host string, run transport.Runner) error {
		statuses, err := a.FetchStatuses(ctx, run, ids...)
		if err != nil {
			a.log.Warn("host sweep failed", zap.String("host", host), zap.Error(err))
			return err
		}
		mu.Lock()
		results[host] = statuses
		mu.Unlock()
		return nil
	})
	return results, err
}
