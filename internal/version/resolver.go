package version

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/fallback"
	"github.com/AzozzALFiras/velo/internal/transport"
)

var (
	genericVersion = regexp.MustCompile(`(\d+(?:\.\d+)+)`)
	nvmVersion     = regexp.MustCompile(`v(\d+\.\d+\.\d+)`)
	exactVersion   = regexp.MustCompile(`^\d+(\.\d+)*$`)
)

// Valid reports whether v is a bare dotted version such as 8.2 or 20.11.0
func Valid(v string) bool {
	return exactVersion.MatchString(v)
}

// Resolver enumerates and switches versions of one application according to
// its declared strategies. It holds no session: every call takes the Runner.
type Resolver struct {
	Detection *app.VersionDetectionStrategy
	Switching *app.VersionSwitchStrategy
	Service   app.ServiceConfiguration

	log *zap.Logger
}

// NewResolver creates a Resolver for def
func NewResolver(def app.Definition, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		Detection: def.VersionDetection,
		Switching: def.VersionSwitch,
		Service:   def.Service,
		log:       log.With(zap.String("app", def.ID)),
	}
}

// ActiveVersion returns the version currently selected system-wide. It never
// fails: an undetectable version is reported as absent.
func (r *Resolver) ActiveVersion(ctx context.Context, run transport.Runner) (string, bool) {
	var steps []fallback.Step[string]
	if r.Switching != nil {
		sw := *r.Switching
		switch sw.Kind {
		case app.SwitchAlternatives:
			steps = append(steps, fallback.NonEmpty("alternatives", func(ctx context.Context) string {
				return r.alternativesActive(ctx, run, sw)
			}))
		case app.SwitchVersionManager:
			steps = append(steps, fallback.NonEmpty("version-manager", func(ctx context.Context) string {
				return r.managerActive(ctx, run, sw.Manager)
			}))
		}
		if sw.Link != "" {
			steps = append(steps, fallback.NonEmpty("symlink", func(ctx context.Context) string {
				return r.linkActive(ctx, run, sw)
			}))
		}
	}
	steps = append(steps, fallback.NonEmpty("binary", func(ctx context.Context) string {
		return r.binaryVersion(ctx, run)
	}))

	v, step, ok := fallback.First(ctx, steps...)
	if ok {
		r.log.Debug("active version resolved", zap.String("version", v), zap.String("via", step))
	}
	return v, ok
}

func (r *Resolver) alternativesActive(ctx context.Context, run transport.Runner, sw app.VersionSwitchStrategy) string {
	res, err := run.Run(ctx, fmt.Sprintf("update-alternatives --query %s 2>/dev/null | grep '^Value:'", transport.Quote(sw.Name)))
	if err != nil || !res.OK() {
		return ""
	}
	value := strings.TrimSpace(strings.TrimPrefix(res.Trimmed(), "Value:"))
	return r.versionFromPath(value)
}

func (r *Resolver) linkActive(ctx context.Context, run transport.Runner, sw app.VersionSwitchStrategy) string {
	res, err := run.Run(ctx, "readlink -f "+transport.Quote(sw.Link)+" 2>/dev/null")
	if err != nil || !res.OK() {
		return ""
	}
	return r.versionFromPath(res.Trimmed())
}

func (r *Resolver) managerActive(ctx context.Context, run transport.Runner, manager string) string {
	var cmd string
	switch manager {
	case "nvm":
		cmd = nvmShell("nvm current")
	case "pyenv":
		cmd = "pyenv version-name 2>/dev/null"
	default:
		return ""
	}
	res, err := run.Run(ctx, cmd)
	if err != nil || !res.OK() {
		return ""
	}
	out := res.Trimmed()
	if out == "system" || out == "none" {
		return ""
	}
	if m := genericVersion.FindStringSubmatch(out); m != nil {
		return m[1]
	}
	return ""
}

func (r *Resolver) binaryVersion(ctx context.Context, run transport.Runner) string {
	if r.Service.VersionCommand == "" {
		return ""
	}
	res, err := run.Run(ctx, r.Service.VersionCommand, transport.WithTimeout(transport.ShortTimeout))
	if err != nil || !res.OK() {
		return ""
	}
	return ExtractVersion(res.Output, r.Service.VersionPattern)
}

// versionFromPath applies the declared version regex to a binary path
func (r *Resolver) versionFromPath(p string) string {
	if p == "" {
		return ""
	}
	re := r.pathRegex()
	if m := re.FindStringSubmatch(p); m != nil {
		return m[1]
	}
	return ""
}

func (r *Resolver) pathRegex() *regexp.Regexp {
	for s := r.Detection; s != nil; s = s.Fallback {
		if s.VersionRegex != "" {
			if re, err := regexp.Compile(s.VersionRegex); err == nil {
				return re
			}
		}
	}
	return regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)$`)
}

// InstalledVersions lists installed versions newest first without
// duplicates. Each detection strategy in the chain runs only if the previous
// one found nothing; total failure yields an empty list.
func (r *Resolver) InstalledVersions(ctx context.Context, run transport.Runner) []string {
	var steps []fallback.Step[[]string]
	for s := r.Detection; s != nil; s = s.Fallback {
		strategy := *s
		steps = append(steps, fallback.Of(string(strategy.Kind), func(ctx context.Context) ([]string, bool) {
			found := SortDescending(r.detect(ctx, run, strategy))
			return found, len(found) > 0
		}))
	}
	steps = append(steps, fallback.Of("binary", func(ctx context.Context) ([]string, bool) {
		v := r.binaryVersion(ctx, run)
		return []string{v}, v != ""
	}))

	found, step, ok := fallback.First(ctx, steps...)
	if !ok {
		return []string{}
	}
	r.log.Debug("installed versions resolved", zap.Strings("versions", found), zap.String("via", step))
	return found
}

func (r *Resolver) detect(ctx context.Context, run transport.Runner, s app.VersionDetectionStrategy) []string {
	switch s.Kind {
	case app.DetectBinaryGlob:
		return r.detectGlob(ctx, run, s)
	case app.DetectAlternatives:
		return r.detectAlternatives(ctx, run, s)
	case app.DetectVersionManager:
		return r.detectManager(ctx, run, s)
	default:
		return nil
	}
}

func (r *Resolver) detectGlob(ctx context.Context, run transport.Runner, s app.VersionDetectionStrategy) []string {
	if s.Pattern == "" {
		return nil
	}
	res, err := run.Run(ctx, "ls -1d "+s.Pattern+" 2>/dev/null")
	if err != nil {
		return nil
	}
	return ParseVersionList(res.Output, s.VersionRegex)
}

func (r *Resolver) detectAlternatives(ctx context.Context, run transport.Runner, s app.VersionDetectionStrategy) []string {
	name := transport.Quote(s.Name)
	res, err := run.Run(ctx, fmt.Sprintf("(update-alternatives --list %s || alternatives --display %s) 2>/dev/null", name, name))
	if err != nil {
		return nil
	}
	var paths []string
	for _, line := range res.Lines() {
		for _, f := range strings.Fields(line) {
			if strings.HasPrefix(f, "/") {
				paths = append(paths, strings.TrimSuffix(f, ","))
			}
		}
	}
	return ParseVersionList(strings.Join(paths, "\n"), s.VersionRegex)
}

func (r *Resolver) detectManager(ctx context.Context, run transport.Runner, s app.VersionDetectionStrategy) []string {
	switch s.Manager {
	case "nvm":
		res, err := run.Run(ctx, nvmShell("nvm ls --no-colors"))
		if err != nil || !res.OK() {
			return nil
		}
		var out []string
		for _, line := range res.Lines() {
			// alias lines ("default -> 20 (-> v20.11.0)") repeat installed versions
			if strings.Contains(line, "->") && !strings.HasPrefix(strings.TrimSpace(line), "->") {
				continue
			}
			if m := nvmVersion.FindStringSubmatch(line); m != nil {
				out = append(out, m[1])
			}
		}
		return out
	case "pyenv":
		res, err := run.Run(ctx, "pyenv versions --bare 2>/dev/null")
		if err != nil || !res.OK() {
			return nil
		}
		return ParseVersionList(res.Output, `^(\d+(?:\.\d+)+)$`)
	default:
		return nil
	}
}

// ParseVersionList extracts one version per line using pattern's first
// group; lines that do not match are skipped. An empty pattern matches the
// first dotted number.
func ParseVersionList(output, pattern string) []string {
	re := genericVersion
	if pattern != "" {
		if compiled, err := regexp.Compile(pattern); err == nil {
			re = compiled
		}
	}
	var out []string
	for _, line := range transport.SplitLines(output) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := re.FindStringSubmatch(line); len(m) > 1 {
			out = append(out, m[1])
		}
	}
	return out
}

// ExtractVersion pulls a version out of a version command's output using
// pattern's first group, falling back to the first dotted number.
func ExtractVersion(output, pattern string) string {
	if pattern != "" {
		if re, err := regexp.Compile(pattern); err == nil {
			if m := re.FindStringSubmatch(output); len(m) > 1 {
				return strings.TrimSpace(m[1])
			}
		}
	}
	if m := genericVersion.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	return ""
}

func nvmShell(cmd string) string {
	return `bash -c '. "${NVM_DIR:-$HOME/.nvm}/nvm.sh" >/dev/null 2>&1 && ` + cmd + `'`
}

// SwitchAttempt records one switching mechanism that was tried
type SwitchAttempt struct {
	Strategy app.SwitchKind `json:"strategy"`
	Command  string         `json:"command"`
	ExitCode int            `json:"exitCode"`
	Output   string         `json:"output,omitempty"`
	OK       bool           `json:"ok"`
}

// SwitchResult reports every attempt made by Switch. Switched is true when
// one of them succeeded; Via names it.
type SwitchResult struct {
	Version  string          `json:"version"`
	Switched bool            `json:"switched"`
	Via      app.SwitchKind  `json:"via,omitempty"`
	Attempts []SwitchAttempt `json:"attempts"`
}

// Switch makes to the active version. The declared strategy runs first; if
// it fails and the definition names a link, a direct symlink replacement is
// tried next. An error is returned only when the transport fails; a
// malformed or unknown version or a mechanism that does not work yields
// Switched == false. Commands are built from the installed entry that
// matched, never from to itself.
func (r *Resolver) Switch(ctx context.Context, run transport.Runner, to string) (SwitchResult, error) {
	result := SwitchResult{Version: to}
	if r.Switching == nil {
		return result, nil
	}
	if !Valid(to) {
		r.log.Info("refusing to switch to a malformed version", zap.String("version", to))
		return result, nil
	}

	installed := r.InstalledVersions(ctx, run)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	match, ok := Match(installed, to)
	if !ok {
		r.log.Info("refusing to switch to a version that is not installed",
			zap.String("version", to), zap.Strings("installed", installed))
		return result, nil
	}
	result.Version = match

	sw := *r.Switching
	kinds := []app.SwitchKind{sw.Kind}
	if sw.Kind != app.SwitchSymlink && sw.Link != "" && sw.Target != "" {
		kinds = append(kinds, app.SwitchSymlink)
	}

	for _, kind := range kinds {
		cmd, ok := switchCommand(kind, sw, match)
		if !ok {
			continue
		}
		// nvm and pyenv keep their state in the session user's home
		res, err := run.Run(ctx, cmd, transport.ElevatedIf(kind != app.SwitchVersionManager))
		if err != nil {
			return result, fmt.Errorf("switching %s to %s: %w", sw.Name, match, err)
		}
		attempt := SwitchAttempt{
			Strategy: kind,
			Command:  cmd,
			ExitCode: res.ExitCode,
			Output:   res.Trimmed(),
			OK:       res.OK(),
		}
		result.Attempts = append(result.Attempts, attempt)
		if attempt.OK {
			result.Switched = true
			result.Via = kind
			r.log.Info("version switched", zap.String("version", match), zap.String("via", string(kind)))
			return result, nil
		}
		r.log.Warn("version switch attempt failed",
			zap.String("via", string(kind)), zap.Int("exitCode", res.ExitCode))
	}
	return result, nil
}

// switchCommand builds the command for kind. to must satisfy Valid: the nvm
// form is already inside single quotes and cannot quote it again.
func switchCommand(kind app.SwitchKind, sw app.VersionSwitchStrategy, to string) (string, bool) {
	if !Valid(to) {
		return "", false
	}
	target := sw.TargetFor(to)
	switch kind {
	case app.SwitchAlternatives:
		if sw.Name == "" || target == "" {
			return "", false
		}
		return fmt.Sprintf("update-alternatives --set %s %s", transport.Quote(sw.Name), transport.Quote(target)), true
	case app.SwitchSymlink:
		if sw.Link == "" || target == "" {
			return "", false
		}
		return fmt.Sprintf("test -x %s && ln -sfn %s %s", transport.Quote(target), transport.Quote(target), transport.Quote(sw.Link)), true
	case app.SwitchVersionManager:
		switch sw.Manager {
		case "nvm":
			return nvmShell("nvm alias default " + to + " && nvm use " + to), true
		case "pyenv":
			return "pyenv global " + transport.Quote(to), true
		}
	}
	return "", false
}
