package aggregator

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/detect"
	"github.com/AzozzALFiras/velo/internal/transport"
	"github.com/AzozzALFiras/velo/internal/version"
)

var packageName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.+_-]*$`)

// InstalledVersions lists the installed versions of id, newest first, and
// the active one
func (a *Aggregator) InstalledVersions(ctx context.Context, run transport.Runner, id string) (app.VersionsInfo, error) {
	if run == nil {
		return app.VersionsInfo{}, app.ErrSessionNotAvailable
	}
	def, err := a.definition(id)
	if err != nil {
		return app.VersionsInfo{}, err
	}
	if def.VersionDetection == nil {
		return app.VersionsInfo{}, &app.ServiceError{Service: def.ID, Op: "list versions", Err: app.ErrNotSupported}
	}
	r := version.NewResolver(def, a.log)
	active, _ := r.ActiveVersion(ctx, run)
	return app.VersionsInfo{Active: active, Installed: r.InstalledVersions(ctx, run)}, nil
}

// SwitchVersion makes to the active version of id. Switched is false when
// the version is not installed or no mechanism succeeded; each attempt is
// reported in the result.
func (a *Aggregator) SwitchVersion(ctx context.Context, run transport.Runner, id, to string) (version.SwitchResult, error) {
	if run == nil {
		return version.SwitchResult{}, app.ErrSessionNotAvailable
	}
	def, err := a.definition(id)
	if err != nil {
		return version.SwitchResult{}, err
	}
	if def.VersionSwitch == nil {
		return version.SwitchResult{}, &app.ServiceError{Service: def.ID, Op: "switch version", Err: app.ErrNotSupported}
	}
	res, err := version.NewResolver(def, a.log).Switch(ctx, run, to)
	if err != nil {
		return res, &app.ServiceError{Service: def.ID, Op: "switch version", Err: err}
	}
	a.log.Info("version switch",
		zap.String("app", def.ID), zap.String("to", to), zap.Bool("switched", res.Switched), zap.String("via", string(res.Via)))
	return res, nil
}

// InstallResult reports a package install
type InstallResult struct {
	Package string `json:"package"`
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Output  string `json:"output,omitempty"`
}

// Install installs the first package of id's layout, or pkg when given,
// with the target's package manager
func (a *Aggregator) Install(ctx context.Context, run transport.Runner, id, pkg string) (InstallResult, error) {
	if run == nil {
		return InstallResult{}, app.ErrSessionNotAvailable
	}
	def, err := a.definition(id)
	if err != nil {
		return InstallResult{}, err
	}
	os := a.osType(ctx, run)
	if pkg == "" {
		pkgs := detect.LayoutFor(def.ID).PackagesFor(os)
		if len(pkgs) == 0 {
			return InstallResult{}, &app.ServiceError{Service: def.ID, Op: "install", Err: app.ErrNotSupported}
		}
		pkg = pkgs[0]
	}
	if !packageName.MatchString(pkg) {
		return InstallResult{}, &app.ServiceError{Service: def.ID, Op: "install", Err: fmt.Errorf("%w: %q", ErrInvalidName, pkg)}
	}

	out := InstallResult{Package: pkg, Command: detect.PackageManager(os) + " " + transport.Quote(pkg)}
	res, err := run.Run(ctx, out.Command+" 2>&1", transport.Elevated(), transport.WithTimeout(a.InstallTimeout))
	if err != nil {
		return out, &app.ServiceError{Service: def.ID, Op: "install", Err: err}
	}
	out.OK = res.OK()
	if !out.OK {
		out.Output = res.Trimmed()
		a.log.Warn("install failed", zap.String("package", pkg), zap.Int("exit", res.ExitCode))
	} else {
		a.log.Info("installed", zap.String("package", pkg), zap.Duration("elapsed", res.ExecutionTime))
	}
	return out, nil
}
