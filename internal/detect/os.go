// Package detect answers where and whether server software lives on a
// target: OS family classification, install probes, binary/config/log path
// resolution and web document-root discovery.
//
// Nothing in this package returns an error. Absence of evidence falls
// through to the next probe in a chain and finally to a default.
package detect

import (
	"context"
	"strings"

	"github.com/AzozzALFiras/velo/internal/fallback"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// OSType is the distribution family of a target
type OSType string

const (
	Debian  OSType = "debian"
	RHEL    OSType = "rhel"
	Unknown OSType = "unknown"
)

// familyDirs are directories whose presence settles the family. Web server
// config trees are checked first because panel-managed hosts often carry a
// misleading package database.
var familyDirs = []struct {
	path string
	os   OSType
}{
	{"/etc/apache2", Debian},
	{"/etc/httpd", RHEL},
	{"/etc/apt", Debian},
	{"/etc/yum.repos.d", RHEL},
}

var (
	debianIDs = []string{"debian", "ubuntu", "raspbian", "linuxmint", "pop", "elementary", "kali"}
	rhelIDs   = []string{"rhel", "centos", "fedora", "rocky", "almalinux", "ol", "amzn", "cloudlinux", "scientific"}
)

// DetectOS classifies the target. Directory probes come first, then
// /etc/os-release, and Debian is assumed when both are inconclusive. Unknown
// is returned only when os-release names a family this package does not
// handle.
func DetectOS(ctx context.Context, run transport.Runner) OSType {
	family, _ := fallback.FirstValue(ctx,
		fallback.Of("directory", func(ctx context.Context) (OSType, bool) {
			return osFromDirs(ctx, run)
		}),
		fallback.Of("os-release", func(ctx context.Context) (OSType, bool) {
			f, err := transport.ReadFile(ctx, run, "/etc/os-release", false)
			if err != nil || !f.OK() {
				return "", false
			}
			return ParseOSRelease(f.Content)
		}),
		fallback.Value("default", Debian),
	)
	if family == "" {
		return Debian
	}
	return family
}

func osFromDirs(ctx context.Context, run transport.Runner) (OSType, bool) {
	// one round trip: print the first family directory that exists
	dirs := make([]string, len(familyDirs))
	for i, d := range familyDirs {
		dirs[i] = transport.Quote(d.path)
	}
	cmd := `for d in ` + strings.Join(dirs, " ") + `; do [ -d "$d" ] && { echo "$d"; exit 0; }; done; exit 1`
	res, err := run.Run(ctx, cmd, transport.WithTimeout(transport.ShortTimeout))
	if err != nil || !res.OK() {
		return "", false
	}
	found := res.Trimmed()
	for _, d := range familyDirs {
		if found == d.path {
			return d.os, true
		}
	}
	return "", false
}

// ParseOSRelease classifies an os-release document by ID, then ID_LIKE. It
// reports false when neither key is present.
func ParseOSRelease(content string) (OSType, bool) {
	fields := map[string]string{}
	for _, line := range transport.SplitLines(content) {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		fields[k] = strings.ToLower(strings.Trim(v, `"'`))
	}
	id, like := fields["ID"], fields["ID_LIKE"]
	if id == "" && like == "" {
		return "", false
	}
	for _, candidate := range append([]string{id}, strings.Fields(like)...) {
		switch {
		case contains(debianIDs, candidate):
			return Debian, true
		case contains(rhelIDs, candidate):
			return RHEL, true
		}
	}
	return Unknown, true
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// PackageManager returns the install command prefix for the family
func PackageManager(os OSType) string {
	if os == RHEL {
		return "dnf install -y"
	}
	return "DEBIAN_FRONTEND=noninteractive apt-get install -y"
}

// PackageQuery returns the command that exits 0 when pkg is installed
func PackageQuery(os OSType, pkg string) string {
	switch os {
	case Debian:
		return "dpkg -s " + transport.Quote(pkg) + " >/dev/null 2>&1"
	case RHEL:
		return "rpm -q " + transport.Quote(pkg) + " >/dev/null 2>&1"
	default:
		q := transport.Quote(pkg)
		return "(dpkg -s " + q + " || rpm -q " + q + ") >/dev/null 2>&1"
	}
}
