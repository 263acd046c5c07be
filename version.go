package velo

import "github.com/AzozzALFiras/velo/internal/app"

// Version is the current version of the velo library
const Version = "0.4.0"

// VersionInfo describes the library build
type VersionInfo struct {
	// Version is the semantic version
	Version string `json:"version" yaml:"version" toml:"version"`

	// Applications lists the ids of the built-in catalog
	Applications []string `json:"applications" yaml:"applications" toml:"applications"`
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	info := VersionInfo{Version: Version}
	for _, d := range app.Builtin() {
		info.Applications = append(info.Applications, d.ID)
	}
	return info
}
