package app

import (
	"encoding/json"
	"fmt"
)

// StatusKind tags the variant held by a SoftwareStatus
type StatusKind int

const (
	StatusNotInstalled StatusKind = iota
	StatusInstalled
	StatusRunning
	StatusStopped
)

var statusKindNames = map[StatusKind]string{
	StatusNotInstalled: "notInstalled",
	StatusInstalled:    "installed",
	StatusRunning:      "running",
	StatusStopped:      "stopped",
}

func (k StatusKind) String() string {
	if s, ok := statusKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// SoftwareStatus is notInstalled, installed(version), running(version) or
// stopped(version). A notInstalled status never carries a version.
type SoftwareStatus struct {
	kind    StatusKind
	version string
}

// NotInstalled returns the notInstalled status
func NotInstalled() SoftwareStatus {
	return SoftwareStatus{kind: StatusNotInstalled}
}

// Installed returns installed(version), for software without a service
func Installed(version string) SoftwareStatus {
	return SoftwareStatus{kind: StatusInstalled, version: version}
}

// Running returns running(version)
func Running(version string) SoftwareStatus {
	return SoftwareStatus{kind: StatusRunning, version: version}
}

// Stopped returns stopped(version)
func Stopped(version string) SoftwareStatus {
	return SoftwareStatus{kind: StatusStopped, version: version}
}

// Kind returns the variant tag
func (s SoftwareStatus) Kind() StatusKind {
	return s.kind
}

// Version returns the captured version; always empty for notInstalled
func (s SoftwareStatus) Version() string {
	return s.version
}

// IsInstalled reports whether the software is present on the target
func (s SoftwareStatus) IsInstalled() bool {
	return s.kind != StatusNotInstalled
}

// IsRunning reports whether the software's service is active
func (s SoftwareStatus) IsRunning() bool {
	return s.kind == StatusRunning
}

func (s SoftwareStatus) String() string {
	if s.kind == StatusNotInstalled {
		return s.kind.String()
	}
	return fmt.Sprintf("%s(%s)", s.kind, s.version)
}

type softwareStatusJSON struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// MarshalJSON encodes the status as {"status": ..., "version": ...}
func (s SoftwareStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(softwareStatusJSON{Status: s.kind.String(), Version: s.version})
}

// UnmarshalJSON decodes the form written by MarshalJSON
func (s *SoftwareStatus) UnmarshalJSON(data []byte) error {
	var raw softwareStatusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, name := range statusKindNames {
		if name == raw.Status {
			*s = SoftwareStatus{kind: k, version: raw.Version}
			if k == StatusNotInstalled {
				s.version = ""
			}
			return nil
		}
	}
	return fmt.Errorf("unknown software status %q", raw.Status)
}

// MarshalText lets the status appear in text, yaml and toml output
func (s SoftwareStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
