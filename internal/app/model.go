// Package app holds the application catalog: declarative descriptions of
// installable server software, the registry that resolves them by name, and
// the per-application state that section providers populate.
package app

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category groups applications for presentation
type Category string

const (
	CategoryWebServer Category = "web-server"
	CategoryDatabase  Category = "database"
	CategoryCache     Category = "cache"
	CategoryRuntime   Category = "runtime"
)

// ProviderType is the dispatch key from a section to its provider
type ProviderType string

const (
	ProviderService           ProviderType = "service"
	ProviderLogs              ProviderType = "logs"
	ProviderConfigFile        ProviderType = "configFile"
	ProviderConfigValues      ProviderType = "configValues"
	ProviderModules           ProviderType = "modules"
	ProviderSecurity          ProviderType = "security"
	ProviderDatabases         ProviderType = "databases"
	ProviderUsers             ProviderType = "users"
	ProviderExtensions        ProviderType = "extensions"
	ProviderDisabledFunctions ProviderType = "disabledFunctions"
	ProviderPools             ProviderType = "pools"
	ProviderRuntime           ProviderType = "runtime"
	ProviderVersions          ProviderType = "versions"
	ProviderSites             ProviderType = "sites"
)

// Capability is a set of feature flags on an application definition
type Capability uint32

const (
	Controllable Capability = 1 << iota
	Configurable
	HasLogs
	HasDatabases
	HasUsers
	HasModules
	HasSecurity
	MultiVersion
	HasFPM
	HasExtensions
	HasSites
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{Controllable, "controllable"},
	{Configurable, "configurable"},
	{HasLogs, "hasLogs"},
	{HasDatabases, "hasDatabases"},
	{HasUsers, "hasUsers"},
	{HasModules, "hasModules"},
	{HasSecurity, "hasSecurity"},
	{MultiVersion, "multiVersion"},
	{HasFPM, "hasFPM"},
	{HasExtensions, "hasExtensions"},
	{HasSites, "hasSites"},
}

// Has reports whether every flag in want is set
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// Names returns the flag names in declaration order
func (c Capability) Names() []string {
	var out []string
	for _, cn := range capabilityNames {
		if c.Has(cn.c) {
			out = append(out, cn.name)
		}
	}
	return out
}

func (c Capability) String() string {
	return strings.Join(c.Names(), ",")
}

// ParseCapability maps a flag name to its Capability
func ParseCapability(name string) (Capability, error) {
	for _, cn := range capabilityNames {
		if strings.EqualFold(cn.name, name) {
			return cn.c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// MarshalYAML encodes the set as a list of names
func (c Capability) MarshalYAML() (any, error) {
	return c.Names(), nil
}

// UnmarshalYAML decodes a list of names
func (c *Capability) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	if err := node.Decode(&names); err != nil {
		return err
	}
	var out Capability
	for _, n := range names {
		flag, err := ParseCapability(n)
		if err != nil {
			return err
		}
		out |= flag
	}
	*c = out
	return nil
}

// MarshalJSON encodes the set as a list of names
func (c Capability) MarshalJSON() ([]byte, error) {
	names := c.Names()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = `"` + n + `"`
	}
	return []byte("[" + strings.Join(quoted, ",") + "]"), nil
}

// SectionDefinition is one independently loadable facet of an application
type SectionDefinition struct {
	ID       string       `yaml:"id" json:"id"`
	Name     string       `yaml:"name" json:"name"`
	Icon     string       `yaml:"icon" json:"icon"`
	Provider ProviderType `yaml:"provider" json:"provider"`
	Order    int          `yaml:"order" json:"order"`
}

// ServiceConfiguration is the set of filesystem and service facts needed to
// operate an application. Values are defaults; detectors resolve per-OS
// variants at call time and return a modified copy.
type ServiceConfiguration struct {
	ServiceName     string   `yaml:"service" json:"service,omitempty"`
	Binary          string   `yaml:"binary" json:"binary,omitempty"`
	BinaryPath      string   `yaml:"binaryPath" json:"binaryPath,omitempty"`
	ConfigPath      string   `yaml:"config" json:"config,omitempty"`
	LogPaths        []string `yaml:"logs" json:"logs,omitempty"`
	SocketPath      string   `yaml:"socket" json:"socket,omitempty"`
	PidPath         string   `yaml:"pid" json:"pid,omitempty"`
	ValidateCommand string   `yaml:"validate" json:"validate,omitempty"`
	VersionCommand  string   `yaml:"versionCommand" json:"versionCommand,omitempty"`
	VersionPattern  string   `yaml:"versionPattern" json:"versionPattern,omitempty"`
}

// Clone returns a copy that shares no slices with c
func (c ServiceConfiguration) Clone() ServiceConfiguration {
	out := c
	out.LogPaths = append([]string(nil), c.LogPaths...)
	return out
}

// DetectionKind names a version enumeration mechanism
type DetectionKind string

const (
	DetectBinaryGlob     DetectionKind = "binaryGlob"
	DetectAlternatives   DetectionKind = "alternatives"
	DetectVersionManager DetectionKind = "versionManager"
)

// VersionDetectionStrategy declares how installed versions are enumerated
type VersionDetectionStrategy struct {
	Kind DetectionKind `yaml:"kind" json:"kind"`

	// Pattern is the shell glob for DetectBinaryGlob, e.g. /usr/bin/php[0-9]*.[0-9]*
	Pattern string `yaml:"pattern" json:"pattern,omitempty"`

	// VersionRegex extracts the version from each match; the first group wins
	VersionRegex string `yaml:"versionRegex" json:"versionRegex,omitempty"`

	// Name is the alternatives group for DetectAlternatives
	Name string `yaml:"name" json:"name,omitempty"`

	// Manager is the version manager for DetectVersionManager (nvm, pyenv)
	Manager string `yaml:"manager" json:"manager,omitempty"`

	// Fallback is tried when this strategy yields nothing
	Fallback *VersionDetectionStrategy `yaml:"fallback" json:"fallback,omitempty"`
}

// SwitchKind names a version switching mechanism
type SwitchKind string

const (
	SwitchAlternatives   SwitchKind = "alternatives"
	SwitchSymlink        SwitchKind = "symlink"
	SwitchVersionManager SwitchKind = "versionManager"
)

// VersionSwitchStrategy declares how the active version is changed
type VersionSwitchStrategy struct {
	Kind SwitchKind `yaml:"kind" json:"kind"`

	// Name is the alternatives group
	Name string `yaml:"name" json:"name,omitempty"`

	// Link is the system-wide path that points at the active binary
	Link string `yaml:"link" json:"link,omitempty"`

	// Target is the per-version binary path; {version} is substituted
	Target string `yaml:"target" json:"target,omitempty"`

	// Manager is the version manager for SwitchVersionManager
	Manager string `yaml:"manager" json:"manager,omitempty"`
}

// TargetFor returns Target with the version substituted
func (s VersionSwitchStrategy) TargetFor(version string) string {
	return strings.ReplaceAll(s.Target, "{version}", version)
}

// Definition describes one application
type Definition struct {
	ID               string                    `yaml:"id" json:"id"`
	Name             string                    `yaml:"name" json:"name"`
	Category         Category                  `yaml:"category" json:"category"`
	Aliases          []string                  `yaml:"aliases" json:"aliases,omitempty"`
	Sections         []SectionDefinition       `yaml:"sections" json:"sections"`
	Service          ServiceConfiguration      `yaml:"serviceConfig" json:"serviceConfig"`
	Capabilities     Capability                `yaml:"capabilities" json:"capabilities"`
	VersionDetection *VersionDetectionStrategy `yaml:"versionDetection" json:"versionDetection,omitempty"`
	VersionSwitch    *VersionSwitchStrategy    `yaml:"versionSwitch" json:"versionSwitch,omitempty"`
}

// OrderedSections returns the sections sorted by Order, stable on ties
func (d Definition) OrderedSections() []SectionDefinition {
	out := append([]SectionDefinition(nil), d.Sections...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Section finds a section by id or provider type
func (d Definition) Section(id string) (SectionDefinition, bool) {
	for _, s := range d.Sections {
		if strings.EqualFold(s.ID, id) || strings.EqualFold(string(s.Provider), id) {
			return s, true
		}
	}
	return SectionDefinition{}, false
}

// Has reports whether the definition declares every flag in c
func (d Definition) Has(c Capability) bool {
	return d.Capabilities.Has(c)
}

// StatusKey is the marker token used for this application in batched probes
func (d Definition) StatusKey() string {
	var b strings.Builder
	for _, r := range strings.ToUpper(d.ID) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
