package app

import (
	"fmt"
	"time"
)

// ValueType classifies a configuration value for display and validation
type ValueType string

const (
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
	ValueSize    ValueType = "size"
	ValueTime    ValueType = "time"
)

// ConfigValue is one configuration directive normalized across source
// syntaxes (nginx directive, php.ini entry, SQL variable, JSON field).
type ConfigValue struct {
	Key         string    `json:"key" yaml:"key"`
	Value       string    `json:"value" yaml:"value"`
	DisplayName string    `json:"displayName" yaml:"displayName"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Type        ValueType `json:"type,omitempty" yaml:"type,omitempty"`
	Section     string    `json:"section,omitempty" yaml:"section,omitempty"`
}

// ServiceInfo is the unit-level view of a managed service
type ServiceInfo struct {
	Name        string            `json:"name"`
	ActiveState string            `json:"activeState"`
	SubState    string            `json:"subState"`
	LoadState   string            `json:"loadState"`
	Enabled     string            `json:"enabled,omitempty"`
	Running     bool              `json:"running"`
	MainPID     int               `json:"mainPid,omitempty"`
	Since       time.Time         `json:"since,omitempty"`
	Memory      string            `json:"memory,omitempty"`
	Properties  map[string]string `json:"-"`
}

// String returns a human-readable status string
func (s *ServiceInfo) String() string {
	if s.Running {
		if s.Since.IsZero() {
			return fmt.Sprintf("running (pid %d)", s.MainPID)
		}
		return fmt.Sprintf("running (pid %d) since %s", s.MainPID, s.Since.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s/%s", s.ActiveState, s.SubState)
}

// LogFile is the tail of one log. Placeholder is set instead of Lines when
// the file could not be read, and describes why.
type LogFile struct {
	Path        string   `json:"path"`
	Lines       []string `json:"lines,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
}

// ConfigFile is the raw content of an application's main configuration
type ConfigFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Exists  bool   `json:"exists"`
}

// Module is a loadable server or interpreter module
type Module struct {
	Name    string `json:"name"`
	Kind    string `json:"kind,omitempty"`
	Enabled bool   `json:"enabled"`
}

// SecurityRule is one security-relevant setting with an assessment
type SecurityRule struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Value          string `json:"value"`
	Secure         bool   `json:"secure"`
	Recommendation string `json:"recommendation,omitempty"`
}

// DatabaseInfo describes one database of a database engine
type DatabaseInfo struct {
	Name       string `json:"name"`
	Size       string `json:"size,omitempty"`
	TableCount int    `json:"tableCount"`
	Owner      string `json:"owner,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
}

// UserInfo describes a database account
type UserInfo struct {
	Name      string   `json:"name"`
	Host      string   `json:"host,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	Superuser bool     `json:"superuser"`
}

// Extension is an interpreter or database extension
type Extension struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Enabled bool   `json:"enabled"`
}

// PoolInfo describes one PHP-FPM pool
type PoolInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Listen      string `json:"listen,omitempty"`
	User        string `json:"user,omitempty"`
	PM          string `json:"pm,omitempty"`
	MaxChildren int    `json:"maxChildren,omitempty"`
	ConfigPath  string `json:"configPath"`
	Active      bool   `json:"active"`
}

// RuntimeInfo describes a language interpreter
type RuntimeInfo struct {
	Binary  string            `json:"binary"`
	Path    string            `json:"path,omitempty"`
	Version string            `json:"version,omitempty"`
	IniPath string            `json:"iniPath,omitempty"`
	Extras  map[string]string `json:"extras,omitempty"`
}

// VersionsInfo lists installed versions, newest first, and the active one
type VersionsInfo struct {
	Active    string   `json:"active,omitempty"`
	Installed []string `json:"installed"`
}

// SiteInfo describes one virtual host
type SiteInfo struct {
	Name        string   `json:"name"`
	ServerNames []string `json:"serverNames,omitempty"`
	Root        string   `json:"root,omitempty"`
	ConfigPath  string   `json:"configPath"`
	Enabled     bool     `json:"enabled"`
}

// State is the mutable sink for one application's loaded sections. Providers
// write into it through a Writer; it is never shared across applications.
type State struct {
	AppID             string                     `json:"app"`
	Service           *ServiceInfo               `json:"service,omitempty"`
	Logs              []LogFile                  `json:"logs,omitempty"`
	Config            *ConfigFile                `json:"config,omitempty"`
	ConfigValues      []ConfigValue              `json:"configValues,omitempty"`
	Modules           []Module                   `json:"modules,omitempty"`
	SecurityRules     []SecurityRule             `json:"securityRules,omitempty"`
	Databases         []DatabaseInfo             `json:"databases,omitempty"`
	Users             []UserInfo                 `json:"users,omitempty"`
	Extensions        []Extension                `json:"extensions,omitempty"`
	DisabledFunctions []string                   `json:"disabledFunctions,omitempty"`
	Pools             []PoolInfo                 `json:"pools,omitempty"`
	Runtime           *RuntimeInfo               `json:"runtime,omitempty"`
	Versions          *VersionsInfo              `json:"versions,omitempty"`
	Sites             []SiteInfo                 `json:"sites,omitempty"`
	Loaded            map[ProviderType]time.Time `json:"loaded,omitempty"`
	Failures          map[ProviderType]string    `json:"failures,omitempty"`
}

// NewState creates an empty state for appID
func NewState(appID string) *State {
	return &State{
		AppID:    appID,
		Loaded:   make(map[ProviderType]time.Time),
		Failures: make(map[ProviderType]string),
	}
}

// MarkLoaded records a successful section load and clears any failure
func (s *State) MarkLoaded(section ProviderType, at time.Time) {
	if s.Loaded == nil {
		s.Loaded = make(map[ProviderType]time.Time)
	}
	s.Loaded[section] = at
	delete(s.Failures, section)
}

// MarkFailed records why a section could not be loaded
func (s *State) MarkFailed(section ProviderType, err error) {
	if s.Failures == nil {
		s.Failures = make(map[ProviderType]string)
	}
	s.Failures[section] = err.Error()
}

// IsLoaded reports whether section has been loaded successfully
func (s *State) IsLoaded(section ProviderType) bool {
	_, ok := s.Loaded[section]
	return ok
}

// Clone returns a copy safe to hand to readers outside the owner
func (s *State) Clone() State {
	out := *s
	if s.Service != nil {
		svc := *s.Service
		svc.Properties = cloneMap(s.Service.Properties)
		out.Service = &svc
	}
	if s.Config != nil {
		cfg := *s.Config
		out.Config = &cfg
	}
	if s.Runtime != nil {
		rt := *s.Runtime
		rt.Extras = cloneMap(s.Runtime.Extras)
		out.Runtime = &rt
	}
	if s.Versions != nil {
		v := *s.Versions
		v.Installed = append([]string(nil), s.Versions.Installed...)
		out.Versions = &v
	}
	out.Logs = append([]LogFile(nil), s.Logs...)
	out.ConfigValues = append([]ConfigValue(nil), s.ConfigValues...)
	out.Modules = append([]Module(nil), s.Modules...)
	out.SecurityRules = append([]SecurityRule(nil), s.SecurityRules...)
	out.Databases = append([]DatabaseInfo(nil), s.Databases...)
	out.Users = append([]UserInfo(nil), s.Users...)
	out.Extensions = append([]Extension(nil), s.Extensions...)
	out.DisabledFunctions = append([]string(nil), s.DisabledFunctions...)
	out.Pools = append([]PoolInfo(nil), s.Pools...)
	out.Sites = append([]SiteInfo(nil), s.Sites...)
	out.Loaded = make(map[ProviderType]time.Time, len(s.Loaded))
	for k, v := range s.Loaded {
		out.Loaded[k] = v
	}
	out.Failures = make(map[ProviderType]string, len(s.Failures))
	for k, v := range s.Failures {
		out.Failures[k] = v
	}
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
