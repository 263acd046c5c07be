package velo

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/aggregator"
	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/detect"
	"github.com/AzozzALFiras/velo/internal/provider"
	"github.com/AzozzALFiras/velo/internal/transport"
	"github.com/AzozzALFiras/velo/internal/version"
)

// Re-exported model types
type (
	Runner         = transport.Runner
	CommandResult  = transport.CommandResult
	Definition     = app.Definition
	SoftwareStatus = app.SoftwareStatus
	State          = app.State
	ConfigFile     = app.ConfigFile
	VersionsInfo   = app.VersionsInfo
	ControlResult  = aggregator.ControlResult
	MutateResult   = aggregator.MutateResult
	InstallResult  = aggregator.InstallResult
	SiteSpec       = aggregator.SiteSpec
	SwitchResult   = version.SwitchResult
	Verb           = aggregator.Verb
	OSType         = detect.OSType
)

// Service verbs
const (
	Start   = aggregator.Start
	Stop    = aggregator.Stop
	Restart = aggregator.Restart
	Reload  = aggregator.Reload
)

// Client manages the applications on one target. It keeps one state per
// application, filled section by section as they are loaded, and is safe for
// concurrent use.
type Client struct {
	run       transport.Runner
	apps      *app.Registry
	providers *provider.Registry
	agg       *aggregator.Aggregator
	log       *zap.Logger

	mu     sync.Mutex
	owners map[string]*app.Owner
	closed bool
}

type clientConfig struct {
	log        *zap.Logger
	extra      []app.Definition
	aggregator []aggregator.Option
	os         detect.OSType
}

// Option configures a Client
type Option func(*clientConfig)

// WithLogger sets the logger shared by every component of the client
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithApplications adds definitions to the built-in catalog. A definition
// whose id is already registered replaces the built-in one.
func WithApplications(defs ...Definition) Option {
	return func(c *clientConfig) {
		c.extra = append(c.extra, defs...)
	}
}

// WithOS skips OS detection; every probe assumes os
func WithOS(os OSType) Option {
	return func(c *clientConfig) {
		c.os = os
	}
}

// WithAggregatorOptions passes options through to the service aggregator
func WithAggregatorOptions(opts ...aggregator.Option) Option {
	return func(c *clientConfig) {
		c.aggregator = append(c.aggregator, opts...)
	}
}

// New creates a Client that runs every command through run
func New(run Runner, opts ...Option) (*Client, error) {
	if run == nil {
		return nil, ErrSessionNotAvailable
	}
	cfg := &clientConfig{log: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	apps, err := buildRegistry(cfg.extra)
	if err != nil {
		return nil, err
	}

	aggOpts := []aggregator.Option{aggregator.WithLogger(cfg.log)}
	provOpts := []provider.Option{provider.WithLogger(cfg.log)}
	if cfg.os != "" {
		aggOpts = append(aggOpts, aggregator.WithOS(cfg.os))
		provOpts = append(provOpts, provider.WithTargetResolver(provider.DetectTarget(cfg.log, detect.WithOS(cfg.os))))
	}

	return &Client{
		run:       run,
		apps:      apps,
		providers: provider.Default(apps, provOpts...),
		agg:       aggregator.New(apps, append(aggOpts, cfg.aggregator...)...),
		log:       cfg.log,
		owners:    make(map[string]*app.Owner),
	}, nil
}

func buildRegistry(extra []app.Definition) (*app.Registry, error) {
	if len(extra) == 0 {
		return app.DefaultRegistry(), nil
	}
	byID := map[string]int{}
	defs := app.Builtin()
	for i, d := range defs {
		byID[d.ID] = i
	}
	for _, d := range extra {
		if i, ok := byID[d.ID]; ok {
			defs[i] = d
			continue
		}
		byID[d.ID] = len(defs)
		defs = append(defs, d)
	}
	return app.NewRegistry(defs...)
}

// Applications returns every registered definition ordered by id
func (c *Client) Applications() []Definition {
	return c.apps.All()
}

// Application returns the definition for id, accepting aliases and unit
// names such as "php8.2-fpm". The error names close matches when there is no
// definition.
func (c *Client) Application(id string) (Definition, error) {
	if def, ok := c.apps.Application(id); ok {
		return def, nil
	}
	if def, ok := c.apps.ApplicationForSoftware(id); ok {
		return def, nil
	}
	if s := c.apps.Suggest(id, 3); len(s) > 0 {
		return Definition{}, fmt.Errorf("%w (did you mean %s?)", app.ServiceNotFound(id), strings.Join(s, ", "))
	}
	return Definition{}, app.ServiceNotFound(id)
}

// Aggregator exposes the service aggregator for multi-host use
func (c *Client) Aggregator() *aggregator.Aggregator {
	return c.agg
}

// Runner returns the runner the client was created with
func (c *Client) Runner() Runner {
	return c.run
}

func (c *Client) owner(id string) (*app.Owner, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, app.ErrStateClosed
	}
	o, ok := c.owners[id]
	if !ok {
		o = app.NewOwner(context.Background(), id)
		c.owners[id] = o
	}
	return o, nil
}

// LoadSection loads one section of application id and returns the state
// afterwards. A failed load is still recorded in the returned state.
func (c *Client) LoadSection(ctx context.Context, id, section string) (State, error) {
	def, err := c.Application(id)
	if err != nil {
		return State{}, err
	}
	sec, ok := def.Section(section)
	if !ok {
		return State{}, &app.SectionError{Section: app.ProviderType(section), App: def.ID, Err: app.ErrNotSupported}
	}
	o, err := c.owner(def.ID)
	if err != nil {
		return State{}, err
	}
	loadErr := c.providers.LoadData(ctx, sec, def.ID, o, c.run)
	st, err := o.Snapshot(ctx)
	if err != nil {
		return st, err
	}
	return st, loadErr
}

// LoadAll loads every section of application id. Failing sections do not
// stop the others.
func (c *Client) LoadAll(ctx context.Context, id string) (State, error) {
	def, err := c.Application(id)
	if err != nil {
		return State{}, err
	}
	o, err := c.owner(def.ID)
	if err != nil {
		return State{}, err
	}
	loadErr := c.providers.LoadAll(ctx, def.ID, o, c.run)
	st, err := o.Snapshot(ctx)
	if err != nil {
		return st, err
	}
	return st, loadErr
}

// State returns what has been loaded for application id so far
func (c *Client) State(ctx context.Context, id string) (State, error) {
	def, err := c.Application(id)
	if err != nil {
		return State{}, err
	}
	o, err := c.owner(def.ID)
	if err != nil {
		return State{}, err
	}
	return o.Snapshot(ctx)
}

// Status checks ids, or every application, in one round trip
func (c *Client) Status(ctx context.Context, ids ...string) (map[string]SoftwareStatus, error) {
	return c.agg.FetchStatuses(ctx, c.run, ids...)
}

// Installed returns the applications present on the target
func (c *Client) Installed(ctx context.Context) ([]Definition, error) {
	return c.agg.FetchInstalled(ctx, c.run)
}

// Control runs verb on service, a unit name or an application id
func (c *Client) Control(ctx context.Context, service string, verb Verb) (ControlResult, error) {
	if def, ok := c.apps.Application(service); ok {
		unit, err := c.agg.ServiceFor(ctx, c.run, def.ID)
		if err != nil {
			return ControlResult{Service: service, Verb: verb}, err
		}
		service = unit
	}
	return c.agg.Control(ctx, c.run, service, verb)
}

// SaveConfig replaces the main configuration file of application id and
// reloads it when the validator accepts the change
func (c *Client) SaveConfig(ctx context.Context, id, content string) (MutateResult, error) {
	return c.agg.SaveConfig(ctx, c.run, id, content)
}

// Config reads the main configuration file of application id
func (c *Client) Config(ctx context.Context, id string) (ConfigFile, error) {
	st, err := c.LoadSection(ctx, id, string(app.ProviderConfigFile))
	if err != nil {
		return ConfigFile{}, err
	}
	if st.Config == nil {
		return ConfigFile{}, app.LoadFailed("no configuration file for %s", id)
	}
	return *st.Config, nil
}

// Versions lists installed versions of application id
func (c *Client) Versions(ctx context.Context, id string) (VersionsInfo, error) {
	return c.agg.InstalledVersions(ctx, c.run, id)
}

// SwitchVersion activates version to of application id
func (c *Client) SwitchVersion(ctx context.Context, id, to string) (SwitchResult, error) {
	return c.agg.SwitchVersion(ctx, c.run, id, to)
}

// CreateDatabase creates name on engine
func (c *Client) CreateDatabase(ctx context.Context, engine, name string) (bool, error) {
	return c.agg.CreateDatabase(ctx, c.run, engine, name)
}

// DeleteDatabase drops name on engine
func (c *Client) DeleteDatabase(ctx context.Context, engine, name string) (bool, error) {
	return c.agg.DeleteDatabase(ctx, c.run, engine, name)
}

// CreateSite adds a virtual host to webServer
func (c *Client) CreateSite(ctx context.Context, webServer string, spec SiteSpec) (MutateResult, error) {
	return c.agg.CreateSite(ctx, c.run, webServer, spec)
}

// DeleteSite removes the virtual host for domain from webServer
func (c *Client) DeleteSite(ctx context.Context, webServer, domain string) (MutateResult, error) {
	return c.agg.DeleteSite(ctx, c.run, webServer, domain)
}

// Install installs application id, or pkg when given
func (c *Client) Install(ctx context.Context, id, pkg string) (InstallResult, error) {
	return c.agg.Install(ctx, c.run, id, pkg)
}

// Forget discards the loaded state of application id
func (c *Client) Forget(id string) error {
	c.mu.Lock()
	o, ok := c.owners[id]
	delete(c.owners, id)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return o.Close()
}

// Close discards every application state. Loads still in flight fail with
// ErrStateClosed. The runner is left open.
func (c *Client) Close() error {
	c.mu.Lock()
	owners := c.owners
	c.owners = map[string]*app.Owner{}
	c.closed = true
	c.mu.Unlock()

	merr := &MultiError{}
	for _, o := range owners {
		merr.Add(o.Close())
	}
	return merr.Err()
}
