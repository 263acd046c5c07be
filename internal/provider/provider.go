// Package provider loads the sections of an application's state. Each
// section type has one Provider; the Registry maps section types to
// providers and is the single dispatch point for every caller.
package provider

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/detect"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// Target is everything a provider needs to load one application on one
// host. It is built per load and never retained by providers.
type Target struct {
	App     app.Definition
	Service app.ServiceConfiguration
	OS      detect.OSType

	// Version is the active major.minor version for multi-version
	// applications and empty otherwise
	Version string

	Run transport.Runner
}

// Provider loads one section type. Load writes its results through w in a
// single update. Empty command output is a valid empty result; an error is
// returned only when a hard prerequisite is missing.
type Provider interface {
	Type() app.ProviderType
	Load(ctx context.Context, t *Target, w app.Writer) error
}

// TargetResolver builds the Target for def on the host behind run
type TargetResolver func(ctx context.Context, def app.Definition, run transport.Runner) *Target

// DetectTarget resolves paths and versions with the detect package. opts
// are applied to every detector after the logger.
func DetectTarget(log *zap.Logger, opts ...detect.Option) TargetResolver {
	return func(ctx context.Context, def app.Definition, run transport.Runner) *Target {
		d := detect.New(def, append([]detect.Option{detect.WithLogger(log)}, opts...)...)
		return &Target{
			App:     def,
			OS:      d.OSType(ctx, run),
			Version: d.ActiveVersion(ctx, run),
			Service: d.Resolve(ctx, run),
			Run:     run,
		}
	}
}

// Registry maps section types to providers. It is populated at construction
// and read-only afterwards.
type Registry struct {
	apps      *app.Registry
	providers map[app.ProviderType]Provider
	resolve   TargetResolver
	log       *zap.Logger
	now       func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the registry's logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithTargetResolver replaces detection-based target resolution
func WithTargetResolver(fn TargetResolver) Option {
	return func(r *Registry) {
		r.resolve = fn
	}
}

// WithProviders registers providers, replacing any of the same type
func WithProviders(ps ...Provider) Option {
	return func(r *Registry) {
		for _, p := range ps {
			r.providers[p.Type()] = p
		}
	}
}

// NewRegistry creates a registry with no providers beyond those passed via
// WithProviders.
func NewRegistry(apps *app.Registry, opts ...Option) *Registry {
	r := &Registry{
		apps:      apps,
		providers: make(map[app.ProviderType]Provider),
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.resolve == nil {
		r.resolve = DetectTarget(r.log)
	}
	return r
}

// Default creates a registry holding every built-in provider
func Default(apps *app.Registry, opts ...Option) *Registry {
	return NewRegistry(apps, append([]Option{WithProviders(Builtin()...)}, opts...)...)
}

// Builtin returns one instance of every built-in provider
func Builtin() []Provider {
	return []Provider{
		ServiceProvider{},
		LogsProvider{Lines: DefaultLogLines},
		ConfigFileProvider{},
		ConfigValuesProvider{},
		ModulesProvider{},
		SecurityProvider{},
		DatabasesProvider{},
		UsersProvider{},
		ExtensionsProvider{},
		DisabledFunctionsProvider{},
		PoolsProvider{},
		RuntimeProvider{},
		VersionsProvider{},
		SitesProvider{},
	}
}

// Register adds p, replacing any provider of the same type. It must only be
// called before the registry is shared.
func (r *Registry) Register(p Provider) {
	r.providers[p.Type()] = p
}

// Provider returns the provider registered for t
func (r *Registry) Provider(t app.ProviderType) (Provider, bool) {
	p, ok := r.providers[t]
	return p, ok
}

// Types returns the registered section types in sorted order
func (r *Registry) Types() []app.ProviderType {
	out := make([]app.ProviderType, 0, len(r.providers))
	for t := range r.providers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Target resolves appID to a load target on the host behind run
func (r *Registry) Target(ctx context.Context, appID string, run transport.Runner) (*Target, error) {
	if run == nil {
		return nil, app.ErrSessionNotAvailable
	}
	def, ok := r.apps.Application(appID)
	if !ok {
		return nil, app.ServiceNotFound(appID)
	}
	return r.resolve(ctx, def, run), nil
}

// LoadData loads one section of appID into w
func (r *Registry) LoadData(ctx context.Context, section app.SectionDefinition, appID string, w app.Writer, run transport.Runner) error {
	if _, ok := r.providers[section.Provider]; !ok {
		return &app.SectionError{Section: section.Provider, App: appID, Err: app.ErrNotSupported}
	}
	t, err := r.Target(ctx, appID, run)
	if err != nil {
		return err
	}
	return r.Dispatch(ctx, section, t, w)
}

// Dispatch runs the provider for section against an already resolved target
// and records the outcome in the state.
func (r *Registry) Dispatch(ctx context.Context, section app.SectionDefinition, t *Target, w app.Writer) error {
	p, ok := r.providers[section.Provider]
	if !ok {
		return &app.SectionError{Section: section.Provider, App: t.App.ID, Err: app.ErrNotSupported}
	}

	start := r.now()
	err := p.Load(ctx, t, w)
	if err != nil {
		if errors.Is(err, app.ErrStateClosed) || ctx.Err() != nil {
			// the owner is gone; nothing left to record into
			return err
		}
		err = &app.SectionError{Section: section.Provider, App: t.App.ID, Err: err}
		r.log.Debug("section load failed",
			zap.String("app", t.App.ID), zap.String("section", section.ID), zap.Error(err))
		_ = w.Update(ctx, func(s *app.State) { s.MarkFailed(section.Provider, err) })
		return err
	}

	r.log.Debug("section loaded",
		zap.String("app", t.App.ID), zap.String("section", section.ID), zap.Duration("elapsed", r.now().Sub(start)))
	return w.Update(ctx, func(s *app.State) { s.MarkLoaded(section.Provider, r.now()) })
}

// LoadAll loads every section of appID in presentation order. A failing
// section does not stop the others; their errors are collected. Loading
// stops early only when the state owner goes away or ctx is canceled.
func (r *Registry) LoadAll(ctx context.Context, appID string, w app.Writer, run transport.Runner) error {
	t, err := r.Target(ctx, appID, run)
	if err != nil {
		return err
	}
	errs := &app.MultiError{}
	for _, section := range t.App.OrderedSections() {
		err := r.Dispatch(ctx, section, t, w)
		if err == nil {
			continue
		}
		if errors.Is(err, app.ErrStateClosed) || ctx.Err() != nil {
			return err
		}
		errs.Add(err)
	}
	return errs.Err()
}
