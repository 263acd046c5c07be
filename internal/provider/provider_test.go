package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/detect"
	"github.com/AzozzALFiras/velo/internal/transport"
	"github.com/AzozzALFiras/velo/internal/transport/transporttest"
)

type stubProvider struct {
	typ app.ProviderType
	err error
	fn  func(*app.State)
}

func (p stubProvider) Type() app.ProviderType { return p.typ }

func (p stubProvider) Load(ctx context.Context, _ *Target, w app.Writer) error {
	if p.err != nil {
		return p.err
	}
	if p.fn == nil {
		return nil
	}
	return w.Update(ctx, p.fn)
}

func newOwner(t *testing.T, appID string) *app.Owner {
	t.Helper()
	o := app.NewOwner(context.Background(), appID)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func target(t *testing.T, id string, run transport.Runner) *Target {
	t.Helper()
	def, ok := app.DefaultRegistry().Application(id)
	require.True(t, ok, id)
	return &Target{App: def, Service: def.Service.Clone(), OS: detect.Debian, Run: run}
}

func fixedTarget(tg *Target) TargetResolver {
	return func(context.Context, app.Definition, transport.Runner) *Target { return tg }
}

func TestBuiltinCoversEverySectionOfTheCatalog(t *testing.T) {
	reg := Default(app.DefaultRegistry())
	for _, def := range app.DefaultRegistry().All() {
		for _, s := range def.Sections {
			_, ok := reg.Provider(s.Provider)
			assert.True(t, ok, "%s section %s has no provider", def.ID, s.ID)
		}
	}
	assert.Len(t, reg.Types(), 14)
}

func TestLoadDataUnregisteredIsNotSupported(t *testing.T) {
	run := transporttest.New()
	reg := NewRegistry(app.DefaultRegistry(), WithLogger(zaptest.NewLogger(t)))
	owner := newOwner(t, "nginx")

	err := reg.LoadData(context.Background(), app.SectionDefinition{ID: "logs", Provider: app.ProviderLogs}, "nginx", owner, run)
	require.Error(t, err)
	assert.ErrorIs(t, err, app.ErrNotSupported)
	assert.True(t, app.IsUserVisible(err))

	var se *app.SectionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, app.ProviderLogs, se.Section)
	assert.Empty(t, run.Commands())
}

func TestLoadDataUnknownApplication(t *testing.T) {
	reg := Default(app.DefaultRegistry())
	err := reg.LoadData(context.Background(), app.SectionDefinition{Provider: app.ProviderService}, "lighttpd", newOwner(t, "lighttpd"), transporttest.New())
	assert.ErrorIs(t, err, app.ErrServiceNotFound)
}

func TestLoadDataWithoutSession(t *testing.T) {
	reg := Default(app.DefaultRegistry())
	err := reg.LoadData(context.Background(), app.SectionDefinition{Provider: app.ProviderService}, "nginx", newOwner(t, "nginx"), nil)
	assert.ErrorIs(t, err, app.ErrSessionNotAvailable)
}

func TestDispatchRecordsOutcome(t *testing.T) {
	ctx := context.Background()
	boom := app.LoadFailed("nginx binary not found")
	reg := NewRegistry(app.DefaultRegistry(), WithProviders(
		stubProvider{typ: app.ProviderService, fn: func(s *app.State) { s.Service = &app.ServiceInfo{Name: "nginx"} }},
		stubProvider{typ: app.ProviderModules, err: boom},
	))
	owner := newOwner(t, "nginx")
	tg := target(t, "nginx", transporttest.New())

	require.NoError(t, reg.Dispatch(ctx, app.SectionDefinition{ID: "service", Provider: app.ProviderService}, tg, owner))
	err := reg.Dispatch(ctx, app.SectionDefinition{ID: "modules", Provider: app.ProviderModules}, tg, owner)
	require.Error(t, err)
	assert.ErrorIs(t, err, app.ErrLoadFailed)
	assert.False(t, app.IsUserVisible(err))

	snap, err := owner.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsLoaded(app.ProviderService))
	assert.False(t, snap.IsLoaded(app.ProviderModules))
	assert.Contains(t, snap.Failures[app.ProviderModules], "nginx binary not found")
	require.NotNil(t, snap.Service)
	assert.Equal(t, "nginx", snap.Service.Name)
}

func TestDispatchAfterOwnerClosed(t *testing.T) {
	reg := NewRegistry(app.DefaultRegistry(), WithProviders(
		stubProvider{typ: app.ProviderService, fn: func(*app.State) {}},
	))
	owner := app.NewOwner(context.Background(), "nginx")
	require.NoError(t, owner.Close())

	err := reg.Dispatch(context.Background(), app.SectionDefinition{Provider: app.ProviderService}, target(t, "nginx", transporttest.New()), owner)
	assert.ErrorIs(t, err, app.ErrStateClosed)
}

func TestLoadAllContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	run := transporttest.New()
	tg := target(t, "nginx", run)
	reg := NewRegistry(app.DefaultRegistry(),
		WithTargetResolver(fixedTarget(tg)),
		WithLogger(zaptest.NewLogger(t)),
		WithProviders(
			stubProvider{typ: app.ProviderService, fn: func(s *app.State) { s.Service = &app.ServiceInfo{Name: "nginx", Running: true} }},
			stubProvider{typ: app.ProviderLogs, err: app.LoadFailed("no logs")},
			stubProvider{typ: app.ProviderSites, fn: func(s *app.State) { s.Sites = []app.SiteInfo{{Name: "default"}} }},
		))
	owner := newOwner(t, "nginx")

	err := reg.LoadAll(ctx, "nginx", owner, run)
	require.Error(t, err)

	var me *app.MultiError
	require.True(t, errors.As(err, &me))
	// logs failed; configFile, configValues, modules and security have no provider here
	assert.Len(t, me.Errors, 5)
	assert.ErrorIs(t, err, app.ErrLoadFailed)
	assert.ErrorIs(t, err, app.ErrNotSupported)

	snap, err := owner.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsLoaded(app.ProviderService))
	assert.True(t, snap.IsLoaded(app.ProviderSites))
	assert.Len(t, snap.Sites, 1)
	assert.Contains(t, snap.Failures, app.ProviderLogs)
}

func TestLoadAllStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	run := transporttest.New()
	tg := target(t, "nginx", run)
	calls := 0
	reg := NewRegistry(app.DefaultRegistry(),
		WithTargetResolver(fixedTarget(tg)),
		WithProviders(stubProvider{typ: app.ProviderService, fn: func(*app.State) { calls++; cancel() }}),
	)
	owner := newOwner(t, "nginx")

	err := reg.LoadAll(ctx, "nginx", owner, run)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
