// Package aggregator is the façade over detectors, resolvers and providers
// that callers use to read cross-service status and to change a target:
// service control, safe configuration saves, databases, sites, runtime
// versions and package installs.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/detect"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// ErrInvalidName is returned for database, site and package names that
// cannot be interpolated into a command safely
var ErrInvalidName = errors.New("invalid name")

// Aggregator runs status checks and mutations for the applications in its
// registry. It holds no session; every call takes the Runner to use.
type Aggregator struct {
	// Concurrency is the maximum number of hosts swept at once
	Concurrency int

	// ControlTimeout bounds systemctl verbs and config tests
	ControlTimeout time.Duration

	// InstallTimeout bounds package installs
	InstallTimeout time.Duration

	apps *app.Registry
	log  *zap.Logger
	os   detect.OSType
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithLogger sets the logger mutations report to
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

// WithConcurrency sets the maximum number of hosts swept concurrently
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		a.Concurrency = n
	}
}

// WithControlTimeout sets the timeout for service verbs
func WithControlTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		a.ControlTimeout = d
	}
}

// WithInstallTimeout sets the timeout for package installs
func WithInstallTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.InstallTimeout = d
		}
	}
}

// WithOS skips OS detection on every target
func WithOS(os detect.OSType) Option {
	return func(a *Aggregator) {
		a.os = os
	}
}

// New creates an Aggregator over apps
func New(apps *app.Registry, opts ...Option) *Aggregator {
	a := &Aggregator{
		Concurrency:    10,
		ControlTimeout: transport.DefaultTimeout,
		InstallTimeout: transport.LongTimeout,
		apps:           apps,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Concurrency < 1 {
		a.Concurrency = 1
	}
	return a
}

// Applications returns the registry the aggregator works over
func (a *Aggregator) Applications() *app.Registry {
	return a.apps
}

func (a *Aggregator) definition(id string) (app.Definition, error) {
	def, ok := a.apps.Application(id)
	if !ok {
		if def, ok = a.apps.ApplicationForSoftware(id); !ok {
			return app.Definition{}, app.ServiceNotFound(id)
		}
	}
	return def, nil
}

func (a *Aggregator) detector(def app.Definition) *detect.Detector {
	opts := []detect.Option{detect.WithLogger(a.log)}
	if a.os != "" {
		opts = append(opts, detect.WithOS(a.os))
	}
	return detect.New(def, opts...)
}

func (a *Aggregator) osType(ctx context.Context, run transport.Runner) detect.OSType {
	if a.os != "" {
		return a.os
	}
	return detect.DetectOS(ctx, run)
}

// HostError wraps an error with the host it came from
type HostError struct {
	Host string
	Err  error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host %q: %v", e.Host, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}
