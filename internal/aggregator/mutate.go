package aggregator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// MutateResult reports each step of a safe configuration change. The file
// is left as written when validation fails; Previous holds the content it
// replaced so a caller can restore it with another save.
type MutateResult struct {
	Path            string `json:"path"`
	Written         bool   `json:"written"`
	Valid           bool   `json:"valid"`
	Reloaded        bool   `json:"reloaded"`
	ValidatorOutput string `json:"validatorOutput,omitempty"`
	Previous        string `json:"-"`
}

// Applied reports whether the change is live
func (r MutateResult) Applied() bool {
	return r.Written && r.Valid && r.Reloaded
}

// SaveConfig writes content to the main configuration file of application
// id, runs its validator and reloads the service only if validation passed.
func (a *Aggregator) SaveConfig(ctx context.Context, run transport.Runner, id, content string) (MutateResult, error) {
	if run == nil {
		return MutateResult{}, app.ErrSessionNotAvailable
	}
	def, err := a.definition(id)
	if err != nil {
		return MutateResult{}, err
	}
	cfg := a.detector(def).Resolve(ctx, run)
	if cfg.ConfigPath == "" {
		return MutateResult{}, &app.ServiceError{Service: def.ID, Op: "save config", Err: app.ErrNotSupported}
	}
	return a.safeWrite(ctx, run, cfg, cfg.ConfigPath, content)
}

// safeWrite is write, then validate, then reload
func (a *Aggregator) safeWrite(ctx context.Context, run transport.Runner, cfg app.ServiceConfiguration, path, content string) (MutateResult, error) {
	out := MutateResult{Path: path}
	log := a.log.With(zap.String("path", path), zap.String("service", cfg.ServiceName))

	prev, err := transport.ReadFile(ctx, run, path, true)
	if err != nil {
		return out, fmt.Errorf("reading %s: %w", path, err)
	}
	if prev.OK() {
		out.Previous = prev.Content
	}

	out.Written, err = transport.WriteFile(ctx, run, path, content, true)
	if err != nil {
		return out, fmt.Errorf("writing %s: %w", path, err)
	}
	if !out.Written {
		log.Warn("config write failed")
		return out, nil
	}

	return a.apply(ctx, run, cfg, out)
}

// apply validates a written change and reloads the service only when the
// validator accepts it
func (a *Aggregator) apply(ctx context.Context, run transport.Runner, cfg app.ServiceConfiguration, out MutateResult) (MutateResult, error) {
	log := a.log.With(zap.String("path", out.Path), zap.String("service", cfg.ServiceName))
	out.Valid = true
	if cfg.ValidateCommand != "" {
		res, err := run.Run(ctx, cfg.ValidateCommand+" 2>&1", transport.Elevated(), transport.WithTimeout(a.ControlTimeout))
		if err != nil {
			return out, fmt.Errorf("validating %s: %w", out.Path, err)
		}
		out.Valid = res.OK()
		out.ValidatorOutput = res.Trimmed()
	}
	if !out.Valid {
		log.Warn("change rejected by validator, not reloading", zap.String("output", out.ValidatorOutput))
		return out, nil
	}

	if cfg.ServiceName == "" {
		return out, nil
	}
	res, err := a.systemctl(ctx, run, Reload, cfg.ServiceName)
	if err != nil {
		return out, err
	}
	out.Reloaded = res.OK()
	if out.Reloaded {
		log.Info("change applied")
	} else {
		log.Warn("reload failed", zap.String("output", res.Trimmed()))
	}
	return out, nil
}
