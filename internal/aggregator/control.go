package aggregator

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// Verb is a systemctl action
type Verb string

const (
	Start   Verb = "start"
	Stop    Verb = "stop"
	Restart Verb = "restart"
	Reload  Verb = "reload"
)

// Valid reports whether v is one of the known verbs
func (v Verb) Valid() bool {
	switch v {
	case Start, Stop, Restart, Reload:
		return true
	}
	return false
}

var unitName = regexp.MustCompile(`^[A-Za-z0-9@._-]+$`)

var phpFPMUnit = regexp.MustCompile(`^php(\d+\.\d+)-fpm$`)

// configTests are the per-application handlers: a verb that (re)loads
// configuration first runs the application's own config test.
var configTests = map[string]func(service string) string{
	"nginx":  func(string) string { return "nginx -t" },
	"apache": func(string) string { return "(apachectl configtest || apache2ctl configtest || httpd -t)" },
	"php": func(service string) string {
		if m := phpFPMUnit.FindStringSubmatch(service); m != nil {
			return "php-fpm" + m[1] + " -t"
		}
		return "php-fpm -t"
	},
}

// ControlResult reports a service verb. Output carries the config test or
// systemctl text when OK is false.
type ControlResult struct {
	Service string `json:"service"`
	Verb    Verb   `json:"verb"`
	OK      bool   `json:"ok"`
	Output  string `json:"output,omitempty"`
}

// Control runs verb on the systemd unit service. Applications with a
// handler have their configuration tested before start, restart and reload;
// a failing test skips the verb. Everything else goes straight to
// `systemctl <verb>`. OK is false for expected failures; the error is
// reserved for the transport.
func (a *Aggregator) Control(ctx context.Context, run transport.Runner, service string, verb Verb) (ControlResult, error) {
	out := ControlResult{Service: service, Verb: verb}
	if run == nil {
		return out, app.ErrSessionNotAvailable
	}
	if !verb.Valid() {
		return out, &app.ServiceError{Service: service, Op: string(verb), Err: fmt.Errorf("unknown verb")}
	}
	if !unitName.MatchString(service) {
		return out, &app.ServiceError{Service: service, Op: string(verb), Err: ErrInvalidName}
	}

	log := a.log.With(zap.String("service", service), zap.String("verb", string(verb)))
	if verb != Stop {
		if def, ok := a.apps.ApplicationForSoftware(service); ok {
			if test, ok := configTests[def.ID]; ok {
				res, err := run.Run(ctx, test(service)+" 2>&1", transport.Elevated(), transport.WithTimeout(a.ControlTimeout))
				if err != nil {
					return out, &app.ServiceError{Service: service, Op: string(verb), Err: err}
				}
				if !res.OK() {
					log.Warn("config test failed", zap.Int("exit", res.ExitCode))
					out.Output = res.Trimmed()
					return out, nil
				}
			}
		}
	}

	res, err := a.systemctl(ctx, run, verb, service)
	if err != nil {
		return out, err
	}
	out.OK = res.OK()
	if !out.OK {
		out.Output = res.Trimmed()
		log.Warn("service verb failed", zap.Int("exit", res.ExitCode), zap.String("output", out.Output))
	} else {
		log.Info("service verb done", zap.Duration("elapsed", res.ExecutionTime))
	}
	return out, nil
}

func (a *Aggregator) systemctl(ctx context.Context, run transport.Runner, verb Verb, service string) (transport.CommandResult, error) {
	res, err := run.Run(ctx, fmt.Sprintf("systemctl %s %s 2>&1", verb, transport.Quote(service)),
		transport.Elevated(), transport.WithTimeout(a.ControlTimeout))
	if err != nil {
		return res, &app.ServiceError{Service: service, Op: string(verb), Err: err}
	}
	return res, nil
}

// StartService starts service and reports whether it succeeded
func (a *Aggregator) StartService(ctx context.Context, run transport.Runner, service string) (bool, error) {
	res, err := a.Control(ctx, run, service, Start)
	return res.OK, err
}

// StopService stops service
func (a *Aggregator) StopService(ctx context.Context, run transport.Runner, service string) (bool, error) {
	res, err := a.Control(ctx, run, service, Stop)
	return res.OK, err
}

// RestartService restarts service
func (a *Aggregator) RestartService(ctx context.Context, run transport.Runner, service string) (bool, error) {
	res, err := a.Control(ctx, run, service, Restart)
	return res.OK, err
}

// ReloadService reloads service
func (a *Aggregator) ReloadService(ctx context.Context, run transport.Runner, service string) (bool, error) {
	res, err := a.Control(ctx, run, service, Reload)
	return res.OK, err
}

// ServiceFor resolves the unit name of application id on the target
func (a *Aggregator) ServiceFor(ctx context.Context, run transport.Runner, id string) (string, error) {
	def, err := a.definition(id)
	if err != nil {
		return "", err
	}
	name := a.detector(def).ServiceName(ctx, run)
	if name == "" {
		return "", &app.ServiceError{Service: id, Op: "resolve", Err: app.ErrNotSupported}
	}
	return name, nil
}
