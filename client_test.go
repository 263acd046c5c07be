package velo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/detect"
	"github.com/AzozzALFiras/velo/internal/transport/transporttest"
)

func newTestClient(t *testing.T, run Runner, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithOS(detect.Debian)}, opts...)
	c, err := New(run, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewWithoutRunner(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrSessionNotAvailable) {
		t.Fatalf("New(nil) error = %v, want ErrSessionNotAvailable", err)
	}
}

func TestClientApplication(t *testing.T) {
	c := newTestClient(t, transporttest.New())

	tests := []struct {
		name string
		want string
	}{
		{"nginx", "nginx"},
		{"php8.1-fpm", "php"},
		{"apache2", "apache"},
		{"mongod.service", "mongodb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := c.Application(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if def.ID != tt.want {
				t.Errorf("Application(%q) = %q, want %q", tt.name, def.ID, tt.want)
			}
		})
	}

	_, err := c.Application("ngnix")
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("error = %v, want ErrServiceNotFound", err)
	}
	if !strings.Contains(err.Error(), "did you mean nginx") {
		t.Errorf("error %q carries no suggestion", err)
	}
}

func TestClientWithApplications(t *testing.T) {
	caddy := Definition{
		ID:       "caddy",
		Name:     "Caddy",
		Category: app.CategoryWebServer,
		Sections: []app.SectionDefinition{{ID: "service", Name: "Service", Provider: app.ProviderService}},
		Service:  app.ServiceConfiguration{ServiceName: "caddy", Binary: "caddy", ConfigPath: "/etc/caddy/Caddyfile"},
	}
	c := newTestClient(t, transporttest.New(), WithApplications(caddy))

	def, err := c.Application("caddy")
	if err != nil {
		t.Fatal(err)
	}
	if def.Service.ConfigPath != "/etc/caddy/Caddyfile" {
		t.Errorf("ConfigPath = %q", def.Service.ConfigPath)
	}
	if got := len(c.Applications()); got != len(app.Builtin())+1 {
		t.Errorf("got %d applications, want %d", got, len(app.Builtin())+1)
	}
}

func TestClientConfig(t *testing.T) {
	run := transporttest.New()
	run.On("cat '/etc/nginx/nginx.conf'").Output("worker_processes 4;\n")
	c := newTestClient(t, run)

	cfg, err := c.Config(context.Background(), "nginx")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Exists || cfg.Content != "worker_processes 4;\n" || cfg.Path != "/etc/nginx/nginx.conf" {
		t.Errorf("Config = %+v", cfg)
	}

	st, err := c.State(context.Background(), "nginx")
	if err != nil {
		t.Fatal(err)
	}
	if !st.IsLoaded(app.ProviderConfigFile) {
		t.Error("configFile section not marked loaded")
	}
}

func TestClientLoadSectionUnknown(t *testing.T) {
	c := newTestClient(t, transporttest.New())

	_, err := c.LoadSection(context.Background(), "nginx", "pools")
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("error = %v, want ErrNotSupported", err)
	}
	var se *SectionError
	if !errors.As(err, &se) || se.App != "nginx" {
		t.Errorf("error = %#v, want SectionError for nginx", err)
	}
}

func TestClientLoadSectionRecordsFailure(t *testing.T) {
	run := transporttest.New()
	run.On("cat '/etc/nginx/nginx.conf'").Exit(1, "cat: /etc/nginx/nginx.conf: Permission denied\n")
	c := newTestClient(t, run)

	st, err := c.LoadSection(context.Background(), "nginx", "configFile")
	if !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("error = %v, want ErrLoadFailed", err)
	}
	if _, ok := st.Failures[app.ProviderConfigFile]; !ok {
		t.Error("failure not recorded in state")
	}
}

func TestClientControlResolvesApplicationUnit(t *testing.T) {
	run := transporttest.New()
	run.On("list-unit-files").Output("php8.3-fpm.service enabled enabled\n")
	run.On("update-alternatives --query 'php'").Output("Value: /usr/bin/php8.3\n")
	run.On("php-fpm8.3 -t").Output("test is successful\n")
	run.On("systemctl reload 'php8.3-fpm'").Output("")
	c := newTestClient(t, run)

	res, err := c.Control(context.Background(), "php", Reload)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Service != "php8.3-fpm" {
		t.Errorf("Control = %+v", res)
	}
}

func TestClientClose(t *testing.T) {
	c, err := New(transporttest.New())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.State(context.Background(), "redis"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.State(context.Background(), "redis"); !errors.Is(err, ErrStateClosed) {
		t.Errorf("State after Close error = %v, want ErrStateClosed", err)
	}
}

func TestGetVersion(t *testing.T) {
	info := GetVersion()
	if info.Version != Version {
		t.Errorf("Version = %q", info.Version)
	}
	if len(info.Applications) != 9 {
		t.Errorf("got %d built-in applications, want 9", len(info.Applications))
	}
}
