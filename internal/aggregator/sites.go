package aggregator

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/detect"
	"github.com/AzozzALFiras/velo/internal/transport"
)

var (
	domainName = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)+$`)

	// sitePath is an absolute path that can be written into a server block
	// or VirtualHost unquoted
	sitePath = regexp.MustCompile(`^/[A-Za-z0-9._+@/-]*$`)
)

// SiteSpec describes a virtual host to create
type SiteSpec struct {
	Domain  string   `json:"domain"`
	Aliases []string `json:"aliases,omitempty"`

	// Root defaults to <document root>/<domain>
	Root string `json:"root,omitempty"`

	// PHPSocket is the FPM socket requests for .php files go to; no PHP
	// handling is configured when empty
	PHPSocket string `json:"phpSocket,omitempty"`
}

func (s SiteSpec) names() string {
	return strings.Join(append([]string{s.Domain}, s.Aliases...), " ")
}

// RenderNginxSite renders a server block for spec
func RenderNginxSite(spec SiteSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "server {\n    listen 80;\n    listen [::]:80;\n    server_name %s;\n    root %s;\n", spec.names(), spec.Root)
	b.WriteString("    index index.html index.htm index.php;\n\n")
	b.WriteString("    location / {\n        try_files $uri $uri/ =404;\n    }\n")
	if spec.PHPSocket != "" {
		fmt.Fprintf(&b, "\n    location ~ \\.php$ {\n        include fastcgi_params;\n        fastcgi_param SCRIPT_FILENAME $document_root$fastcgi_script_name;\n        fastcgi_pass unix:%s;\n    }\n", spec.PHPSocket)
	}
	fmt.Fprintf(&b, "\n    access_log /var/log/nginx/%s.access.log;\n    error_log /var/log/nginx/%s.error.log;\n}\n", spec.Domain, spec.Domain)
	return b.String()
}

// RenderApacheSite renders a VirtualHost for spec
func RenderApacheSite(spec SiteSpec, os detect.OSType) string {
	logDir := "${APACHE_LOG_DIR}"
	if os == detect.RHEL {
		logDir = "/var/log/httpd"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<VirtualHost *:80>\n    ServerName %s\n", spec.Domain)
	if len(spec.Aliases) > 0 {
		fmt.Fprintf(&b, "    ServerAlias %s\n", strings.Join(spec.Aliases, " "))
	}
	fmt.Fprintf(&b, "    DocumentRoot %s\n\n    <Directory %s>\n        AllowOverride All\n        Require all granted\n    </Directory>\n", spec.Root, spec.Root)
	if spec.PHPSocket != "" {
		fmt.Fprintf(&b, "\n    <FilesMatch \\.php$>\n        SetHandler \"proxy:unix:%s|fcgi://localhost\"\n    </FilesMatch>\n", spec.PHPSocket)
	}
	fmt.Fprintf(&b, "\n    ErrorLog %s/%s.error.log\n    CustomLog %s/%s.access.log combined\n</VirtualHost>\n", logDir, spec.Domain, logDir, spec.Domain)
	return b.String()
}

func siteFile(available, domain string) string {
	return path.Join(available, domain+".conf")
}

// CreateSite writes a virtual host for spec on webServer, creates its
// document root, enables it and reloads the server if the configuration
// still validates. A rejected configuration is left in place and reported
// through ValidatorOutput. An existing site file is never replaced: the
// result has Written == false and nothing is run after the check.
func (a *Aggregator) CreateSite(ctx context.Context, run transport.Runner, webServer string, spec SiteSpec) (MutateResult, error) {
	if run == nil {
		return MutateResult{}, app.ErrSessionNotAvailable
	}
	def, err := a.definition(webServer)
	if err != nil {
		return MutateResult{}, err
	}
	op := &app.ServiceError{Service: def.ID, Op: "create site"}
	if !domainName.MatchString(spec.Domain) {
		op.Err = fmt.Errorf("%w: %q", ErrInvalidName, spec.Domain)
		return MutateResult{}, op
	}
	for _, alias := range spec.Aliases {
		if !domainName.MatchString(alias) {
			op.Err = fmt.Errorf("%w: %q", ErrInvalidName, alias)
			return MutateResult{}, op
		}
	}
	if spec.PHPSocket != "" && !sitePath.MatchString(spec.PHPSocket) {
		op.Err = fmt.Errorf("%w: php socket %q", ErrInvalidName, spec.PHPSocket)
		return MutateResult{}, op
	}
	if spec.Root != "" && !sitePath.MatchString(spec.Root) {
		op.Err = fmt.Errorf("%w: document root %q", ErrInvalidName, spec.Root)
		return MutateResult{}, op
	}

	os := a.osType(ctx, run)
	available, enabled := detect.SiteDirs(def.ID, os)
	if available == "" {
		op.Err = app.ErrNotSupported
		return MutateResult{}, op
	}
	if spec.Root == "" {
		spec.Root = path.Join(detect.DocumentRoot(ctx, run, def.ID, os), spec.Domain)
		if !sitePath.MatchString(spec.Root) {
			op.Err = fmt.Errorf("%w: document root %q", ErrInvalidName, spec.Root)
			return MutateResult{}, op
		}
	}

	file := siteFile(available, spec.Domain)
	out := MutateResult{Path: file}
	res, err := run.Run(ctx, "test -e "+transport.Quote(file), transport.Elevated(), transport.WithTimeout(transport.ShortTimeout))
	if err != nil {
		op.Err = err
		return out, op
	}
	if res.OK() {
		a.log.Warn("site already exists", zap.String("site", spec.Domain), zap.String("path", file))
		return out, nil
	}

	var content string
	if def.ID == "apache" {
		content = RenderApacheSite(spec, os)
	} else {
		content = RenderNginxSite(spec)
	}

	res, err = run.Run(ctx, "mkdir -p "+transport.Quote(spec.Root), transport.Elevated())
	if err != nil {
		op.Err = err
		return MutateResult{}, op
	}
	if !res.OK() {
		a.log.Warn("creating document root failed", zap.String("root", spec.Root), zap.String("output", res.Trimmed()))
	}

	out.Written, err = transport.WriteFile(ctx, run, file, content, true)
	if err != nil {
		op.Err = err
		return out, op
	}
	if !out.Written {
		return out, nil
	}
	if enabled != "" {
		link := path.Join(enabled, path.Base(file))
		res, err := run.Run(ctx, "ln -sfn "+transport.Quote(file)+" "+transport.Quote(link), transport.Elevated())
		if err != nil {
			op.Err = err
			return out, op
		}
		if !res.OK() {
			a.log.Warn("enabling site failed", zap.String("site", spec.Domain), zap.String("output", res.Trimmed()))
		}
	}

	return a.validateAndReload(ctx, run, def, out)
}

// DeleteSite disables and removes the virtual host for domain
func (a *Aggregator) DeleteSite(ctx context.Context, run transport.Runner, webServer, domain string) (MutateResult, error) {
	if run == nil {
		return MutateResult{}, app.ErrSessionNotAvailable
	}
	def, err := a.definition(webServer)
	if err != nil {
		return MutateResult{}, err
	}
	op := &app.ServiceError{Service: def.ID, Op: "delete site"}
	if !domainName.MatchString(domain) {
		op.Err = fmt.Errorf("%w: %q", ErrInvalidName, domain)
		return MutateResult{}, op
	}
	os := a.osType(ctx, run)
	available, enabled := detect.SiteDirs(def.ID, os)
	if available == "" {
		op.Err = app.ErrNotSupported
		return MutateResult{}, op
	}

	file := siteFile(available, domain)
	targets := []string{transport.Quote(file)}
	if enabled != "" {
		targets = append(targets, transport.Quote(path.Join(enabled, path.Base(file))))
	}
	res, err := run.Run(ctx, "rm -f "+strings.Join(targets, " "), transport.Elevated())
	if err != nil {
		op.Err = err
		return MutateResult{}, op
	}
	out := MutateResult{Path: file, Written: res.OK()}
	if !out.Written {
		return out, nil
	}
	return a.validateAndReload(ctx, run, def, out)
}

func (a *Aggregator) validateAndReload(ctx context.Context, run transport.Runner, def app.Definition, out MutateResult) (MutateResult, error) {
	return a.apply(ctx, run, a.detector(def).Resolve(ctx, run), out)
}
