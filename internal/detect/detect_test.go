package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport/transporttest"
)

func definition(t *testing.T, id string) app.Definition {
	t.Helper()
	d, ok := app.DefaultRegistry().Application(id)
	require.True(t, ok, id)
	return d
}

func TestDetectOSFromDirectories(t *testing.T) {
	tests := []struct {
		dir  string
		want OSType
	}{
		{"/etc/apache2", Debian},
		{"/etc/httpd", RHEL},
		{"/etc/yum.repos.d", RHEL},
	}
	for _, tt := range tests {
		run := transporttest.New()
		run.On("for d in '/etc/apache2'").Output(tt.dir + "\n")
		assert.Equal(t, tt.want, DetectOS(context.Background(), run), tt.dir)
		assert.False(t, run.Ran("os-release"), "os-release must not be read when a directory settles it")
	}
}

func TestDetectOSFromRelease(t *testing.T) {
	run := transporttest.New()
	run.On("for d in").Exit(1, "")
	run.On("cat '/etc/os-release'").Output("NAME=\"Rocky Linux\"\nID=\"rocky\"\nID_LIKE=\"rhel centos fedora\"\n")
	assert.Equal(t, RHEL, DetectOS(context.Background(), run))
}

func TestDetectOSDefaultsToDebian(t *testing.T) {
	run := transporttest.New()
	run.On("for d in").Exit(1, "")
	run.On("cat '/etc/os-release'").Output("cat: /etc/os-release: No such file or directory\n")
	assert.Equal(t, Debian, DetectOS(context.Background(), run))
}

func TestParseOSRelease(t *testing.T) {
	tests := []struct {
		in   string
		want OSType
		ok   bool
	}{
		{"ID=ubuntu\nID_LIKE=debian\n", Debian, true},
		{"ID=almalinux\n", RHEL, true},
		{"ID=linuxmint\nID_LIKE=\"ubuntu debian\"", Debian, true},
		{"ID=pop-custom\nID_LIKE=\"ubuntu\"", Debian, true},
		{"ID=alpine\n", Unknown, true},
		{"PRETTY_NAME=nothing\n", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseOSRelease(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestIsInstalledProbeOrder(t *testing.T) {
	t.Run("directory", func(t *testing.T) {
		run := transporttest.New()
		run.On("for d in '/etc/nginx'").Output("/etc/nginx\n")
		d := New(definition(t, "nginx"), WithOS(Debian), WithLogger(zaptest.NewLogger(t)))
		assert.True(t, d.IsInstalled(context.Background(), run))
		assert.False(t, run.Ran("dpkg"))
	})

	t.Run("package", func(t *testing.T) {
		run := transporttest.New()
		run.On("for d in").Exit(1, "")
		run.On("rpm -q 'httpd'").Output("")
		d := New(definition(t, "apache"), WithOS(RHEL))
		assert.True(t, d.IsInstalled(context.Background(), run))
		assert.False(t, run.Ran("command -v"))
	})

	t.Run("which", func(t *testing.T) {
		run := transporttest.New()
		run.On("for d in").Exit(1, "")
		run.On("dpkg -s").Exit(1, "")
		run.On("command -v 'redis-server'").Output("/usr/local/bin/redis-server\n")
		d := New(definition(t, "redis"), WithOS(Debian))
		assert.True(t, d.IsInstalled(context.Background(), run))
	})

	t.Run("absent", func(t *testing.T) {
		run := transporttest.New()
		run.On("for d in").Exit(1, "")
		d := New(definition(t, "mongodb"), WithOS(Debian))
		assert.False(t, d.IsInstalled(context.Background(), run))
	})
}

func TestServiceNamePrefersKnownUnits(t *testing.T) {
	run := transporttest.New()
	run.On("systemctl list-unit-files").Output("mariadb.service enabled enabled\n")
	d := New(definition(t, "mysql"), WithOS(Debian))
	assert.Equal(t, "mariadb", d.ServiceName(context.Background(), run))

	run = transporttest.New()
	d = New(definition(t, "mysql"), WithOS(RHEL))
	assert.Equal(t, "mysql", d.ServiceName(context.Background(), run), "falls back to the definition default")
}

func TestResolveApacheOnRHEL(t *testing.T) {
	run := transporttest.New()
	run.On("systemctl list-unit-files").Output("httpd.service enabled disabled\n")
	run.On("command -v 'apache2'").Exit(1, "")
	run.On("command -v 'httpd'").Output("/usr/sbin/httpd\n")
	run.On("ls -1d /etc/httpd/conf/httpd.conf").Output("/etc/httpd/conf/httpd.conf\n")
	run.On("ls -1d /var/log/httpd").Output("/var/log/httpd/error_log\n/var/log/httpd/access_log\n")

	cfg := New(definition(t, "apache"), WithOS(RHEL)).Resolve(context.Background(), run)
	assert.Equal(t, "httpd", cfg.ServiceName)
	assert.Equal(t, "httpd", cfg.Binary)
	assert.Equal(t, "/usr/sbin/httpd", cfg.BinaryPath)
	assert.Equal(t, "/etc/httpd/conf/httpd.conf", cfg.ConfigPath)
	assert.Equal(t, []string{"/var/log/httpd/error_log", "/var/log/httpd/access_log"}, cfg.LogPaths)

	def := definition(t, "apache")
	assert.Equal(t, "apache2", def.Service.ServiceName, "definition is not modified")
}

func TestResolvePHPUsesActiveVersion(t *testing.T) {
	run := transporttest.New()
	run.On("update-alternatives --query").Output("Value: /usr/bin/php8.2\n")
	run.On("systemctl list-unit-files").Output("php8.2-fpm.service enabled enabled\n")
	run.On("command -v 'php'").Output("/usr/bin/php\n")
	run.On("ls -1d /etc/php/8.2/fpm/php.ini").Output("/etc/php/8.2/fpm/php.ini\n/etc/php/8.2/cli/php.ini\n")

	cfg := New(definition(t, "php"), WithOS(Debian)).Resolve(context.Background(), run)
	assert.Equal(t, "php8.2-fpm", cfg.ServiceName)
	assert.Equal(t, "/etc/php/8.2/fpm/php.ini", cfg.ConfigPath)
	assert.Equal(t, "php-fpm8.2 -t", cfg.ValidateCommand)
	assert.Equal(t, []string{"/var/log/php*-fpm.log"}, cfg.LogPaths, "no log exists, definition defaults kept")
}

func TestPostgresConfigPath(t *testing.T) {
	run := transporttest.New()
	run.On("SHOW config_file").Output("/etc/postgresql/16/main/postgresql.conf\n")
	d := New(definition(t, "postgresql"), WithOS(Debian))
	assert.Equal(t, "/etc/postgresql/16/main/postgresql.conf", d.ConfigPath(context.Background(), run))

	run = transporttest.New()
	run.On("SHOW config_file").Exit(2, "psql: error: connection refused")
	run.On("ls -1d /etc/postgresql").Output("/etc/postgresql/9.6/main/postgresql.conf\n/etc/postgresql/16/main/postgresql.conf\n/etc/postgresql/14/main/postgresql.conf\n")
	d = New(definition(t, "postgresql"), WithOS(Debian))
	assert.Equal(t, "/etc/postgresql/16/main/postgresql.conf", d.ConfigPath(context.Background(), run))

	run = transporttest.New()
	d = New(definition(t, "postgresql"), WithOS(Debian))
	assert.Equal(t, "/etc/postgresql/main/postgresql.conf", d.ConfigPath(context.Background(), run))
}

func TestMostCommonRootPrefix(t *testing.T) {
	lines := []string{
		"    root /srv/sites/a/public;",
		"\troot /srv/sites/b;",
		"    root /var/www/html;",
		"    DocumentRoot \"/srv/sites/c\"",
		"    # root /commented/out;",
		"    root $document_root;",
	}
	assert.Equal(t, "/srv/sites", MostCommonRootPrefix(lines))
	assert.Empty(t, MostCommonRootPrefix(nil))
	assert.Equal(t, "/a/b", MostCommonRootPrefix([]string{"root /c/d/x;", "root /a/b/y;"}))
}

func TestDocumentRootChain(t *testing.T) {
	ctx := context.Background()

	run := transporttest.New()
	run.On("grep -rhE").Output("    root /srv/www/one;\n    root /srv/www/two;\n")
	assert.Equal(t, "/srv/www", DocumentRoot(ctx, run, "nginx", Debian))

	run = transporttest.New()
	run.On("grep -rhE").Exit(1, "")
	run.On("for d in '/usr/share/nginx/html'").Output("/usr/share/nginx/html\n")
	assert.Equal(t, "/usr/share/nginx/html", DocumentRoot(ctx, run, "nginx", RHEL))

	run = transporttest.New()
	run.On("grep -rhE").Exit(1, "")
	run.On("for d in").Exit(1, "")
	run.On("ls -1d /www/wwwroot").Output("/home/alice/public_html\n")
	assert.Equal(t, "/home", DocumentRoot(ctx, run, "apache", Debian))

	run = transporttest.New()
	assert.Equal(t, DefaultDocumentRoot, DocumentRoot(ctx, run, "apache", Debian))
}

func TestLayoutUnknownFamilyMergesBoth(t *testing.T) {
	l := LayoutFor("apache")
	assert.Equal(t, []string{"apache2", "httpd"}, l.ServicesFor(Unknown))
	assert.Equal(t, []string{"httpd"}, l.ServicesFor(RHEL))
	assert.Empty(t, LayoutFor("caddy").ServicesFor(Debian))
}
