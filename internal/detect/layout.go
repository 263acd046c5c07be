package detect

// Layout lists where one software family keeps its pieces on each OS
// family. Every list is a probe order: earlier entries win.
type Layout struct {
	// Dirs are install directories whose presence proves installation
	Dirs map[OSType][]string

	// Packages are package names for dpkg/rpm queries and installs
	Packages map[OSType][]string

	// Binaries are command names looked up in PATH
	Binaries []string

	// Services are candidate unit names
	Services map[OSType][]string

	// Configs are candidate main configuration files
	Configs map[OSType][]string

	// Logs are default log files or globs
	Logs map[OSType][]string
}

func both(v ...string) map[OSType][]string {
	return map[OSType][]string{Debian: v, RHEL: v}
}

var layouts = map[string]Layout{
	"nginx": {
		Dirs:     both("/etc/nginx"),
		Packages: both("nginx"),
		Binaries: []string{"nginx"},
		Services: both("nginx"),
		Configs:  both("/etc/nginx/nginx.conf"),
		Logs:     both("/var/log/nginx/error.log", "/var/log/nginx/access.log"),
	},
	"apache": {
		Dirs:     map[OSType][]string{Debian: {"/etc/apache2"}, RHEL: {"/etc/httpd"}},
		Packages: map[OSType][]string{Debian: {"apache2"}, RHEL: {"httpd"}},
		Binaries: []string{"apache2", "httpd"},
		Services: map[OSType][]string{Debian: {"apache2"}, RHEL: {"httpd"}},
		Configs:  map[OSType][]string{Debian: {"/etc/apache2/apache2.conf"}, RHEL: {"/etc/httpd/conf/httpd.conf"}},
		Logs: map[OSType][]string{
			Debian: {"/var/log/apache2/error.log", "/var/log/apache2/access.log"},
			RHEL:   {"/var/log/httpd/error_log", "/var/log/httpd/access_log"},
		},
	},
	"mysql": {
		Dirs:     map[OSType][]string{Debian: {"/etc/mysql"}, RHEL: {"/etc/my.cnf.d"}},
		Packages: map[OSType][]string{Debian: {"mysql-server", "mariadb-server"}, RHEL: {"mysql-server", "mariadb-server"}},
		Binaries: []string{"mysql", "mariadb"},
		Services: map[OSType][]string{Debian: {"mysql", "mariadb"}, RHEL: {"mysqld", "mariadb"}},
		Configs:  map[OSType][]string{Debian: {"/etc/mysql/my.cnf"}, RHEL: {"/etc/my.cnf"}},
		Logs: map[OSType][]string{
			Debian: {"/var/log/mysql/error.log"},
			RHEL:   {"/var/log/mysqld.log", "/var/log/mariadb/mariadb.log"},
		},
	},
	"postgresql": {
		Dirs:     map[OSType][]string{Debian: {"/etc/postgresql"}, RHEL: {"/var/lib/pgsql"}},
		Packages: map[OSType][]string{Debian: {"postgresql"}, RHEL: {"postgresql-server"}},
		Binaries: []string{"psql"},
		Services: both("postgresql"),
		Configs: map[OSType][]string{
			Debian: {"/etc/postgresql/*/main/postgresql.conf"},
			RHEL:   {"/var/lib/pgsql/data/postgresql.conf"},
		},
		Logs: map[OSType][]string{
			Debian: {"/var/log/postgresql/postgresql-*-main.log"},
			RHEL:   {"/var/lib/pgsql/data/log/*.log"},
		},
	},
	"mongodb": {
		Dirs:     both("/var/lib/mongodb", "/var/lib/mongo"),
		Packages: both("mongodb-org", "mongodb-server"),
		Binaries: []string{"mongod"},
		Services: both("mongod", "mongodb"),
		Configs:  both("/etc/mongod.conf", "/etc/mongodb.conf"),
		Logs:     both("/var/log/mongodb/mongod.log"),
	},
	"redis": {
		Dirs:     both("/etc/redis"),
		Packages: map[OSType][]string{Debian: {"redis-server"}, RHEL: {"redis"}},
		Binaries: []string{"redis-server"},
		Services: map[OSType][]string{Debian: {"redis-server", "redis"}, RHEL: {"redis"}},
		Configs:  map[OSType][]string{Debian: {"/etc/redis/redis.conf"}, RHEL: {"/etc/redis/redis.conf", "/etc/redis.conf"}},
		Logs:     map[OSType][]string{Debian: {"/var/log/redis/redis-server.log"}, RHEL: {"/var/log/redis/redis.log"}},
	},
	"php": {
		Dirs:     map[OSType][]string{Debian: {"/etc/php"}, RHEL: {"/etc/php.d"}},
		Packages: map[OSType][]string{Debian: {"php-fpm", "php-cli"}, RHEL: {"php-fpm", "php-cli"}},
		Binaries: []string{"php"},
		Services: map[OSType][]string{Debian: {"php{version}-fpm"}, RHEL: {"php-fpm"}},
		Configs:  map[OSType][]string{Debian: {"/etc/php/{version}/fpm/php.ini", "/etc/php/{version}/cli/php.ini"}, RHEL: {"/etc/php.ini"}},
		Logs:     map[OSType][]string{Debian: {"/var/log/php{version}-fpm.log"}, RHEL: {"/var/log/php-fpm/error.log"}},
	},
	"nodejs": {
		Packages: both("nodejs"),
		Binaries: []string{"node", "nodejs"},
	},
	"python": {
		Packages: map[OSType][]string{Debian: {"python3"}, RHEL: {"python3"}},
		Binaries: []string{"python3", "python"},
	},
}

// LayoutFor returns the layout of a built-in application id. Ids outside the
// built-in catalog get an empty layout, which makes every probe fall back to
// the definition's own defaults.
func LayoutFor(appID string) Layout {
	return layouts[appID]
}

func (l Layout) pick(m map[OSType][]string, os OSType) []string {
	if v, ok := m[os]; ok {
		return v
	}
	// unknown family: try Debian first, then RHEL
	out := append([]string(nil), m[Debian]...)
	for _, v := range m[RHEL] {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// PackagesFor returns the package names to query or install on os
func (l Layout) PackagesFor(os OSType) []string { return l.pick(l.Packages, os) }

// ServicesFor returns the candidate unit names on os
func (l Layout) ServicesFor(os OSType) []string { return l.pick(l.Services, os) }

// ConfigsFor returns the candidate configuration files on os
func (l Layout) ConfigsFor(os OSType) []string { return l.pick(l.Configs, os) }

// LogsFor returns the default log paths on os
func (l Layout) LogsFor(os OSType) []string { return l.pick(l.Logs, os) }

// DirsFor returns the install directories on os
func (l Layout) DirsFor(os OSType) []string { return l.pick(l.Dirs, os) }

// PHPPoolDir returns the php-fpm pool directory for version on os
func PHPPoolDir(os OSType, version string) string {
	if os == RHEL || version == "" {
		return "/etc/php-fpm.d"
	}
	return "/etc/php/" + version + "/fpm/pool.d"
}

// PHPFPMBinary returns the php-fpm binary for version on os
func PHPFPMBinary(os OSType, version string) string {
	if os == RHEL || version == "" {
		return "php-fpm"
	}
	return "php-fpm" + version
}

// SiteDirs returns where a web server keeps its site definitions: the
// directory new sites are written to and, on layouts that have one, the
// directory of enabled symlinks.
func SiteDirs(appID string, os OSType) (available, enabled string) {
	switch appID {
	case "nginx":
		if os == RHEL {
			return "/etc/nginx/conf.d", ""
		}
		return "/etc/nginx/sites-available", "/etc/nginx/sites-enabled"
	case "apache":
		if os == RHEL {
			return "/etc/httpd/conf.d", ""
		}
		return "/etc/apache2/sites-available", "/etc/apache2/sites-enabled"
	}
	return "", ""
}
