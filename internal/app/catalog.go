package app

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

func section(p ProviderType, name, icon string, order int) SectionDefinition {
	return SectionDefinition{ID: string(p), Name: name, Icon: icon, Provider: p, Order: order}
}

// Builtin returns the built-in application catalog. Paths are Debian-family
// defaults; detectors resolve other layouts at call time.
func Builtin() []Definition {
	return []Definition{
		{
			ID:       "nginx",
			Name:     "Nginx",
			Category: CategoryWebServer,
			Sections: []SectionDefinition{
				section(ProviderService, "Service", "power", 0),
				section(ProviderSites, "Sites", "globe", 10),
				section(ProviderConfigFile, "Configuration File", "doc.text", 20),
				section(ProviderConfigValues, "Settings", "slider", 30),
				section(ProviderModules, "Modules", "puzzle", 40),
				section(ProviderSecurity, "Security", "lock", 50),
				section(ProviderLogs, "Logs", "list", 60),
			},
			Service: ServiceConfiguration{
				ServiceName:     "nginx",
				Binary:          "nginx",
				BinaryPath:      "/usr/sbin/nginx",
				ConfigPath:      "/etc/nginx/nginx.conf",
				LogPaths:        []string{"/var/log/nginx/error.log", "/var/log/nginx/access.log"},
				PidPath:         "/run/nginx.pid",
				ValidateCommand: "nginx -t",
				VersionCommand:  "nginx -v 2>&1",
				VersionPattern:  `version:\s*(\S+)`,
			},
			Capabilities: Controllable | Configurable | HasLogs | HasModules | HasSecurity | HasSites,
		},
		{
			ID:       "apache",
			Name:     "Apache HTTP Server",
			Category: CategoryWebServer,
			Sections: []SectionDefinition{
				section(ProviderService, "Service", "power", 0),
				section(ProviderSites, "Virtual Hosts", "globe", 10),
				section(ProviderConfigFile, "Configuration File", "doc.text", 20),
				section(ProviderConfigValues, "Settings", "slider", 30),
				section(ProviderModules, "Modules", "puzzle", 40),
				section(ProviderSecurity, "Security", "lock", 50),
				section(ProviderLogs, "Logs", "list", 60),
			},
			Service: ServiceConfiguration{
				ServiceName:     "apache2",
				Binary:          "apache2",
				BinaryPath:      "/usr/sbin/apache2",
				ConfigPath:      "/etc/apache2/apache2.conf",
				LogPaths:        []string{"/var/log/apache2/error.log", "/var/log/apache2/access.log"},
				PidPath:         "/run/apache2/apache2.pid",
				ValidateCommand: "apachectl configtest",
				VersionCommand:  "(apache2 -v || httpd -v) 2>/dev/null",
				VersionPattern:  `Server version:\s*(\S+)`,
			},
			Capabilities: Controllable | Configurable | HasLogs | HasModules | HasSecurity | HasSites,
		},
		{
			ID:       "mysql",
			Name:     "MySQL / MariaDB",
			Category: CategoryDatabase,
			Sections: []SectionDefinition{
				section(ProviderService, "Service", "power", 0),
				section(ProviderDatabases, "Databases", "cylinder", 10),
				section(ProviderUsers, "Users", "person", 20),
				section(ProviderConfigValues, "Variables", "slider", 30),
				section(ProviderConfigFile, "Configuration File", "doc.text", 40),
				section(ProviderSecurity, "Security", "lock", 50),
				section(ProviderLogs, "Logs", "list", 60),
			},
			Service: ServiceConfiguration{
				ServiceName:    "mysql",
				Binary:         "mysql",
				BinaryPath:     "/usr/bin/mysql",
				ConfigPath:     "/etc/mysql/my.cnf",
				LogPaths:       []string{"/var/log/mysql/error.log"},
				SocketPath:     "/run/mysqld/mysqld.sock",
				VersionCommand: "mysql --version",
				VersionPattern: `(?:Ver|Distrib)\s+(\d+(?:\.\d+)+)`,
			},
			Capabilities: Controllable | Configurable | HasLogs | HasDatabases | HasUsers | HasSecurity,
		},
		{
			ID:       "postgresql",
			Name:     "PostgreSQL",
			Category: CategoryDatabase,
			Sections: []SectionDefinition{
				section(ProviderService, "Service", "power", 0),
				section(ProviderDatabases, "Databases", "cylinder", 10),
				section(ProviderUsers, "Roles", "person", 20),
				section(ProviderExtensions, "Extensions", "puzzle", 30),
				section(ProviderConfigValues, "Settings", "slider", 40),
				section(ProviderConfigFile, "Configuration File", "doc.text", 50),
				section(ProviderLogs, "Logs", "list", 60),
			},
			Service: ServiceConfiguration{
				ServiceName:    "postgresql",
				Binary:         "psql",
				BinaryPath:     "/usr/bin/psql",
				ConfigPath:     "/etc/postgresql/main/postgresql.conf",
				LogPaths:       []string{"/var/log/postgresql/postgresql-*-main.log"},
				SocketPath:     "/var/run/postgresql",
				VersionCommand: "psql --version",
				VersionPattern: `(\d+(?:\.\d+)+)`,
			},
			Capabilities: Controllable | Configurable | HasLogs | HasDatabases | HasUsers | HasExtensions,
		},
		{
			ID:       "mongodb",
			Name:     "MongoDB",
			Category: CategoryDatabase,
			Sections: []SectionDefinition{
				section(ProviderService, "Service", "power", 0),
				section(ProviderDatabases, "Databases", "cylinder", 10),
				section(ProviderUsers, "Users", "person", 20),
				section(ProviderConfigFile, "Configuration File", "doc.text", 30),
				section(ProviderLogs, "Logs", "list", 40),
			},
			Service: ServiceConfiguration{
				ServiceName:    "mongod",
				Binary:         "mongod",
				BinaryPath:     "/usr/bin/mongod",
				ConfigPath:     "/etc/mongod.conf",
				LogPaths:       []string{"/var/log/mongodb/mongod.log"},
				VersionCommand: "mongod --version",
				VersionPattern: `db version v(\d+(?:\.\d+)+)`,
			},
			Capabilities: Controllable | Configurable | HasLogs | HasDatabases | HasUsers,
		},
		{
			ID:       "redis",
			Name:     "Redis",
			Category: CategoryCache,
			Sections: []SectionDefinition{
				section(ProviderService, "Service", "power", 0),
				section(ProviderDatabases, "Keyspace", "cylinder", 10),
				section(ProviderConfigValues, "Settings", "slider", 20),
				section(ProviderConfigFile, "Configuration File", "doc.text", 30),
				section(ProviderSecurity, "Security", "lock", 40),
				section(ProviderLogs, "Logs", "list", 50),
			},
			Service: ServiceConfiguration{
				ServiceName:    "redis-server",
				Binary:         "redis-server",
				BinaryPath:     "/usr/bin/redis-server",
				ConfigPath:     "/etc/redis/redis.conf",
				LogPaths:       []string{"/var/log/redis/redis-server.log"},
				SocketPath:     "/run/redis/redis-server.sock",
				VersionCommand: "redis-server --version",
				VersionPattern: `v=(\d+(?:\.\d+)+)`,
			},
			Capabilities: Controllable | Configurable | HasLogs | HasDatabases | HasSecurity,
		},
		{
			ID:       "php",
			Name:     "PHP",
			Category: CategoryRuntime,
			Sections: []SectionDefinition{
				section(ProviderService, "PHP-FPM Service", "power", 0),
				section(ProviderVersions, "Versions", "stack", 10),
				section(ProviderRuntime, "Interpreter", "terminal", 20),
				section(ProviderExtensions, "Extensions", "puzzle", 30),
				section(ProviderDisabledFunctions, "Disabled Functions", "nosign", 40),
				section(ProviderPools, "FPM Pools", "drop", 50),
				section(ProviderConfigValues, "php.ini", "slider", 60),
				section(ProviderConfigFile, "Configuration File", "doc.text", 70),
				section(ProviderLogs, "Logs", "list", 80),
			},
			Service: ServiceConfiguration{
				ServiceName:     "php-fpm",
				Binary:          "php",
				BinaryPath:      "/usr/bin/php",
				ConfigPath:      "/etc/php/php.ini",
				LogPaths:        []string{"/var/log/php*-fpm.log"},
				ValidateCommand: "php-fpm -t",
				VersionCommand:  "php -v",
				VersionPattern:  `PHP (\d+(?:\.\d+)+)`,
			},
			Capabilities: Controllable | Configurable | HasLogs | HasExtensions | MultiVersion | HasFPM,
			VersionDetection: &VersionDetectionStrategy{
				Kind:         DetectAlternatives,
				Name:         "php",
				VersionRegex: `php(\d+\.\d+)$`,
				Fallback: &VersionDetectionStrategy{
					Kind:         DetectBinaryGlob,
					Pattern:      "/usr/bin/php[0-9]*.[0-9]*",
					VersionRegex: `php(\d+\.\d+)$`,
				},
			},
			VersionSwitch: &VersionSwitchStrategy{
				Kind:   SwitchAlternatives,
				Name:   "php",
				Link:   "/usr/bin/php",
				Target: "/usr/bin/php{version}",
			},
		},
		{
			ID:       "nodejs",
			Name:     "Node.js",
			Category: CategoryRuntime,
			Sections: []SectionDefinition{
				section(ProviderRuntime, "Interpreter", "terminal", 0),
				section(ProviderVersions, "Versions", "stack", 10),
			},
			Service: ServiceConfiguration{
				Binary:         "node",
				BinaryPath:     "/usr/bin/node",
				VersionCommand: "node -v",
				VersionPattern: `v?(\d+(?:\.\d+)+)`,
			},
			Capabilities: MultiVersion,
			VersionDetection: &VersionDetectionStrategy{
				Kind:    DetectVersionManager,
				Manager: "nvm",
				Fallback: &VersionDetectionStrategy{
					Kind:         DetectBinaryGlob,
					Pattern:      "/usr/local/n/versions/node/*",
					VersionRegex: `(\d+\.\d+\.\d+)$`,
				},
			},
			VersionSwitch: &VersionSwitchStrategy{
				Kind:    SwitchVersionManager,
				Manager: "nvm",
				Link:    "/usr/local/bin/node",
				Target:  "/usr/local/n/versions/node/{version}/bin/node",
			},
		},
		{
			ID:       "python",
			Name:     "Python",
			Category: CategoryRuntime,
			Sections: []SectionDefinition{
				section(ProviderRuntime, "Interpreter", "terminal", 0),
				section(ProviderVersions, "Versions", "stack", 10),
			},
			Service: ServiceConfiguration{
				Binary:         "python3",
				BinaryPath:     "/usr/bin/python3",
				VersionCommand: "python3 -V 2>&1",
				VersionPattern: `Python (\d+(?:\.\d+)+)`,
			},
			Capabilities: MultiVersion,
			VersionDetection: &VersionDetectionStrategy{
				Kind:         DetectBinaryGlob,
				Pattern:      "/usr/bin/python3.[0-9]*",
				VersionRegex: `python(\d+\.\d+)$`,
			},
			VersionSwitch: &VersionSwitchStrategy{
				Kind:   SwitchAlternatives,
				Name:   "python3",
				Link:   "/usr/bin/python3",
				Target: "/usr/bin/python{version}",
			},
		},
	}
}

// DefaultRegistry returns a registry over the built-in catalog
func DefaultRegistry() *Registry {
	return MustNewRegistry(Builtin()...)
}

type catalogFile struct {
	Applications []Definition `yaml:"applications"`
}

// LoadDefinitions decodes additional definitions from YAML of the form
//
//	applications:
//	  - id: caddy
//	    name: Caddy
//	    category: web-server
//	    capabilities: [controllable, hasLogs]
//	    serviceConfig: {service: caddy, binary: caddy, config: /etc/caddy/Caddyfile}
//	    sections:
//	      - {id: service, name: Service, provider: service, order: 0}
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	for i, d := range f.Applications {
		if d.ID == "" {
			return nil, fmt.Errorf("catalog entry %d: missing id", i)
		}
		for _, s := range d.Sections {
			if s.Provider == "" {
				return nil, fmt.Errorf("catalog entry %q: section %q has no provider", d.ID, s.ID)
			}
		}
	}
	return f.Applications, nil
}

// LoadDefinitionFiles reads each path with LoadDefinitions
func LoadDefinitionFiles(paths ...string) ([]Definition, error) {
	var out []Definition
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		defs, err := LoadDefinitions(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, defs...)
	}
	return out, nil
}
