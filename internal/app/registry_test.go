package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationCaseInsensitive(t *testing.T) {
	r := DefaultRegistry()
	for _, d := range r.All() {
		upper, ok := r.Application(strings.ToUpper(d.ID))
		require.True(t, ok, d.ID)
		lower, ok := r.Application(strings.ToLower(d.ID))
		require.True(t, ok, d.ID)
		assert.Equal(t, lower.ID, upper.ID)
		assert.Equal(t, d.ID, lower.ID)
	}
}

func TestApplicationForSoftware(t *testing.T) {
	r := DefaultRegistry()
	tests := map[string]string{
		"httpd":              "apache",
		"apache2":            "apache",
		"mariadb":            "mysql",
		"postgres":           "postgresql",
		"mongo":              "mongodb",
		"mongod":             "mongodb",
		"redis-server":       "redis",
		"nginx":              "nginx",
		"NGINX.service":      "nginx",
		"php8.2-fpm":         "php",
		"postgresql-16":      "postgresql",
		"python3.11":         "python",
		"Node.js":            "nodejs",
		"MySQL / MariaDB":    "mysql",
		"  Redis  ":          "redis",
		"apache http server": "apache",
	}
	for name, want := range tests {
		d, ok := r.ApplicationForSoftware(name)
		if assert.True(t, ok, name) {
			assert.Equal(t, want, d.ID, name)
		}
	}

	_, ok := r.ApplicationForSoftware("memcached")
	assert.False(t, ok)
	_, ok = r.ApplicationForSoftware("")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(Definition{ID: "nginx"}, Definition{ID: "NGINX"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = NewRegistry(Definition{Name: "nameless"})
	require.Error(t, err)
}

func TestRegistryCustomAliases(t *testing.T) {
	r, err := NewRegistry(Definition{ID: "Caddy", Aliases: []string{"caddy2"}})
	require.NoError(t, err)

	d, ok := r.ApplicationForSoftware("caddy2")
	require.True(t, ok)
	assert.Equal(t, "caddy", d.ID)

	_, ok = r.ApplicationForSoftware("httpd")
	assert.False(t, ok, "builtin aliases only apply to registered ids")
}

func TestSuggest(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"nginx"}, r.Suggest("ngnix", 1))
	assert.Contains(t, r.Suggest("postgress", 3), "postgresql")
	assert.Empty(t, r.Suggest("zzzzzzzzzz", 3))
}

func TestBuiltinSectionsHaveProviders(t *testing.T) {
	for _, d := range Builtin() {
		require.NotEmpty(t, d.Sections, d.ID)
		seen := map[string]bool{}
		for _, s := range d.Sections {
			assert.NotEmpty(t, s.Provider, "%s/%s", d.ID, s.ID)
			assert.False(t, seen[s.ID], "duplicate section %s/%s", d.ID, s.ID)
			seen[s.ID] = true
		}
		if d.Has(MultiVersion) {
			assert.NotNil(t, d.VersionDetection, d.ID)
			assert.NotNil(t, d.VersionSwitch, d.ID)
		}
	}
}

func TestOrderedSections(t *testing.T) {
	d := Definition{Sections: []SectionDefinition{
		{ID: "c", Order: 30}, {ID: "a", Order: 10}, {ID: "b", Order: 10},
	}}
	var ids []string
	for _, s := range d.OrderedSections() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, "c", d.Sections[0].ID, "original order untouched")
}

func TestStatusKey(t *testing.T) {
	assert.Equal(t, "NGINX", Definition{ID: "nginx"}.StatusKey())
	assert.Equal(t, "REDIS_SERVER", Definition{ID: "redis-server"}.StatusKey())
}

func TestLoadDefinitions(t *testing.T) {
	src := `
applications:
  - id: caddy
    name: Caddy
    category: web-server
    aliases: [caddy2]
    capabilities: [controllable, hasLogs, configurable]
    serviceConfig:
      service: caddy
      binary: caddy
      config: /etc/caddy/Caddyfile
      logs: [/var/log/caddy/access.log]
      validate: caddy validate --config /etc/caddy/Caddyfile
    sections:
      - {id: service, name: Service, provider: service, order: 0}
      - {id: logs, name: Logs, provider: logs, order: 10}
`
	defs, err := LoadDefinitions(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	d := defs[0]
	assert.Equal(t, "caddy", d.ID)
	assert.Equal(t, CategoryWebServer, d.Category)
	assert.True(t, d.Has(Controllable|HasLogs|Configurable))
	assert.False(t, d.Has(HasDatabases))
	assert.Equal(t, "caddy validate --config /etc/caddy/Caddyfile", d.Service.ValidateCommand)
	assert.Equal(t, []string{"/var/log/caddy/access.log"}, d.Service.LogPaths)
	assert.Equal(t, ProviderLogs, d.Sections[1].Provider)

	r, err := NewRegistry(append(Builtin(), defs...)...)
	require.NoError(t, err)
	_, ok := r.Application("CADDY")
	assert.True(t, ok)
}

func TestLoadDefinitionsErrors(t *testing.T) {
	_, err := LoadDefinitions(strings.NewReader("applications:\n  - name: x\n"))
	assert.Error(t, err)

	_, err = LoadDefinitions(strings.NewReader("applications:\n  - id: x\n    capabilities: [flying]\n"))
	assert.Error(t, err)

	_, err = LoadDefinitions(strings.NewReader("applications:\n  - id: x\n    sections:\n      - {id: s}\n"))
	assert.Error(t, err)

	defs, err := LoadDefinitions(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, defs)
}
