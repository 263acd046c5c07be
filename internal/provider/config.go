package provider

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// ConfigFileProvider reads the raw main configuration file
type ConfigFileProvider struct{}

func (ConfigFileProvider) Type() app.ProviderType { return app.ProviderConfigFile }

func (ConfigFileProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	path := t.Service.ConfigPath
	if path == "" {
		return app.LoadFailed("%s declares no configuration file", t.App.ID)
	}
	f, err := transport.ReadFile(ctx, t.Run, path, true)
	if err != nil {
		return err
	}
	switch {
	case f.Denied:
		return app.LoadFailed("reading %s: permission denied", path)
	case !f.OK() && !f.Missing:
		return app.LoadFailed("reading %s: %s", path, f.Complaint)
	}
	file := &app.ConfigFile{Path: path}
	if f.OK() {
		file.Content = f.Content
		file.Exists = true
	}
	return w.Update(ctx, func(s *app.State) { s.Config = file })
}

// directive describes one configuration key the settings section shows
type directive struct {
	Key         string
	DisplayName string
	Description string
	Type        app.ValueType
	Section     string
}

var directives = map[string][]directive{
	"nginx": {
		{"worker_processes", "Worker Processes", "Number of worker processes", app.ValueNumber, "main"},
		{"worker_connections", "Worker Connections", "Connections per worker", app.ValueNumber, "events"},
		{"keepalive_timeout", "Keepalive Timeout", "Idle keep-alive connection timeout", app.ValueTime, "http"},
		{"client_max_body_size", "Max Body Size", "Largest accepted request body", app.ValueSize, "http"},
		{"sendfile", "Sendfile", "Use sendfile(2) for static files", app.ValueBoolean, "http"},
		{"gzip", "Gzip", "Compress responses", app.ValueBoolean, "http"},
		{"server_tokens", "Server Tokens", "Advertise version in headers", app.ValueBoolean, "http"},
	},
	"apache": {
		{"Timeout", "Timeout", "Seconds to wait for I/O", app.ValueTime, "main"},
		{"KeepAlive", "Keep Alive", "Allow persistent connections", app.ValueBoolean, "main"},
		{"MaxKeepAliveRequests", "Max Keep-Alive Requests", "Requests per persistent connection", app.ValueNumber, "main"},
		{"KeepAliveTimeout", "Keep-Alive Timeout", "Seconds to wait for the next request", app.ValueTime, "main"},
		{"ServerTokens", "Server Tokens", "Server header detail", app.ValueString, "main"},
	},
	"php": {
		{"memory_limit", "Memory Limit", "Maximum memory per script", app.ValueSize, "PHP"},
		{"max_execution_time", "Max Execution Time", "Seconds a script may run", app.ValueTime, "PHP"},
		{"upload_max_filesize", "Upload Max Filesize", "Largest uploaded file", app.ValueSize, "PHP"},
		{"post_max_size", "Post Max Size", "Largest POST body", app.ValueSize, "PHP"},
		{"max_input_vars", "Max Input Vars", "Input variables accepted per request", app.ValueNumber, "PHP"},
		{"display_errors", "Display Errors", "Print errors to output", app.ValueBoolean, "PHP"},
		{"date.timezone", "Timezone", "Default timezone", app.ValueString, "Date"},
	},
	"mysql": {
		{"max_connections", "Max Connections", "Simultaneous client connections", app.ValueNumber, "mysqld"},
		{"innodb_buffer_pool_size", "InnoDB Buffer Pool", "Memory for InnoDB data and indexes", app.ValueSize, "mysqld"},
		{"max_allowed_packet", "Max Allowed Packet", "Largest packet or generated string", app.ValueSize, "mysqld"},
		{"wait_timeout", "Wait Timeout", "Seconds before an idle connection is closed", app.ValueTime, "mysqld"},
		{"slow_query_log", "Slow Query Log", "Log slow queries", app.ValueBoolean, "mysqld"},
		{"long_query_time", "Long Query Time", "Slow query threshold in seconds", app.ValueTime, "mysqld"},
	},
	"postgresql": {
		{"max_connections", "Max Connections", "Simultaneous client connections", app.ValueNumber, "Connections"},
		{"shared_buffers", "Shared Buffers", "Memory for shared buffers", app.ValueSize, "Resource Usage"},
		{"work_mem", "Work Memory", "Memory per sort or hash operation", app.ValueSize, "Resource Usage"},
		{"effective_cache_size", "Effective Cache Size", "Planner's assumption about cache size", app.ValueSize, "Query Tuning"},
		{"listen_addresses", "Listen Addresses", "Addresses the server listens on", app.ValueString, "Connections"},
	},
	"redis": {
		{"maxmemory", "Max Memory", "Memory limit for data", app.ValueSize, "memory"},
		{"maxmemory-policy", "Eviction Policy", "Policy when maxmemory is reached", app.ValueString, "memory"},
		{"appendonly", "Append Only", "Persist with the append-only file", app.ValueBoolean, "persistence"},
		{"timeout", "Client Timeout", "Seconds before an idle client is closed", app.ValueTime, "network"},
		{"databases", "Databases", "Number of logical databases", app.ValueNumber, "general"},
	},
}

func directiveKeys(appID string) []string {
	ds := directives[appID]
	keys := make([]string, len(ds))
	for i, d := range ds {
		keys[i] = d.Key
	}
	return keys
}

// toValues keeps the known directives present in raw, in declaration order
func toValues(appID string, raw map[string]string) []app.ConfigValue {
	var out []app.ConfigValue
	for _, d := range directives[appID] {
		v, ok := raw[d.Key]
		if !ok {
			continue
		}
		out = append(out, app.ConfigValue{
			Key:         d.Key,
			Value:       v,
			DisplayName: d.DisplayName,
			Description: d.Description,
			Type:        d.Type,
			Section:     d.Section,
		})
	}
	return out
}

// ConfigValuesProvider extracts well-known settings, normalized across the
// syntaxes of nginx directives, Apache directives, php.ini, SQL server
// variables and redis CONFIG GET.
type ConfigValuesProvider struct{}

func (ConfigValuesProvider) Type() app.ProviderType { return app.ProviderConfigValues }

func (ConfigValuesProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	var (
		raw map[string]string
		err error
	)
	switch t.App.ID {
	case "nginx", "apache", "php":
		raw, err = readDirectives(ctx, t)
	case "mysql":
		raw, err = mysqlVariables(ctx, t.Run, directiveKeys("mysql"))
	case "postgresql":
		raw, err = postgresSettings(ctx, t.Run, directiveKeys("postgresql"))
	case "redis":
		raw, err = redisConfig(ctx, t.Run, "*")
	default:
		return app.NotSupported(app.ProviderConfigValues)
	}
	if err != nil {
		return err
	}
	values := toValues(t.App.ID, raw)
	return w.Update(ctx, func(s *app.State) { s.ConfigValues = values })
}

func readDirectives(ctx context.Context, t *Target) (map[string]string, error) {
	f, err := transport.ReadFile(ctx, t.Run, t.Service.ConfigPath, true)
	if err != nil {
		return nil, err
	}
	if !f.OK() {
		return map[string]string{}, nil
	}
	out := f.Content
	switch t.App.ID {
	case "php":
		return ParseINI(out), nil
	case "apache":
		return ParseApacheDirectives(out), nil
	default:
		return ParseNginxDirectives(out), nil
	}
}

var nginxDirective = regexp.MustCompile(`^\s*([a-z_]+)\s+([^;#]+);`)

// ParseNginxDirectives returns the first occurrence of each simple
// "name value;" directive. Comments are ignored.
func ParseNginxDirectives(content string) map[string]string {
	out := map[string]string{}
	for _, line := range transport.SplitLines(content) {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		m := nginxDirective.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if _, seen := out[m[1]]; !seen {
			out[m[1]] = strings.TrimSpace(m[2])
		}
	}
	return out
}

var apacheDirective = regexp.MustCompile(`^\s*([A-Za-z]+)\s+(.+?)\s*$`)

// ParseApacheDirectives returns the first occurrence of each top-level
// directive, skipping anything inside <...> blocks.
func ParseApacheDirectives(content string) map[string]string {
	out := map[string]string{}
	depth := 0
	for _, line := range transport.SplitLines(content) {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			continue
		case strings.HasPrefix(trimmed, "</"):
			if depth > 0 {
				depth--
			}
			continue
		case strings.HasPrefix(trimmed, "<"):
			depth++
			continue
		}
		if depth > 0 {
			continue
		}
		if m := apacheDirective.FindStringSubmatch(trimmed); m != nil {
			if _, seen := out[m[1]]; !seen {
				out[m[1]] = strings.Trim(m[2], `"`)
			}
		}
	}
	return out
}

// ParseINI parses php.ini style "key = value" lines. Comment lines start
// with ';' or '#'; [section] headers are ignored.
func ParseINI(content string) map[string]string {
	out := map[string]string{}
	for _, line := range transport.SplitLines(content) {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == ';' || line[0] == '#' || line[0] == '[' {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return out
}

func mysqlVariables(ctx context.Context, run transport.Runner, names []string) (map[string]string, error) {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	sort.Strings(quoted)
	q := fmt.Sprintf("SHOW GLOBAL VARIABLES WHERE Variable_name IN (%s)", strings.Join(quoted, ","))
	res, err := run.Run(ctx, MySQLQuery(q, false), transport.Elevated())
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, app.LoadFailed("mysql: %s", res.Trimmed())
	}
	out := map[string]string{}
	for _, row := range (Table{Sep: "\t", Columns: 2}).Rows(res.Output) {
		out[row[0]] = row[1]
	}
	return out, nil
}

func postgresSettings(ctx context.Context, run transport.Runner, names []string) (map[string]string, error) {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	q := fmt.Sprintf("SELECT name, setting, COALESCE(unit, '') FROM pg_settings WHERE name IN (%s) ORDER BY name", strings.Join(quoted, ","))
	res, err := run.Run(ctx, PSQLQuery(q), transport.Elevated())
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, app.LoadFailed("psql: %s", res.Trimmed())
	}
	out := map[string]string{}
	for _, row := range (Table{Sep: "|", Columns: 3}).Rows(res.Output) {
		out[row[0]] = pgSettingWithUnit(row[1], row[2])
	}
	return out, nil
}

// pgSettingWithUnit renders pg_settings values the way SHOW does for the
// common block units: 16384 with unit 8kB becomes 128MB.
func pgSettingWithUnit(setting, unit string) string {
	n := atoi(setting)
	if n == 0 || fmt.Sprint(n) != setting {
		return setting + unit
	}
	var bytes int64
	switch unit {
	case "8kB":
		bytes = int64(n) * 8 * 1024
	case "kB":
		bytes = int64(n) * 1024
	case "MB":
		bytes = int64(n) * 1024 * 1024
	default:
		return setting + unit
	}
	switch {
	case bytes%(1<<30) == 0:
		return fmt.Sprintf("%dGB", bytes>>30)
	case bytes%(1<<20) == 0:
		return fmt.Sprintf("%dMB", bytes>>20)
	default:
		return fmt.Sprintf("%dkB", bytes>>10)
	}
}

func redisConfig(ctx context.Context, run transport.Runner, pattern string) (map[string]string, error) {
	res, err := run.Run(ctx, RedisCLI("CONFIG", "GET", pattern))
	if err != nil {
		return nil, err
	}
	if !res.OK() || strings.HasPrefix(res.Trimmed(), "NOAUTH") {
		return nil, app.LoadFailed("redis-cli: %s", res.Trimmed())
	}
	return Pairs(res.Output), nil
}
