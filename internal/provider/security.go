package provider

import (
	"context"
	"strings"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// SecurityProvider assesses security-relevant settings
type SecurityProvider struct{}

func (SecurityProvider) Type() app.ProviderType { return app.ProviderSecurity }

func (SecurityProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	var (
		rules []app.SecurityRule
		err   error
	)
	switch t.App.ID {
	case "nginx":
		rules, err = nginxSecurity(ctx, t)
	case "apache":
		rules, err = apacheSecurity(ctx, t)
	case "mysql":
		rules, err = mysqlSecurity(ctx, t.Run)
	case "redis":
		rules, err = redisSecurity(ctx, t.Run)
	default:
		return app.NotSupported(app.ProviderSecurity)
	}
	if err != nil {
		return err
	}
	return w.Update(ctx, func(s *app.State) { s.SecurityRules = rules })
}

func nginxSecurity(ctx context.Context, t *Target) ([]app.SecurityRule, error) {
	f, err := transport.ReadFile(ctx, t.Run, t.Service.ConfigPath, true)
	if err != nil {
		return nil, err
	}
	if !f.OK() {
		return nil, nil
	}
	return NginxSecurityRules(ParseNginxDirectives(f.Content), f.Content), nil
}

// NginxSecurityRules assesses parsed nginx directives. content is the raw
// configuration, used for directives that may repeat.
func NginxSecurityRules(d map[string]string, content string) []app.SecurityRule {
	tokens := valueOr(d["server_tokens"], "on")
	protocols := d["ssl_protocols"]
	autoindex := valueOr(d["autoindex"], "off")
	frame := strings.Contains(content, "X-Frame-Options")

	return []app.SecurityRule{
		{
			ID: "server_tokens", Name: "Hide version", Value: tokens,
			Secure:         tokens == "off",
			Recommendation: "Set server_tokens off;",
		},
		{
			ID: "ssl_protocols", Name: "Modern TLS only", Value: valueOr(protocols, "default"),
			Secure:         !legacyTLS(protocols),
			Recommendation: "Use ssl_protocols TLSv1.2 TLSv1.3;",
		},
		{
			ID: "autoindex", Name: "Directory listing disabled", Value: autoindex,
			Secure:         autoindex == "off",
			Recommendation: "Set autoindex off;",
		},
		{
			ID: "x_frame_options", Name: "Clickjacking protection", Value: boolWord(frame, "present", "missing"),
			Secure:         frame,
			Recommendation: `Add add_header X-Frame-Options "SAMEORIGIN";`,
		},
	}
}

func apacheSecurity(ctx context.Context, t *Target) ([]app.SecurityRule, error) {
	dir := t.Service.ConfigPath
	if i := strings.LastIndex(dir, "/"); i > 0 {
		dir = dir[:i]
	}
	res, err := t.Run.Run(ctx, "grep -rhiE '^[[:space:]]*(ServerTokens|ServerSignature|TraceEnable)[[:space:]]' "+transport.Quote(dir)+" 2>/dev/null",
		transport.Elevated())
	if err != nil {
		return nil, err
	}
	return ApacheSecurityRules(ParseApacheDirectives(res.Output)), nil
}

// ApacheSecurityRules assesses parsed Apache directives. Missing directives
// take Apache's compiled-in defaults.
func ApacheSecurityRules(d map[string]string) []app.SecurityRule {
	tokens := valueOr(d["ServerTokens"], "Full")
	signature := valueOr(d["ServerSignature"], "On")
	trace := valueOr(d["TraceEnable"], "On")
	return []app.SecurityRule{
		{
			ID: "server_tokens", Name: "Minimal Server header", Value: tokens,
			Secure:         strings.EqualFold(tokens, "Prod") || strings.EqualFold(tokens, "ProductOnly"),
			Recommendation: "Set ServerTokens Prod",
		},
		{
			ID: "server_signature", Name: "No server signature", Value: signature,
			Secure:         strings.EqualFold(signature, "Off"),
			Recommendation: "Set ServerSignature Off",
		},
		{
			ID: "trace_enable", Name: "TRACE disabled", Value: trace,
			Secure:         strings.EqualFold(trace, "Off"),
			Recommendation: "Set TraceEnable Off",
		},
	}
}

const mysqlSecurityQuery = `SELECT 'anonymous_users', COUNT(*) FROM mysql.user WHERE User = ''
UNION ALL SELECT 'remote_root', COUNT(*) FROM mysql.user WHERE User = 'root' AND Host NOT IN ('localhost', '127.0.0.1', '::1')
UNION ALL SELECT 'test_database', COUNT(*) FROM information_schema.schemata WHERE schema_name = 'test'
UNION ALL SELECT 'local_infile', @@global.local_infile`

func mysqlSecurity(ctx context.Context, run transport.Runner) ([]app.SecurityRule, error) {
	res, err := run.Run(ctx, MySQLQuery(mysqlSecurityQuery, false), transport.Elevated())
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, app.LoadFailed("mysql: %s", res.Trimmed())
	}
	return MySQLSecurityRules(res.Output), nil
}

// MySQLSecurityRules assesses the tab-separated check/value rows
func MySQLSecurityRules(output string) []app.SecurityRule {
	vals := map[string]string{}
	for _, row := range (Table{Sep: "\t", Columns: 2}).Rows(output) {
		vals[row[0]] = row[1]
	}
	var rules []app.SecurityRule
	add := func(id, name, recommendation string, secure func(string) bool) {
		v, ok := vals[id]
		if !ok {
			return
		}
		rules = append(rules, app.SecurityRule{ID: id, Name: name, Value: v, Secure: secure(v), Recommendation: recommendation})
	}
	zero := func(v string) bool { return atoi(v) == 0 && v != "" }
	add("anonymous_users", "No anonymous accounts", "DROP USER ''@'localhost';", zero)
	add("remote_root", "Root restricted to localhost", "Remove root accounts with remote hosts", zero)
	add("test_database", "Test database removed", "DROP DATABASE test;", zero)
	add("local_infile", "LOCAL INFILE disabled", "Set local_infile = 0", func(v string) bool { return !isTruthy(v) })
	return rules
}

func redisSecurity(ctx context.Context, run transport.Runner) ([]app.SecurityRule, error) {
	res, err := run.Run(ctx, RedisCLI("CONFIG", "GET", "*"))
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(res.Trimmed(), "NOAUTH") {
		// an auth-protected server refuses CONFIG; that itself is the answer
		return []app.SecurityRule{{
			ID: "requirepass", Name: "Password required", Value: "set", Secure: true,
		}}, nil
	}
	if !res.OK() {
		return nil, app.LoadFailed("redis-cli: %s", res.Trimmed())
	}
	return RedisSecurityRules(Pairs(res.Output)), nil
}

// RedisSecurityRules assesses CONFIG GET values
func RedisSecurityRules(cfg map[string]string) []app.SecurityRule {
	pass := cfg["requirepass"]
	protected := valueOr(cfg["protected-mode"], "yes")
	bind := cfg["bind"]
	localOnly := bind != ""
	for _, addr := range strings.Fields(bind) {
		if addr == "*" || addr == "::" || addr == "0.0.0.0" {
			localOnly = false
		}
	}
	return []app.SecurityRule{
		{
			ID: "requirepass", Name: "Password required", Value: boolWord(pass != "", "set", "empty"),
			Secure:         pass != "",
			Recommendation: "Set requirepass or configure ACL users",
		},
		{
			ID: "protected_mode", Name: "Protected mode", Value: protected,
			Secure:         protected == "yes",
			Recommendation: "Set protected-mode yes",
		},
		{
			ID: "bind", Name: "Bound to local interfaces", Value: valueOr(bind, "all"),
			Secure:         localOnly,
			Recommendation: "Set bind 127.0.0.1 ::1",
		},
	}
}

func legacyTLS(protocols string) bool {
	for _, p := range strings.Fields(protocols) {
		switch p {
		case "SSLv2", "SSLv3", "TLSv1", "TLSv1.1":
			return true
		}
	}
	return false
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func boolWord(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
