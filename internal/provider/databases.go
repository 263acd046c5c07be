package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// mysqlSystemSchemas are hidden from the databases section
var mysqlSystemSchemas = map[string]bool{
	"information_schema": true,
	"performance_schema": true,
	"mysql":              true,
	"sys":                true,
}

// The header row of this query is part of the output and is skipped by
// position.
const mysqlDatabasesQuery = `SELECT s.schema_name AS 'Database',
  ROUND(COALESCE(SUM(t.data_length + t.index_length), 0) / 1024 / 1024, 2) AS 'Size (MB)',
  COUNT(t.table_name) AS 'Tables'
FROM information_schema.schemata s
LEFT JOIN information_schema.tables t ON t.table_schema = s.schema_name
GROUP BY s.schema_name ORDER BY s.schema_name`

const postgresDatabasesQuery = `SELECT d.datname, pg_size_pretty(pg_database_size(d.datname)), pg_get_userbyid(d.datdba), pg_encoding_to_char(d.encoding)
FROM pg_database d WHERE NOT d.datistemplate ORDER BY d.datname`

const mongoDatabasesScript = `JSON.stringify(db.adminCommand({listDatabases: 1}).databases)`

// DatabasesProvider lists the databases of a database engine. Each engine
// has its own query and output format.
type DatabasesProvider struct{}

func (DatabasesProvider) Type() app.ProviderType { return app.ProviderDatabases }

func (DatabasesProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	var (
		cmd   string
		parse func(string) ([]app.DatabaseInfo, error)
	)
	switch t.App.ID {
	case "mysql":
		cmd = MySQLQuery(mysqlDatabasesQuery, true)
		parse = func(out string) ([]app.DatabaseInfo, error) { return ParseMySQLDatabases(out), nil }
	case "postgresql":
		cmd = PSQLQuery(postgresDatabasesQuery)
		parse = func(out string) ([]app.DatabaseInfo, error) { return ParsePostgresDatabases(out), nil }
	case "mongodb":
		cmd = MongoEval(mongoDatabasesScript)
		parse = ParseMongoDatabases
	case "redis":
		cmd = RedisCLI("INFO", "keyspace")
		parse = func(out string) ([]app.DatabaseInfo, error) { return ParseRedisKeyspace(out), nil }
	default:
		return app.NotSupported(app.ProviderDatabases)
	}

	res, err := t.Run.Run(ctx, cmd, transport.Elevated())
	if err != nil {
		return err
	}
	if res.ExitCode == 127 {
		return app.LoadFailed("%s client not found", t.App.ID)
	}
	if !res.OK() {
		return app.LoadFailed("listing %s databases: exit %d: %s", t.App.ID, res.ExitCode, res.Trimmed())
	}
	dbs, err := parse(res.Output)
	if err != nil {
		return app.LoadFailed("parsing %s databases: %v", t.App.ID, err)
	}
	return w.Update(ctx, func(s *app.State) { s.Databases = dbs })
}

// ParseMySQLDatabases parses tab-separated name, size in MB and table count
// with a header row. System schemas are dropped.
func ParseMySQLDatabases(output string) []app.DatabaseInfo {
	var out []app.DatabaseInfo
	for _, row := range (Table{Sep: "\t", Columns: 3, Header: true}).Rows(output) {
		if mysqlSystemSchemas[row[0]] {
			continue
		}
		tables, err := strconv.Atoi(row[2])
		if err != nil {
			continue
		}
		out = append(out, app.DatabaseInfo{
			Name:       row[0],
			Size:       row[1] + " MB",
			TableCount: tables,
		})
	}
	return out
}

// ParsePostgresDatabases parses pipe-separated name, size, owner, encoding
func ParsePostgresDatabases(output string) []app.DatabaseInfo {
	var out []app.DatabaseInfo
	for _, row := range (Table{Sep: "|", Columns: 4}).Rows(output) {
		out = append(out, app.DatabaseInfo{
			Name:     row[0],
			Size:     row[1],
			Owner:    row[2],
			Encoding: row[3],
		})
	}
	return out
}

type mongoDatabase struct {
	Name       string  `json:"name"`
	SizeOnDisk float64 `json:"sizeOnDisk"`
	Empty      bool    `json:"empty"`
}

// ParseMongoDatabases decodes the JSON array printed by the listDatabases
// script. Shell noise before the array is ignored; empty output is an empty
// list.
func ParseMongoDatabases(output string) ([]app.DatabaseInfo, error) {
	start := strings.Index(output, "[")
	if start < 0 {
		return nil, nil
	}
	var raw []mongoDatabase
	if err := json.Unmarshal([]byte(strings.TrimSpace(output[start:])), &raw); err != nil {
		return nil, fmt.Errorf("decoding listDatabases: %w", err)
	}
	out := make([]app.DatabaseInfo, 0, len(raw))
	for _, d := range raw {
		out = append(out, app.DatabaseInfo{Name: d.Name, Size: HumanBytes(int64(d.SizeOnDisk))})
	}
	return out, nil
}

// ParseRedisKeyspace parses the colon-delimited "db0:keys=12,expires=0"
// lines of INFO keyspace. TableCount carries the key count.
func ParseRedisKeyspace(output string) []app.DatabaseInfo {
	var out []app.DatabaseInfo
	for _, line := range transport.SplitLines(output) {
		name, stats, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || !strings.HasPrefix(name, "db") {
			continue
		}
		kv := map[string]string{}
		for _, part := range strings.Split(stats, ",") {
			if k, v, ok := strings.Cut(part, "="); ok {
				kv[k] = v
			}
		}
		keys, err := strconv.Atoi(kv["keys"])
		if err != nil {
			continue
		}
		out = append(out, app.DatabaseInfo{
			Name:       name,
			Size:       fmt.Sprintf("%d keys", keys),
			TableCount: keys,
		})
	}
	return out
}
