package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport"
)

const mysqlUsersQuery = `SELECT User, Host, Super_priv FROM mysql.user ORDER BY User, Host`

const postgresUsersQuery = `SELECT rolname, rolsuper, rolcanlogin, rolcreatedb, rolcreaterole FROM pg_roles WHERE rolname NOT LIKE 'pg\_%' ORDER BY rolname`

const mongoUsersScript = `JSON.stringify(db.getSiblingDB("admin").system.users.find({}, {user: 1, db: 1, roles: 1}).toArray())`

// UsersProvider lists database accounts
type UsersProvider struct{}

func (UsersProvider) Type() app.ProviderType { return app.ProviderUsers }

func (UsersProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	var (
		cmd   string
		parse func(string) ([]app.UserInfo, error)
	)
	switch t.App.ID {
	case "mysql":
		cmd = MySQLQuery(mysqlUsersQuery, false)
		parse = func(out string) ([]app.UserInfo, error) { return ParseMySQLUsers(out), nil }
	case "postgresql":
		cmd = PSQLQuery(postgresUsersQuery)
		parse = func(out string) ([]app.UserInfo, error) { return ParsePostgresRoles(out), nil }
	case "mongodb":
		cmd = MongoEval(mongoUsersScript)
		parse = ParseMongoUsers
	default:
		return app.NotSupported(app.ProviderUsers)
	}

	res, err := t.Run.Run(ctx, cmd, transport.Elevated())
	if err != nil {
		return err
	}
	if !res.OK() {
		return app.LoadFailed("listing %s users: exit %d: %s", t.App.ID, res.ExitCode, res.Trimmed())
	}
	users, err := parse(res.Output)
	if err != nil {
		return app.LoadFailed("parsing %s users: %v", t.App.ID, err)
	}
	return w.Update(ctx, func(s *app.State) { s.Users = users })
}

// ParseMySQLUsers parses tab-separated user, host, Super_priv rows
func ParseMySQLUsers(output string) []app.UserInfo {
	var out []app.UserInfo
	for _, row := range (Table{Sep: "\t", Columns: 3}).Rows(output) {
		out = append(out, app.UserInfo{
			Name:      row[0],
			Host:      row[1],
			Superuser: row[2] == "Y",
		})
	}
	return out
}

// ParsePostgresRoles parses pipe-separated pg_roles rows
func ParsePostgresRoles(output string) []app.UserInfo {
	var out []app.UserInfo
	for _, row := range (Table{Sep: "|", Columns: 5}).Rows(output) {
		u := app.UserInfo{Name: row[0], Superuser: row[1] == "t"}
		for i, role := range []string{"", "superuser", "login", "createdb", "createrole"} {
			if i > 0 && row[i] == "t" {
				u.Roles = append(u.Roles, role)
			}
		}
		out = append(out, u)
	}
	return out
}

type mongoUser struct {
	User  string `json:"user"`
	DB    string `json:"db"`
	Roles []struct {
		Role string `json:"role"`
		DB   string `json:"db"`
	} `json:"roles"`
}

// ParseMongoUsers decodes the JSON array of admin.system.users documents
func ParseMongoUsers(output string) ([]app.UserInfo, error) {
	start := strings.Index(output, "[")
	if start < 0 {
		return nil, nil
	}
	var raw []mongoUser
	if err := json.Unmarshal([]byte(strings.TrimSpace(output[start:])), &raw); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	out := make([]app.UserInfo, 0, len(raw))
	for _, u := range raw {
		info := app.UserInfo{Name: u.User, Host: u.DB}
		for _, r := range u.Roles {
			info.Roles = append(info.Roles, r.Role+"@"+r.DB)
			if r.Role == "root" || r.Role == "userAdminAnyDatabase" {
				info.Superuser = true
			}
		}
		out = append(out, info)
	}
	return out, nil
}
