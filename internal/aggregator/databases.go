package aggregator

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/provider"
	"github.com/AzozzALFiras/velo/internal/transport"
)

var databaseName = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

func databaseCommand(engine, name string, create bool) (string, bool) {
	switch engine {
	case "mysql":
		if create {
			return provider.MySQLQuery("CREATE DATABASE `"+name+"` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", false), true
		}
		return provider.MySQLQuery("DROP DATABASE `"+name+"`", false), true
	case "postgresql":
		if create {
			return provider.PSQLQuery(`CREATE DATABASE "` + name + `"`), true
		}
		return provider.PSQLQuery(`DROP DATABASE "` + name + `"`), true
	case "mongodb":
		if create {
			// databases exist once they hold a collection
			return provider.MongoEval(`db.getSiblingDB("` + name + `").createCollection("_init")`), true
		}
		return provider.MongoEval(`db.getSiblingDB("` + name + `").dropDatabase()`), true
	}
	return "", false
}

// CreateDatabase creates database name on engine. It reports false when the
// engine refuses, e.g. because the database already exists.
func (a *Aggregator) CreateDatabase(ctx context.Context, run transport.Runner, engine, name string) (bool, error) {
	return a.database(ctx, run, engine, name, true)
}

// DeleteDatabase drops database name on engine
func (a *Aggregator) DeleteDatabase(ctx context.Context, run transport.Runner, engine, name string) (bool, error) {
	return a.database(ctx, run, engine, name, false)
}

func (a *Aggregator) database(ctx context.Context, run transport.Runner, engine, name string, create bool) (bool, error) {
	op := "drop database"
	if create {
		op = "create database"
	}
	if run == nil {
		return false, app.ErrSessionNotAvailable
	}
	def, err := a.definition(engine)
	if err != nil {
		return false, err
	}
	if !databaseName.MatchString(name) {
		return false, &app.ServiceError{Service: def.ID, Op: op, Err: fmt.Errorf("%w: %q", ErrInvalidName, name)}
	}
	cmd, ok := databaseCommand(def.ID, name, create)
	if !ok {
		return false, &app.ServiceError{Service: def.ID, Op: op, Err: app.ErrNotSupported}
	}

	res, err := run.Run(ctx, cmd, transport.Elevated())
	if err != nil {
		return false, &app.ServiceError{Service: def.ID, Op: op, Err: err}
	}
	log := a.log.With(zap.String("engine", def.ID), zap.String("database", name))
	if !res.OK() {
		log.Warn(op+" failed", zap.Int("exit", res.ExitCode), zap.String("output", res.Trimmed()))
		return false, nil
	}
	log.Info(op)
	return true, nil
}
