package provider

import (
	"strings"

	"github.com/AzozzALFiras/velo/internal/transport"
)

// MySQLQuery runs q in batch mode: tab-separated, one row per line. The
// header row is printed only when header is set, and then stderr is
// discarded so that the header is reliably the first line.
func MySQLQuery(q string, header bool) string {
	if header {
		return "mysql --batch -e " + transport.Quote(q) + " 2>/dev/null"
	}
	return "mysql --batch --skip-column-names -e " + transport.Quote(q) + " 2>&1"
}

// PSQLQuery runs q as the postgres superuser with unaligned, tuples-only,
// pipe-separated output.
func PSQLQuery(q string) string {
	return "cd /tmp && sudo -u postgres psql -X -A -t -F '|' -c " + transport.Quote(q) + " 2>&1"
}

// MongoEval evaluates js with mongosh, or the legacy mongo shell
func MongoEval(js string) string {
	q := transport.Quote(js)
	return "if command -v mongosh >/dev/null 2>&1; then mongosh --quiet --eval " + q +
		"; else mongo --quiet --eval " + q + "; fi"
}

// RedisCLI runs redis-cli with args, each quoted
func RedisCLI(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = transport.Quote(a)
	}
	return "redis-cli " + strings.Join(quoted, " ") + " 2>&1"
}
