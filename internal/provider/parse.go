package provider

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AzozzALFiras/velo/internal/transport"
)

// Table describes a delimited command output
type Table struct {
	Sep     string
	Columns int

	// Header is set only for queries known to print one
	Header bool
}

// Rows splits output into rows of exactly Columns fields. The first line is
// skipped when the table has a header; blank lines and lines with the wrong
// column count are dropped.
func (t Table) Rows(output string) [][]string {
	lines := transport.SplitLines(output)
	if t.Header && len(lines) > 0 {
		lines = lines[1:]
	}
	var rows [][]string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, t.Sep)
		if len(fields) != t.Columns {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		rows = append(rows, fields)
	}
	return rows
}

// KeyValues parses "key<sep>value" lines. Lines without sep and lines whose
// key starts with '#' are skipped. Later keys overwrite earlier ones.
func KeyValues(output, sep string) map[string]string {
	out := map[string]string{}
	for _, line := range transport.SplitLines(output) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, sep)
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// Pairs parses output that alternates key and value lines, as printed by
// `redis-cli CONFIG GET`. A trailing key without value is dropped.
func Pairs(output string) map[string]string {
	lines := transport.SplitLines(output)
	out := make(map[string]string, len(lines)/2)
	for i := 0; i+1 < len(lines); i += 2 {
		out[strings.TrimSpace(lines[i])] = strings.TrimSpace(lines[i+1])
	}
	return out
}

// atoi parses a leading integer, returning 0 when there is none
func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}

// HumanBytes formats n bytes with a binary unit
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "on", "yes", "true", "t":
		return true
	}
	return false
}
