package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// DefaultLogLines is how many trailing lines are fetched per log file
const DefaultLogLines = 200

// maxGlobMatches caps how many files one log glob expands to
const maxGlobMatches = 3

// LogsProvider tails the application's log files. A file tail cannot read
// yields a placeholder entry; a missing file is skipped. Only tail's own
// diagnostic decides this, so log lines that mention a denial are kept.
type LogsProvider struct {
	Lines int
}

func (LogsProvider) Type() app.ProviderType { return app.ProviderLogs }

func (p LogsProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	lines := p.Lines
	if lines <= 0 {
		lines = DefaultLogLines
	}

	paths, err := expandLogPaths(ctx, t.Run, t.Service.LogPaths)
	if err != nil {
		return err
	}

	var logs []app.LogFile
	for _, path := range paths {
		res, err := t.Run.Run(ctx, fmt.Sprintf("tail -n %d %s 2>&1", lines, transport.Quote(path)), transport.Elevated())
		if err != nil {
			return err
		}
		f := transport.Classify(path, res, "tail")
		switch {
		case f.Missing:
			continue
		case f.Denied:
			logs = append(logs, app.LogFile{
				Path:        path,
				Placeholder: "Permission denied: " + path + " is not readable by the session user",
			})
		case !f.OK():
			logs = append(logs, app.LogFile{Path: path, Placeholder: f.Complaint})
		default:
			logs = append(logs, app.LogFile{Path: path, Lines: res.Lines()})
		}
	}
	return w.Update(ctx, func(s *app.State) { s.Logs = logs })
}

func hasGlob(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

// expandLogPaths resolves globs to the most recently modified matches and
// keeps literal paths as they are.
func expandLogPaths(ctx context.Context, run transport.Runner, paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		if !hasGlob(p) {
			out = append(out, p)
			continue
		}
		res, err := run.Run(ctx, "ls -1t "+p+" 2>/dev/null")
		if err != nil {
			return nil, err
		}
		n := 0
		for _, m := range res.Lines() {
			m = strings.TrimSpace(m)
			if !strings.HasPrefix(m, "/") {
				continue
			}
			out = append(out, m)
			if n++; n == maxGlobMatches {
				break
			}
		}
	}
	return out, nil
}
