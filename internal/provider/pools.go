package provider

import (
	"context"
	"regexp"
	"strings"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/detect"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// fileMarker separates concatenated files in one command's output
const fileMarker = "### "

var fpmPoolProcess = regexp.MustCompile(`php-fpm: pool (\S+)`)

// PoolsProvider reads PHP-FPM pool definitions and which pools have live
// worker processes
type PoolsProvider struct{}

func (PoolsProvider) Type() app.ProviderType { return app.ProviderPools }

func (PoolsProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	if t.App.ID != "php" {
		return app.NotSupported(app.ProviderPools)
	}
	dir := detect.PHPPoolDir(t.OS, t.Version)
	res, err := t.Run.Run(ctx, catFiles(dir+"/*.conf"), transport.Elevated())
	if err != nil {
		return err
	}
	pools := ParsePools(res.Output, t.Version)

	ps, err := t.Run.Run(ctx, "ps -eo args= 2>/dev/null | grep 'php-fpm: pool' | grep -v grep")
	if err != nil {
		return err
	}
	active := map[string]bool{}
	for _, m := range fpmPoolProcess.FindAllStringSubmatch(ps.Output, -1) {
		active[m[1]] = true
	}
	for i := range pools {
		pools[i].Active = active[pools[i].Name]
	}
	return w.Update(ctx, func(s *app.State) { s.Pools = pools })
}

// catFiles prints every file matching glob, each preceded by a marker line
// carrying its path
func catFiles(glob string) string {
	return `for f in ` + glob + `; do [ -f "$f" ] || continue; echo "` + fileMarker + `$f"; cat "$f"; echo; done 2>/dev/null`
}

// splitFiles splits catFiles output into path → content
func splitFiles(output string) ([]string, map[string]string) {
	var (
		order   []string
		files   = map[string]string{}
		current string
		b       strings.Builder
	)
	flush := func() {
		if current != "" {
			files[current] = b.String()
		}
		b.Reset()
	}
	for _, line := range transport.SplitLines(output) {
		if strings.HasPrefix(line, fileMarker) {
			flush()
			current = strings.TrimPrefix(line, fileMarker)
			order = append(order, current)
			continue
		}
		if current != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	flush()
	return order, files
}

// ParsePools parses concatenated pool files. A file may define several
// [name] sections; directives before the first section are ignored.
func ParsePools(output, version string) []app.PoolInfo {
	order, files := splitFiles(output)
	var pools []app.PoolInfo
	for _, path := range order {
		cur := -1
		for _, line := range transport.SplitLines(files[path]) {
			line = strings.TrimSpace(line)
			if line == "" || line[0] == ';' || line[0] == '#' {
				continue
			}
			if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
				name := strings.Trim(line, "[]")
				if name == "global" {
					cur = -1
					continue
				}
				pools = append(pools, app.PoolInfo{Name: name, Version: version, ConfigPath: path})
				cur = len(pools) - 1
				continue
			}
			if cur < 0 {
				continue
			}
			k, v, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			v = strings.TrimSpace(v)
			p := &pools[cur]
			switch strings.TrimSpace(k) {
			case "listen":
				p.Listen = v
			case "user":
				p.User = v
			case "pm":
				p.PM = v
			case "pm.max_children":
				p.MaxChildren = atoi(v)
			}
		}
	}
	return pools
}
