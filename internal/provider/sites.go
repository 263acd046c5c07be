package provider

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/detect"
	"github.com/AzozzALFiras/velo/internal/transport"
)

var (
	siteNames = regexp.MustCompile(`^\s*(?:server_name|ServerName|ServerAlias)\s+([^;#]+)`)
	siteRoot  = regexp.MustCompile(`^\s*(?:root|DocumentRoot)\s+"?([^";\s]+)"?`)
)

// SitesProvider lists the virtual hosts of nginx and Apache
type SitesProvider struct{}

func (SitesProvider) Type() app.ProviderType { return app.ProviderSites }

func (SitesProvider) Load(ctx context.Context, t *Target, w app.Writer) error {
	available, enabled := detect.SiteDirs(t.App.ID, t.OS)
	if available == "" {
		return app.NotSupported(app.ProviderSites)
	}

	glob := available + "/*"
	if enabled == "" {
		glob = available + "/*.conf"
	}
	res, err := t.Run.Run(ctx, catFiles(glob), transport.Elevated())
	if err != nil {
		return err
	}

	// layouts without an enabled directory load every file
	var enabledNames map[string]bool
	if enabled != "" {
		ls, err := t.Run.Run(ctx, "ls -1 "+transport.Quote(enabled)+" 2>/dev/null")
		if err != nil {
			return err
		}
		enabledNames = map[string]bool{}
		for _, n := range ls.Lines() {
			enabledNames[strings.TrimSpace(n)] = true
		}
	}

	sites := ParseSites(res.Output, enabledNames)
	return w.Update(ctx, func(s *app.State) { s.Sites = sites })
}

// ParseSites builds one SiteInfo per concatenated site file. With a nil
// enabled set every site counts as enabled.
func ParseSites(output string, enabled map[string]bool) []app.SiteInfo {
	order, files := splitFiles(output)
	sites := make([]app.SiteInfo, 0, len(order))
	for _, p := range order {
		name := path.Base(p)
		site := app.SiteInfo{
			Name:       strings.TrimSuffix(name, ".conf"),
			ConfigPath: p,
			Enabled:    enabled == nil || enabled[name],
		}
		seen := map[string]bool{}
		for _, line := range transport.SplitLines(files[p]) {
			if strings.HasPrefix(strings.TrimSpace(line), "#") {
				continue
			}
			if m := siteNames.FindStringSubmatch(line); m != nil {
				for _, n := range strings.Fields(m[1]) {
					if !seen[n] {
						seen[n] = true
						site.ServerNames = append(site.ServerNames, n)
					}
				}
				continue
			}
			if m := siteRoot.FindStringSubmatch(line); m != nil && site.Root == "" {
				site.Root = m[1]
			}
		}
		sites = append(sites, site)
	}
	return sites
}
