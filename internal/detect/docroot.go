package detect

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/AzozzALFiras/velo/internal/fallback"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// DefaultDocumentRoot is used when nothing on the target suggests otherwise
const DefaultDocumentRoot = "/var/www"

var rootDirective = regexp.MustCompile(`^\s*(?:root|DocumentRoot)\s+"?([^";\s]+)"?`)

// panelRoots are web roots laid out by hosting control panels, probed in
// order.
var panelRoots = []string{
	"/www/wwwroot",    // aaPanel
	"/var/www/vhosts", // Plesk
	"/home/*/public_html",
	"/usr/local/lsws/Example/html", // OpenLiteSpeed
}

// DocumentRoot returns the parent directory new sites should be created
// under for the given web server. Existing site configuration is scanned for
// its most common root prefix; then per-OS defaults, then panel
// conventions, then DefaultDocumentRoot. Each step runs only when the
// previous one found nothing.
func DocumentRoot(ctx context.Context, run transport.Runner, webServer string, os OSType) string {
	root, _ := fallback.FirstValue(ctx,
		fallback.NonEmpty("site-configs", func(ctx context.Context) string {
			return scanSiteRoots(ctx, run, webServer, os)
		}),
		fallback.Of("os-default", func(ctx context.Context) (string, bool) {
			return firstDir(ctx, run, osDocumentRoots(webServer, os))
		}),
		fallback.Of("panel", func(ctx context.Context) (string, bool) {
			p, ok := firstExisting(ctx, run, panelRoots)
			if !ok {
				return "", false
			}
			if strings.HasSuffix(p, "/public_html") {
				// cPanel-style roots are per user; sites go under /home
				return "/home", true
			}
			return p, true
		}),
		fallback.Value("default", DefaultDocumentRoot),
	)
	return root
}

func osDocumentRoots(webServer string, os OSType) []string {
	switch {
	case webServer == "nginx" && os == RHEL:
		return []string{"/usr/share/nginx/html", "/var/www"}
	case os == RHEL:
		return []string{"/var/www/html"}
	default:
		return []string{"/var/www"}
	}
}

func scanSiteRoots(ctx context.Context, run transport.Runner, webServer string, os OSType) string {
	var dirs []string
	switch webServer {
	case "nginx":
		dirs = []string{"/etc/nginx/sites-enabled", "/etc/nginx/conf.d"}
	case "apache":
		if os == RHEL {
			dirs = []string{"/etc/httpd/conf.d"}
		} else {
			dirs = []string{"/etc/apache2/sites-enabled"}
		}
	default:
		return ""
	}
	quoted := make([]string, len(dirs))
	for i, d := range dirs {
		quoted[i] = transport.Quote(d)
	}
	res, err := run.Run(ctx, "grep -rhE '^[[:space:]]*(root|DocumentRoot)[[:space:]]' "+strings.Join(quoted, " ")+" 2>/dev/null")
	if err != nil {
		return ""
	}
	return MostCommonRootPrefix(res.Lines())
}

// MostCommonRootPrefix extracts root directives from config lines and
// returns the most frequent parent directory among them. Ties go to the
// lexically smallest prefix so the answer is stable.
func MostCommonRootPrefix(lines []string) string {
	counts := map[string]int{}
	for _, line := range lines {
		m := rootDirective.FindStringSubmatch(line)
		if m == nil || !strings.HasPrefix(m[1], "/") {
			continue
		}
		if p := rootPrefix(m[1]); p != "" {
			counts[p]++
		}
	}
	if len(counts) == 0 {
		return ""
	}
	prefixes := make([]string, 0, len(counts))
	for p := range counts {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if counts[prefixes[i]] != counts[prefixes[j]] {
			return counts[prefixes[i]] > counts[prefixes[j]]
		}
		return prefixes[i] < prefixes[j]
	})
	return prefixes[0]
}

// rootPrefix keeps the first two path segments: /var/www/site/public
// becomes /var/www.
func rootPrefix(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		return ""
	}
	return "/" + parts[0] + "/" + parts[1]
}
