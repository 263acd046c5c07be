package app

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// builtinAliases maps package, binary and unit names to canonical ids
var builtinAliases = map[string]string{
	"apache2":      "apache",
	"httpd":        "apache",
	"apachectl":    "apache",
	"mariadb":      "mysql",
	"mariadbd":     "mysql",
	"mysqld":       "mysql",
	"postgres":     "postgresql",
	"psql":         "postgresql",
	"pgsql":        "postgresql",
	"mongo":        "mongodb",
	"mongod":       "mongodb",
	"mongosh":      "mongodb",
	"redis-server": "redis",
	"redis-cli":    "redis",
	"node":         "nodejs",
	"python3":      "python",
	"php-fpm":      "php",
}

var versionedName = regexp.MustCompile(`^([a-z]+?)-?[0-9][0-9.]*(-fpm)?$`)

// Registry is the catalog of application definitions. It is populated once
// by NewRegistry and read-only afterwards, so concurrent reads need no lock.
type Registry struct {
	byID    map[string]Definition
	ids     []string
	aliases map[string]string
}

// NewRegistry builds a registry from defs. Ids are compared
// case-insensitively and must be unique.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		byID:    make(map[string]Definition, len(defs)),
		aliases: make(map[string]string, len(builtinAliases)),
	}
	for _, d := range defs {
		id := strings.ToLower(strings.TrimSpace(d.ID))
		if id == "" {
			return nil, fmt.Errorf("application definition %q has no id", d.Name)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("duplicate application id %q", id)
		}
		d.ID = id
		r.byID[id] = d
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)

	for alias, id := range builtinAliases {
		if _, ok := r.byID[id]; ok {
			r.aliases[alias] = id
		}
	}
	for _, id := range r.ids {
		for _, alias := range r.byID[id].Aliases {
			r.aliases[strings.ToLower(alias)] = id
		}
	}
	return r, nil
}

// MustNewRegistry is NewRegistry that panics on error, for static catalogs
func MustNewRegistry(defs ...Definition) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Application returns the definition with the given id, ignoring case
func (r *Registry) Application(id string) (Definition, bool) {
	d, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	return d, ok
}

// ApplicationForSoftware resolves a package, binary or unit name to a
// definition: aliases first, then a scan comparing slug, display name and
// service name, then the name with any version suffix stripped.
func (r *Registry) ApplicationForSoftware(name string) (Definition, bool) {
	n := normalizeName(name)
	if n == "" {
		return Definition{}, false
	}
	if d, ok := r.lookup(n); ok {
		return d, true
	}
	if m := versionedName.FindStringSubmatch(n); m != nil {
		return r.lookup(m[1])
	}
	return Definition{}, false
}

func (r *Registry) lookup(n string) (Definition, bool) {
	if d, ok := r.byID[n]; ok {
		return d, true
	}
	if id, ok := r.aliases[n]; ok {
		return r.byID[id], true
	}
	for _, id := range r.ids {
		d := r.byID[id]
		if slug(d.ID) == slug(n) || slug(d.Name) == slug(n) {
			return d, true
		}
		if d.Service.ServiceName != "" && strings.EqualFold(d.Service.ServiceName, n) {
			return d, true
		}
	}
	return Definition{}, false
}

// All returns every definition ordered by id
func (r *Registry) All() []Definition {
	out := make([]Definition, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

// ByCategory returns the definitions in category, ordered by id
func (r *Registry) ByCategory(c Category) []Definition {
	var out []Definition
	for _, id := range r.ids {
		if r.byID[id].Category == c {
			out = append(out, r.byID[id])
		}
	}
	return out
}

// Suggest returns up to max known ids or aliases closest to name, for
// "did you mean" hints.
func (r *Registry) Suggest(name string, max int) []string {
	n := normalizeName(name)
	type candidate struct {
		id   string
		dist int
	}
	best := make(map[string]int)
	consider := func(key, id string) {
		d := levenshtein.ComputeDistance(n, key)
		if d > len(key)/2+1 {
			return
		}
		if cur, ok := best[id]; !ok || d < cur {
			best[id] = d
		}
	}
	for _, id := range r.ids {
		consider(id, id)
	}
	for alias, id := range r.aliases {
		consider(alias, id)
	}

	cands := make([]candidate, 0, len(best))
	for id, d := range best {
		cands = append(cands, candidate{id: id, dist: d})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})
	var out []string
	for _, c := range cands {
		if max > 0 && len(out) == max {
			break
		}
		out = append(out, c.id)
	}
	return out
}

func normalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(n, ".service")
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
