// Package version compares, enumerates and switches installed software
// versions using the strategies declared on application definitions.
package version

import (
	"sort"
	"strconv"
	"strings"
)

// Compare orders two dotted versions numerically, component by component.
// Missing components count as 0, so "8.2" equals "8.2.0" and "8.10" is
// greater than "8.2". A leading "v" is ignored, and each component
// contributes only its leading digits ("1-beta" is 1).
func Compare(a, b string) int {
	pa, pb := components(a), components(b)
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func components(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		end := 0
		for end < len(p) && p[end] >= '0' && p[end] <= '9' {
			end++
		}
		n, err := strconv.Atoi(p[:end])
		if err != nil {
			n = 0
		}
		out[i] = n
	}
	return out
}

// SortDescending returns the distinct versions newest first. Versions that
// compare equal ("8.2" and "8.2.0") are collapsed to the first one seen.
func SortDescending(versions []string) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, seen := range out {
			if Compare(seen, v) == 0 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Compare(out[i], out[j]) > 0
	})
	return out
}

// Latest returns the newest of versions
func Latest(versions []string) (string, bool) {
	sorted := SortDescending(versions)
	if len(sorted) == 0 {
		return "", false
	}
	return sorted[0], true
}

// Contains reports whether versions holds a version equal to v
func Contains(versions []string, v string) bool {
	_, ok := Match(versions, v)
	return ok
}

// Match returns the entry of versions equal to v. v must be a bare dotted
// version: anything else never matches.
func Match(versions []string, v string) (string, bool) {
	if !Valid(v) {
		return "", false
	}
	for _, x := range versions {
		if Compare(x, v) == 0 {
			return x, true
		}
	}
	return "", false
}
