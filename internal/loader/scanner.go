package loader

import (
	"path"
	"strings"
)

// Matching filters Paths to those matching a shell-style glob pattern
// against the implementation path's final component, backing the
// command-line surface's --list-tests filtering without needing a
// full namespace walk to do it: the registry already holds every
// candidate, so "scanning" a pattern is just filtering the slice.
func Matching(reg *Registry, pattern string) []string {
	if pattern == "" || pattern == "*" {
		return reg.Paths()
	}
	var out []string
	for _, p := range reg.Paths() {
		leaf := p
		if i := strings.LastIndex(p, "."); i >= 0 {
			leaf = p[i+1:]
		}
		if ok, _ := path.Match(pattern, leaf); ok {
			out = append(out, p)
		}
	}
	return out
}

// IsInternal reports whether implPath names an underscore-prefixed
// component. Registration itself does not enforce this (a registry entry
// is already an explicit opt-in), but list surfaces use it to hide
// internal/helper registrations from --list-tests output.
func IsInternal(implPath string) bool {
	for _, part := range strings.Split(implPath, ".") {
		if strings.HasPrefix(part, "_") {
			return true
		}
	}
	return false
}
