package domain

import (
	"regexp"
	"sort"
	"strings"
)

var scopePattern = regexp.MustCompile(`^[a-z0-9_*:\-]+$`)

// ValidScope reports whether a single scope string is well formed.
func ValidScope(scope string) bool {
	return scopePattern.MatchString(scope)
}

// NormalizeScopes lower-cases, trims, deduplicates and sorts the given scopes.
func NormalizeScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ScopeMatches reports whether a granted scope satisfies a required one.
// Scopes split into (resource, action) on the first ':'; a missing action
// means '*'. The grant satisfies the requirement when resource and action
// each are '*' or equal. An empty requirement is always satisfied.
func ScopeMatches(granted, required string) bool {
	if required == "" {
		return true
	}
	gr, ga := splitScope(granted)
	rr, ra := splitScope(required)
	if gr != "*" && gr != rr {
		return false
	}
	return ga == "*" || ga == ra
}

// HasAllScopes requires every required scope to be matched by at least one
// granted scope independently.
func HasAllScopes(granted, required []string) bool {
	for _, req := range required {
		matched := false
		for _, g := range granted {
			if ScopeMatches(g, req) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func splitScope(scope string) (resource, action string) {
	if i := strings.Index(scope, ":"); i >= 0 {
		return scope[:i], scope[i+1:]
	}
	return scope, "*"
}
