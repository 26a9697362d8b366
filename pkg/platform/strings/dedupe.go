// Package strings holds small slice helpers for request payloads.
package strings

import (
	"strings"
)

// Transform rewrites an element before it is compared.
type Transform func(string) string

// Dedupe trims each element, applies the transforms in order, drops empty
// results and keeps the first occurrence of every value.
func Dedupe(values []string, transforms ...Transform) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		for _, fn := range transforms {
			v = fn(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
