// Package utils holds small helpers shared by the HTTP and worker layers.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampLimit parses a list limit from a query value. Missing or invalid
// values yield def; the result is always within [1, max].
func ClampLimit(s string, def, max int) int {
	n := AtoiDefault(s, def)
	if n < 1 {
		return 1
	}
	if max > 0 && n > max {
		return max
	}
	return n
}
