// Package utils holds small helpers shared across layers. Nothing in here
// knows about the domain.
package utils

import "strconv"

// AtoiDefault parses s as an int, falling back to def when s is empty or not
// a valid integer. Handlers use it for query parameters such as page and
// page_size, where a bad value means "use the default" rather than an error.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
