// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts s with strconv.Atoi and returns def when s is empty
// or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParseLimit reads a page-size query value. An empty value yields def; a
// value above max is capped. ok is false for non-numeric or non-positive
// input so callers can reject it.
//
//	n, ok := utils.ParseLimit(c.Query("limit"), 10, 100)
func ParseLimit(raw string, def, max int) (n int, ok bool) {
	if raw == "" {
		return def, true
	}
	n = AtoiDefault(raw, -1)
	if n < 1 {
		return 0, false
	}
	if max > 0 && n > max {
		n = max
	}
	return n, true
}
