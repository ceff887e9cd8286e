package common

import "strings"

// NameOr normalizes a user supplied identifier such as a backend name.
// Surrounding whitespace is dropped and the result is lower case; a blank name yields fallback.
//
// Parameters:
//   - name: the raw identifier, typically read from a config file or flag
//   - fallback: returned when name is blank
//
// Returns:
//   - string: the normalized name
func NameOr(name, fallback string) string {
	if name = strings.TrimSpace(name); name == "" {
		return fallback
	}
	return strings.ToLower(name)
}
