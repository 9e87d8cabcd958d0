// Package catalog matches catalog entries to media assets, allocates their
// identifiers and commits the resulting records.
package catalog

import (
	"regexp"
	"strings"
)

// NameField is the catalog entry field that names an entry
const NameField = "Name"

// Entry is one catalog item as produced by the metadata script
type Entry map[string]any

// Name returns the entry name if it is a non-blank string
func (e Entry) Name() (string, bool) {
	name, ok := e[NameField].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return "", false
	}
	return name, true
}

// Record is a catalog entry enriched with its identifier and asset references
type Record map[string]any

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeName replaces every run of whitespace with a single underscore.
// The result is both the asset match key and the destination folder.
func NormalizeName(name string) string {
	return whitespace.ReplaceAllString(name, "_")
}
