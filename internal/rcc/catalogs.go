package rcc

import "strings"

// catalogHeaderPrefixes mark banner and separator lines in
// `rcc holotree catalogs` output.
var catalogHeaderPrefixes = []string{"=", "Holotree", "---", "Blueprint", "OK."}

// IsCatalogLine reports whether one line of catalog listing output names a
// catalog. Both the status count and the catalog endpoint go through here.
func IsCatalogLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	for _, prefix := range catalogHeaderPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return false
		}
	}
	return true
}

// ParseCatalogs keeps catalog lines, trimmed, in output order. Duplicates are
// kept.
func ParseCatalogs(output string) []string {
	catalogs := []string{}
	for _, line := range strings.Split(output, "\n") {
		if IsCatalogLine(line) {
			catalogs = append(catalogs, strings.TrimSpace(line))
		}
	}
	return catalogs
}
