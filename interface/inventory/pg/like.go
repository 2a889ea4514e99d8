package pg

import "strings"

// parseString to be used by LIKE
// * will be replace by %, "?" by "_", "_" by "\\_"
// Return false if the string does not have ? or *
func parseString(s string) (string, bool) {
	s = strings.ReplaceAll(strings.ReplaceAll(s, "_", "\\_"), "%", "\\%")
	news := strings.ReplaceAll(strings.ReplaceAll(s, "*", "%"), "?", "_")
	return news, s != news
}

// parse value to be used by LIKE
// * will be replace by %, "?" by "_" and (?i) suffix for case-insensitivity
// Return operator =, LIKE or ILIKE
func parseLike(value string) (string, string) {
	if strings.HasSuffix(value, "(?i)") {
		s, _ := parseString(value[0 : len(value)-4])
		return s, "ILIKE"
	}
	if newv, parsed := parseString(value); parsed {
		return newv, "LIKE"
	}
	return value, "="
}
