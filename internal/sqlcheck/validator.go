// Package sqlcheck is the last line of defense before a statement reaches
// the database: a lexical read-only check, not a SQL parser.
package sqlcheck

import (
	"regexp"
	"strings"
)

// Statements may only read. Anything that writes, defines, or escalates
// is rejected outright.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "GRANT", "REVOKE", "EXEC", "EXECUTE",
	"CALL", "MERGE", "REPLACE", "INTO",
}

var (
	reLineComment  = regexp.MustCompile(`(?m)--.*$`)
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// Word-boundary patterns so identifiers like user_insert_log pass.
	forbiddenPatterns = compileForbidden()
)

func compileForbidden() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(forbiddenKeywords))
	for i, kw := range forbiddenKeywords {
		out[i] = regexp.MustCompile(`\b` + kw + `\b`)
	}
	return out
}

// Validate reports whether sql is an acceptable read-only SELECT statement.
// On rejection the returned reason names the first violation found.
func Validate(sql string) (bool, string) {
	clean := reLineComment.ReplaceAllString(sql, "")
	clean = reBlockComment.ReplaceAllString(clean, "")
	clean = strings.ToUpper(strings.TrimSpace(clean))

	if clean == "" {
		return false, "empty SQL statement"
	}
	if !strings.HasPrefix(clean, "SELECT") {
		return false, "only SELECT statements are allowed"
	}
	for i, re := range forbiddenPatterns {
		if re.MatchString(clean) {
			return false, "forbidden operation detected: " + forbiddenKeywords[i]
		}
	}
	return true, ""
}
