package utils

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// QuoteIdentifier quotes a single identifier for the given SQL dialect.
// Embedded quote characters are doubled.
func QuoteIdentifier(name, dialect string) string {
	switch strings.ToLower(dialect) {
	case "mysql":
		return fmt.Sprintf("`%s`", strings.ReplaceAll(name, "`", "``"))
	case "postgres":
		return pq.QuoteIdentifier(name)
	default:
		// SQLite and anything unknown get ANSI double quotes.
		return fmt.Sprintf("\"%s\"", strings.ReplaceAll(name, "\"", "\"\""))
	}
}

// QuoteQualified quotes a possibly schema-qualified name ("schema.table"),
// quoting each dot-separated part on its own.
func QuoteQualified(name, dialect string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = QuoteIdentifier(p, dialect)
	}
	return strings.Join(parts, ".")
}

// QuoteLiteral renders value as a SQL string literal.
func QuoteLiteral(value, dialect string) string {
	switch strings.ToLower(dialect) {
	case "postgres":
		return pq.QuoteLiteral(value)
	case "mysql":
		// MySQL treats backslash as an escape inside literals unless NO_BACKSLASH_ESCAPES is set.
		v := strings.ReplaceAll(value, `\`, `\\`)
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(value, "'", "''") + "'"
	}
}

// SplitQualified splits "schema.table" into its parts. Unqualified names
// return an empty schema.
func SplitQualified(name string) (schema, table string) {
	if i := strings.Index(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// TruncateForLog collapses whitespace and shortens s to maxLength runes
// for inclusion in log fields.
func TruncateForLog(s string, maxLength int) string {
	if maxLength <= 3 {
		if maxLength <= 0 {
			return ""
		}
		return strings.Repeat(".", maxLength)
	}
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > maxLength {
		return string(r[:maxLength-3]) + "..."
	}
	return s
}
