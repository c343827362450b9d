package rules

import (
	"fmt"
	"strings"

	"github.com/arwahdevops/tablesync/internal/utils"
)

type template struct {
	postgres string
	mysql    string
	sqlite   string
}

// %[1]s is the quoted row id reference.
var templates = map[Generator]template{
	UniqueEmail: {
		postgres: "'email' || %[1]s || '@example.org'",
		mysql:    "CONCAT('email', %[1]s, '@example.org')",
		sqlite:   "'email' || %[1]s || '@example.org'",
	},
	UniquePhone: {
		postgres: "(%[1]s + 1000000000)::text",
		mysql:    "CAST(%[1]s + 1000000000 AS CHAR)",
		sqlite:   "CAST(%[1]s + 1000000000 AS TEXT)",
	},
	UniqueSecret: {
		postgres: "'secret' || %[1]s",
		mysql:    "CONCAT('secret', %[1]s)",
		sqlite:   "'secret' || %[1]s",
	},
	RandomInt: {
		postgres: "floor(random() * 10)::int",
		mysql:    "FLOOR(RAND() * 10)",
		sqlite:   "abs(random()) % 10",
	},
	RandomNumber: {
		postgres: "floor(random() * 1000000)::int",
		mysql:    "FLOOR(RAND() * 1000000)",
		sqlite:   "abs(random()) % 1000000",
	},
	RandomDate:   {postgres: "'1970-01-01'", mysql: "'1970-01-01'", sqlite: "'1970-01-01'"},
	RandomTime:   {postgres: "NOW()", mysql: "NOW()", sqlite: "CURRENT_TIMESTAMP"},
	RandomIP:     {postgres: "'127.0.0.1'", mysql: "'127.0.0.1'", sqlite: "'127.0.0.1'"},
	RandomLetter: {postgres: "'A'", mysql: "'A'", sqlite: "'A'"},
	RandomString: {
		postgres: "right(md5(random()::text), 10)",
		mysql:    "LEFT(MD5(RAND()), 10)",
		sqlite:   "lower(hex(randomblob(5)))",
	},
}

// KnownGenerator reports whether name is a built-in generator.
func KnownGenerator(name Generator) bool {
	if name == Untouched || name == Null || name == "" {
		return true
	}
	_, ok := templates[name]
	return ok
}

// Expression returns the projection for column: the plain qualified
// column when no rule applies, or the rule's SQL otherwise.
//
// Statement rules are inserted verbatim. Rules files are operator-authored
// and trusted the same way the --sql filter is.
func (s Set) Expression(dialect, table, column string) (string, error) {
	r, ok := s.Match(table, column)
	if !ok {
		return utils.QuoteQualified(table, dialect) + "." + utils.QuoteIdentifier(column, dialect), nil
	}

	st := r.Strategy
	switch st.Kind {
	case KindValue:
		return utils.QuoteLiteral(st.Text, dialect), nil
	case KindStatement:
		return st.Text, nil
	case KindMalformed:
		return "", &ConfigError{Table: table, Column: column, Rule: r.Pattern, Reason: "rule must set either value or statement"}
	}

	switch st.Generator {
	case "", Null:
		return "NULL", nil
	case Untouched:
		return utils.QuoteIdentifier(column, dialect), nil
	}
	tpl, ok := templates[st.Generator]
	if !ok {
		return "", &ConfigError{Table: table, Column: column, Rule: r.Pattern, Reason: fmt.Sprintf("unknown strategy %q", st.Generator)}
	}
	id := utils.QuoteQualified(table, dialect) + "." + utils.QuoteIdentifier("id", dialect)
	var pattern string
	switch strings.ToLower(dialect) {
	case "mysql":
		pattern = tpl.mysql
	case "sqlite":
		pattern = tpl.sqlite
	default:
		pattern = tpl.postgres
	}
	if !strings.Contains(pattern, "%[1]s") {
		return pattern, nil
	}
	return fmt.Sprintf(pattern, id), nil
}

// Projection builds the expression list for columns, in order. Any rule
// error aborts the whole projection.
func (s Set) Projection(dialect, table string, columns []string) ([]string, error) {
	exprs := make([]string, 0, len(columns))
	for _, c := range columns {
		e, err := s.Expression(dialect, table, c)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}
