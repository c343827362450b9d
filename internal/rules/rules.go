// Package rules maps column identities to anonymizing SQL projections.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arwahdevops/tablesync/internal/utils"
)

// Kind tags the variant held by a Strategy.
type Kind int

const (
	KindGenerator Kind = iota
	KindValue
	KindStatement
	// KindMalformed marks a hash-form rule with neither "value" nor "statement".
	// It is kept so the error surfaces against the column it would project.
	KindMalformed
)

// Generator names a built-in expression template.
type Generator string

const (
	UniqueEmail  Generator = "unique_email"
	UniquePhone  Generator = "unique_phone"
	UniqueSecret Generator = "unique_secret"
	RandomInt    Generator = "random_int"
	RandomNumber Generator = "random_number"
	RandomDate   Generator = "random_date"
	RandomTime   Generator = "random_time"
	RandomIP     Generator = "random_ip"
	RandomLetter Generator = "random_letter"
	RandomString Generator = "random_string"
	Untouched    Generator = "untouched"
	Null         Generator = "null"
)

// Strategy is one of FixedValue, RawStatement or a NamedGenerator.
type Strategy struct {
	Kind      Kind
	Text      string    // literal for KindValue, SQL for KindStatement
	Generator Generator // for KindGenerator; empty means NULL
}

func FixedValue(v string) Strategy        { return Strategy{Kind: KindValue, Text: v} }
func RawStatement(sql string) Strategy    { return Strategy{Kind: KindStatement, Text: sql} }
func NamedGenerator(g Generator) Strategy { return Strategy{Kind: KindGenerator, Generator: g} }

func (s Strategy) String() string {
	switch s.Kind {
	case KindValue:
		return fmt.Sprintf("value(%q)", s.Text)
	case KindStatement:
		return fmt.Sprintf("statement(%q)", s.Text)
	case KindMalformed:
		return "malformed(" + s.Text + ")"
	default:
		if s.Generator == "" {
			return "null"
		}
		return string(s.Generator)
	}
}

// Rule pairs a glob pattern with its strategy.
type Rule struct {
	Pattern  string
	Strategy Strategy
	re       *regexp.Regexp
}

// NewRule compiles pattern. "*" matches any run of non-dot characters,
// everything else is literal.
func NewRule(pattern string, s Strategy) Rule {
	expr := strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, `[^.]*`)
	return Rule{Pattern: pattern, Strategy: s, re: regexp.MustCompile(`\A` + expr + `\z`)}
}

// Matches reports whether the rule applies to column of table. table may be
// schema-qualified.
func (r Rule) Matches(table, column string) bool {
	re := r.re
	if re == nil {
		re = NewRule(r.Pattern, r.Strategy).re
	}
	_, bare := utils.SplitQualified(table)
	return re.MatchString(column) ||
		re.MatchString(bare+"."+column) ||
		re.MatchString(table+"."+column)
}

// Set is an ordered rule list; earlier rules win.
type Set []Rule

// Match returns the first rule that applies to the column.
func (s Set) Match(table, column string) (Rule, bool) {
	for _, r := range s {
		if r.Matches(table, column) {
			return r, true
		}
	}
	return Rule{}, false
}

// ConfigError reports a rule that cannot be turned into SQL.
type ConfigError struct {
	Table  string
	Column string
	Rule   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid data rule %q for column %s.%s: %s", e.Rule, e.Table, e.Column, e.Reason)
}
