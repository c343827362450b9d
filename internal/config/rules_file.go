package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/arwahdevops/tablesync/internal/rules"
)

// RulesFile is the operator-maintained YAML file next to the environment config.
type RulesFile struct {
	DataRules    rules.Set           `yaml:"data_rules"`
	RenameTables map[string]string   `yaml:"rename_tables"`
	Groups       map[string][]string `yaml:"groups"`
	Exclude      []string            `yaml:"exclude"`
}

// LoadRulesFile reads path. A missing file yields an empty RulesFile unless
// required is set.
func LoadRulesFile(path string, required bool) (*RulesFile, error) {
	rf := &RulesFile{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return rf, nil
		}
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, rf); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return rf, nil
}

// DestinationTable applies rename_tables.
func (rf *RulesFile) DestinationTable(table string) string {
	if to, ok := rf.RenameTables[table]; ok && to != "" {
		return to
	}
	return table
}

// ExpandGroups returns the tables of the named groups in order, without duplicates.
func (rf *RulesFile) ExpandGroups(names []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, g := range names {
		tables, ok := rf.Groups[g]
		if !ok {
			known := make([]string, 0, len(rf.Groups))
			for k := range rf.Groups {
				known = append(known, k)
			}
			sort.Strings(known)
			return nil, fmt.Errorf("group not found: %s (known groups: %v)", g, known)
		}
		for _, t := range tables {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// IsExcluded reports whether table is listed under exclude.
func (rf *RulesFile) IsExcluded(table string) bool {
	for _, e := range rf.Exclude {
		if e == table {
			return true
		}
	}
	return false
}

const rulesTemplate = `# tablesync rules
#
# Columns matching a rule are rewritten on the way out of the source.
# Patterns are matched against "column", "table.column" and
# "schema.table.column"; "*" matches anything but a dot. First match wins.
data_rules:
  email: unique_email
  phone: unique_phone
  last_name: random_letter
  birthday: random_date
  encrypted_*: null
  # password_digest:
  #   value: "not-a-real-hash"
  # balance:
  #   statement: "round(balance, -2)"

# rename_tables:
#   public.users: public.users_copy

# groups:
#   core:
#     - public.users
#     - public.accounts

# exclude:
#   - public.schema_migrations
`

// WriteRulesTemplate creates a starter rules file at path. It refuses to
// overwrite an existing file.
func WriteRulesTemplate(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s exists", path)
		}
		return err
	}
	if _, err := f.WriteString(rulesTemplate); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
