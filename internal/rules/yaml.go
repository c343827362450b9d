package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML reads a data_rules mapping, keeping document order:
//
//	data_rules:
//	  email: unique_email
//	  "users.*_token": null
//	  last_name:
//	    value: Smith
//	  balance:
//	    statement: "balance / 100"
//
// Unknown generator names are accepted here and rejected when a column
// actually resolves to them, so the error can name the column.
func (s *Set) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*s = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("data_rules: line %d: expected a mapping", node.Line)
	}
	out := make(Set, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		st, err := strategyFromNode(val)
		if err != nil {
			return fmt.Errorf("data_rules: rule %q: %w", key.Value, err)
		}
		out = append(out, NewRule(key.Value, st))
	}
	*s = out
	return nil
}

func strategyFromNode(n *yaml.Node) (Strategy, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return NamedGenerator(Null), nil
		}
		return NamedGenerator(Generator(n.Value)), nil
	case yaml.MappingNode:
		var fields map[string]*yaml.Node
		if err := n.Decode(&fields); err != nil {
			return Strategy{}, err
		}
		if v, ok := fields["value"]; ok {
			return FixedValue(v.Value), nil
		}
		if v, ok := fields["statement"]; ok {
			return RawStatement(v.Value), nil
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		return Strategy{Kind: KindMalformed, Text: fmt.Sprint(keys)}, nil
	default:
		return Strategy{}, fmt.Errorf("line %d: unsupported rule form", n.Line)
	}
}
