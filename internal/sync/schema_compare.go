package sync

// Reconciliation splits two name lists by exact equality.
type Reconciliation struct {
	Shared  []string // in destination order
	Extra   []string // destination only
	Missing []string // source only
}

// Reconcile compares source and destination names. Duplicates collapse to
// their first occurrence.
func Reconcile(source, dest []string) Reconciliation {
	inSource := toSet(source)
	inDest := toSet(dest)

	var r Reconciliation
	seen := make(map[string]struct{}, len(dest))
	for _, name := range dest {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := inSource[name]; ok {
			r.Shared = append(r.Shared, name)
		} else {
			r.Extra = append(r.Extra, name)
		}
	}
	seen = make(map[string]struct{}, len(source))
	for _, name := range source {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := inDest[name]; !ok {
			r.Missing = append(r.Missing, name)
		}
	}
	return r
}

// SchemaDiff is the column and sequence reconciliation for one table pair.
type SchemaDiff struct {
	Columns   Reconciliation
	Sequences Reconciliation
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
