package classify

// Class pairs an RFC5424 priority with a facility code.
type Class struct {
	Priority int
	Facility int
}

// DefaultClass is Informational / local0, assigned to any event type absent
// from a table. Unknown types are expected, not an error.
var DefaultClass = Class{Priority: 14, Facility: 16}

// Table maps event types to their priority/facility classification.
// Tables are built once at startup and never mutated afterwards.
type Table struct {
	classes map[string]Class
	def     Class
}

// NewTable builds a Table from the given classes and default. The input map
// is copied so callers cannot mutate the table afterwards.
func NewTable(classes map[string]Class, def Class) Table {
	m := make(map[string]Class, len(classes))
	for k, v := range classes {
		m[k] = v
	}
	return Table{classes: m, def: def}
}

// Lookup returns the classification for eventType, falling back to the
// table's default for unrecognized types.
func (t Table) Lookup(eventType string) Class {
	if c, ok := t.classes[eventType]; ok {
		return c
	}
	return t.def
}

// Len returns the number of explicit entries in the table.
func (t Table) Len() int { return len(t.classes) }
