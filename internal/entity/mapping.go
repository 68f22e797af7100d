package entity

// FieldPair maps one source field to one output column.
type FieldPair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// FieldMapping is an ordered allow-list of fields to export. A source field
// absent from the mapping never reaches output; order here is column order.
// Kept as plain data (not predicates) so mappings can be validated,
// serialized and audited.
type FieldMapping []FieldPair

// IdentityMapping builds a mapping that keeps the given fields under their
// own names, in the given order.
func IdentityMapping(fields []string) FieldMapping {
	m := make(FieldMapping, 0, len(fields))
	for _, f := range fields {
		m = append(m, FieldPair{Source: f, Target: f})
	}
	return m
}

// Targets returns the output column names in declared order.
func (m FieldMapping) Targets() []string {
	out := make([]string, 0, len(m))
	for _, p := range m {
		out = append(out, p.Target)
	}
	return out
}

// Sources returns the source field names in declared order.
func (m FieldMapping) Sources() []string {
	out := make([]string, 0, len(m))
	for _, p := range m {
		out = append(out, p.Source)
	}
	return out
}
