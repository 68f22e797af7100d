package pipeline

import "github.com/artisthq/exportd/internal/entity"

// ApplyMapping selects and renames fields per the allow-list mapping.
// Output holds exactly the mapping's targets that exist in the record;
// source keys absent from the record are omitted without error, and record
// keys absent from the mapping never appear in output.
func ApplyMapping(rec entity.Record, mapping entity.FieldMapping) entity.Record {
	out := make(entity.Record, len(mapping))
	for _, p := range mapping {
		if v, ok := rec[p.Source]; ok {
			out[p.Target] = v
		}
	}
	return out
}
