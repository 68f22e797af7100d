package pipeline

import "github.com/artisthq/exportd/internal/entity"

// Redact replaces the value of every sensitive field present in the record
// with the marker. Keys are never deleted: consumers can tell "redacted"
// apart from "absent".
func Redact(rec entity.Record, sensitive map[string]struct{}, marker string) entity.Record {
	if len(sensitive) == 0 {
		return rec
	}
	out := make(entity.Record, len(rec))
	for k, v := range rec {
		if _, hit := sensitive[k]; hit {
			out[k] = marker
		} else {
			out[k] = v
		}
	}
	return out
}
