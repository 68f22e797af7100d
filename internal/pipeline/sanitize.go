package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Date marks a calendar-day value so the formatter emits "YYYY-MM-DD"
// without guessing: a plain time.Time always keeps its time component,
// so genuine midnight timestamps round-trip intact.
type Date time.Time

// FormatValue
// - time.Time -> "YYYY-MM-DD HH:MM:SS"; Date -> "YYYY-MM-DD"
// - numerics -> plain decimal text, no locale separators
// - nil -> ""
// - everything convertible -> its string form, unicode untouched
// The second return is false when the value had no sensible conversion and
// the placeholder was substituted; the row is still emitted. Delimiter and
// quote escaping is the writer's job (encoding/csv), not the formatter's.
// Formatting is pure: the same input always yields the same output.
func FormatValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case []byte:
		return string(t), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int8:
		return strconv.FormatInt(int64(t), 10), true
	case int16:
		return strconv.FormatInt(int64(t), 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint8:
		return strconv.FormatUint(uint64(t), 10), true
	case uint16:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return formatFloat(float64(t)), true
	case float64:
		return formatFloat(t), true
	case Date:
		return time.Time(t).Format("2006-01-02"), true
	case time.Time:
		return t.Format("2006-01-02 15:04:05"), true
	case *time.Time:
		if t == nil {
			return "", true
		}
		return FormatValue(*t)
	case fmt.Stringer:
		return t.String(), true
	}
	// Nested maps, slices, funcs and the like get the placeholder; one bad
	// field must not drop the row or abort the export.
	return "", false
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
