package document

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Parse decodes arbitrary JSON text into a Value tree, used when reading a
// previously-stored record back out of a backend that only gives back raw
// JSON/JSONB text. Object field order is not guaranteed to survive a
// round trip through Parse (map iteration order is unspecified); only a
// decode->MarshalJSON path that never goes through Parse guarantees
// schema declaration order.
func Parse(raw []byte) (Value, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Value{}, fmt.Errorf("document: parsing JSON: %w", err)
	}
	return fromGeneric(generic), nil
}

func fromGeneric(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case json.Number:
		return Number(t.String())
	case float64:
		return Number(formatFloat(t))
	case string:
		return String(t)
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, fromGeneric(item))
		}
		return Array(items)
	case map[string]any:
		fields := make([]Field, 0, len(t))
		for k, val := range t {
			fields = append(fields, Field{Name: k, Value: fromGeneric(val)})
		}
		return Object(fields)
	default:
		return Null()
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
