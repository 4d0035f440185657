package audit

import (
	"fmt"
	"strconv"
)

// Change captures a single tracked-field transition.
type Change struct {
	Field    string
	OldValue string
	NewValue string
}

// Diff compares two flat entity snapshots across an explicit allow-list of
// tracked field names. Values are compared by their stringified forms, so a
// numeric 3 and the string "3" are the same value for audit purposes. Fields
// absent from after are not compared: an update payload that omits a field did
// not change it. Output preserves the order of tracked.
func Diff(before, after map[string]interface{}, tracked []string) []Change {
	changes := make([]Change, 0)
	for _, field := range tracked {
		newRaw, present := after[field]
		if !present {
			continue
		}
		oldVal := Stringify(before[field])
		newVal := Stringify(newRaw)
		if oldVal == newVal {
			continue
		}
		changes = append(changes, Change{Field: field, OldValue: oldVal, NewValue: newVal})
	}
	return changes
}

// Stringify renders a snapshot value for display-level comparison. Nil maps to
// the empty string.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		// JSON numbers decode as float64; keep integral values compact.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// ClassifyChange maps a changed field to the event type recorded for it.
// Status and assignee transitions get their own types so a reviewer can filter
// every status or assignment change as its own row.
func ClassifyChange(field string) EventType {
	switch field {
	case "status":
		return EventStatusChanged
	case "assignee":
		return EventAssignmentChanged
	default:
		return EventTaskUpdated
	}
}
