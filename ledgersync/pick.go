package ledgersync

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Alias-chain accessors over decoded upstream payloads. Each canonical
// field names an ordered list of upstream keys; the first non-null wins.
// Invalid numeric input coerces to the zero value rather than failing the
// record, required-field checks happen in the validators.

func decodePayload(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func pickRaw(m map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func pickString(m map[string]interface{}, keys ...string) string {
	v, ok := pickRaw(m, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func pickDecimal(m map[string]interface{}, keys ...string) decimal.Decimal {
	v, ok := pickRaw(m, keys...)
	if !ok {
		return decimal.Zero
	}
	return toDecimal(v)
}

func toDecimal(v interface{}) decimal.Decimal {
	switch t := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(t)); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	}
	return decimal.Zero
}

func pickInt(m map[string]interface{}, keys ...string) int {
	v, ok := pickRaw(m, keys...)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
		if f, err := t.Float64(); err == nil {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	case float64:
		return int(t)
	}
	return 0
}

func pickBool(m map[string]interface{}, keys ...string) bool {
	v, ok := pickRaw(m, keys...)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		lower := strings.ToLower(strings.TrimSpace(t))
		return lower == "true" || lower == "1" || lower == "yes"
	case json.Number:
		return t.String() != "0"
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

func pickTime(m map[string]interface{}, keys ...string) *time.Time {
	v, ok := pickRaw(m, keys...)
	if !ok {
		return nil
	}
	return toTime(v)
}

func toTime(v interface{}) *time.Time {
	switch t := v.(type) {
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return nil
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return &parsed
			}
		}
	case []interface{}:
		return dateArrayToTime(t)
	}
	return nil
}

// dateArrayToTime handles Fineract's [year, month, day] date encoding.
func dateArrayToTime(arr []interface{}) *time.Time {
	if len(arr) < 3 {
		return nil
	}
	year := intFromAny(arr[0])
	month := intFromAny(arr[1])
	day := intFromAny(arr[2])
	if year == 0 || month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	parsed := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &parsed
}

func intFromAny(v interface{}) int {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
	case float64:
		return int(t)
	case int:
		return t
	}
	return 0
}

// pickMap descends one level for nested objects like Fineract's "summary".
func pickMap(m map[string]interface{}, keys ...string) map[string]interface{} {
	v, ok := pickRaw(m, keys...)
	if !ok {
		return nil
	}
	if nested, ok := v.(map[string]interface{}); ok {
		return nested
	}
	return nil
}

func pickSlice(m map[string]interface{}, keys ...string) []interface{} {
	v, ok := pickRaw(m, keys...)
	if !ok {
		return nil
	}
	if arr, ok := v.([]interface{}); ok {
		return arr
	}
	return nil
}
