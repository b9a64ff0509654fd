package persistence

import (
	"encoding/json"
	"fmt"
	"time"
)

// Marker names the typed-marker JSON envelopes. These let a Go value that
// has no direct JSON equivalent (a set, an enum member, a dataframe of
// records, a nested record-like struct) round-trip through JSON without
// losing its domain meaning, falling back to plain JSON for everything
// else.
const (
	MarkerDataFrame  = "__dataframe__"
	MarkerDatetime   = "__datetime__"
	MarkerDate       = "__date__"
	MarkerEnum       = "__enum__"
	MarkerSet        = "__set__"
	MarkerDataclass  = "__dataclass__"
)

// WrapDatetime marks a timestamp-with-time-of-day value.
func WrapDatetime(t time.Time) map[string]interface{} {
	return map[string]interface{}{MarkerDatetime: t.Format(time.RFC3339Nano)}
}

// WrapDate marks a date-only value (time component discarded on decode).
func WrapDate(t time.Time) map[string]interface{} {
	return map[string]interface{}{MarkerDate: t.Format("2006-01-02")}
}

// WrapEnum marks an enum member as "Type.VALUE", matching the original's
// "ClassName.VALUE" convention.
func WrapEnum(typeName, value string) map[string]interface{} {
	return map[string]interface{}{MarkerEnum: fmt.Sprintf("%s.%s", typeName, value)}
}

// WrapSet marks an unordered, duplicate-free collection.
func WrapSet(values []interface{}) map[string]interface{} {
	if values == nil {
		values = []interface{}{}
	}
	return map[string]interface{}{MarkerSet: true, "values": values}
}

// WrapDataFrame marks a list-of-records tabular value (an option chain, a
// bar history slice) the way the original's pandas DataFrame serializes.
func WrapDataFrame(records []map[string]interface{}) map[string]interface{} {
	if records == nil {
		records = []map[string]interface{}{}
	}
	return map[string]interface{}{MarkerDataFrame: true, "records": records}
}

// WrapDataclass marks a nested struct-like value by its qualified type
// name, with fields merged alongside the marker key so the shape stays a
// flat JSON object (matching "__dataclass__": "module.Class", ...fields).
func WrapDataclass(typeName string, fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[MarkerDataclass] = typeName
	return out
}

// UnwrapDatetime recognizes a __datetime__ marker and parses it, passing
// every other marker/value through as not-matched.
func UnwrapDatetime(v interface{}) (time.Time, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return time.Time{}, false
	}
	raw, ok := m[MarkerDatetime]
	if !ok {
		return time.Time{}, false
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// UnwrapDate recognizes a __date__ marker.
func UnwrapDate(v interface{}) (time.Time, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return time.Time{}, false
	}
	raw, ok := m[MarkerDate]
	if !ok {
		return time.Time{}, false
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// UnwrapEnum recognizes a __enum__ marker and splits "Type.VALUE".
func UnwrapEnum(v interface{}) (typeName, value string, ok bool) {
	m, isMap := v.(map[string]interface{})
	if !isMap {
		return "", "", false
	}
	raw, present := m[MarkerEnum]
	if !present {
		return "", "", false
	}
	s, isStr := raw.(string)
	if !isStr {
		return "", "", false
	}
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return s[:i], s[i+1:], true
		}
	}
	return "", s, true
}

// UnwrapSet recognizes a __set__ marker and returns its values.
func UnwrapSet(v interface{}) ([]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	if flag, present := m[MarkerSet]; !present || flag != true {
		return nil, false
	}
	values, ok := m["values"].([]interface{})
	if !ok {
		return []interface{}{}, true
	}
	return values, true
}

// UnwrapDataFrame recognizes a __dataframe__ marker and returns its records.
func UnwrapDataFrame(v interface{}) ([]map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	if flag, present := m[MarkerDataFrame]; !present || flag != true {
		return nil, false
	}
	raw, ok := m["records"].([]interface{})
	if !ok {
		return []map[string]interface{}{}, true
	}
	records := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if rec, ok := r.(map[string]interface{}); ok {
			records = append(records, rec)
		}
	}
	return records, true
}

// UnwrapDataclass recognizes a __dataclass__ marker, returning the type
// name and the remaining fields (marker key stripped).
func UnwrapDataclass(v interface{}) (typeName string, fields map[string]interface{}, ok bool) {
	m, isMap := v.(map[string]interface{})
	if !isMap {
		return "", nil, false
	}
	raw, present := m[MarkerDataclass]
	if !present {
		return "", nil, false
	}
	name, isStr := raw.(string)
	if !isStr {
		return "", nil, false
	}
	fields = make(map[string]interface{}, len(m)-1)
	for k, v := range m {
		if k == MarkerDataclass {
			continue
		}
		fields[k] = v
	}
	return name, fields, true
}

// Encode marshals a snapshot tree (built from the Wrap* helpers and plain
// Go values) to JSON. Unknown/unmarked values pass through verbatim — this
// is a thin wrapper over encoding/json kept here so callers never need to
// import both packages just to round-trip a snapshot.
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals JSON into the generic map/slice/marker tree that the
// Unwrap* visitors operate on.
func Decode(data []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("persistence: decode: %w", err)
	}
	return out, nil
}
