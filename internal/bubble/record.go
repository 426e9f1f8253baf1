package bubble

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one remote object as decoded from JSON
type Record map[string]interface{}

// ID returns the record's unique id
func (r Record) ID() string {
	s, _ := r["_id"].(string)
	return s
}

// ModifiedDate returns the remote modification stamp
func (r Record) ModifiedDate() (time.Time, bool) {
	return r.Time(ModifiedDateField)
}

// Lookup returns the first present, non-null value among keys
func (r Record) Lookup(keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns a string value; numbers and bools are formatted
func (r Record) String(keys ...string) (string, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	case json.Number:
		return val.String(), true
	}
	return fmt.Sprint(v), true
}

// Time parses a date value in any of the formats the API emits
func (r Record) Time(keys ...string) (time.Time, bool) {
	s, ok := r.String(keys...)
	if !ok {
		return time.Time{}, false
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// StringList returns list values; a scalar becomes a one-element list
func (r Record) StringList(keys ...string) ([]string, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return nil, false
	}
	switch val := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out, true
	case []string:
		return val, true
	case string:
		if val == "" {
			return []string{}, true
		}
		return []string{val}, true
	}
	return nil, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006 3:04 pm",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
}

// ParseTime accepts ISO timestamps, plain dates and CSV export dates
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	// Unix milliseconds
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// FormatTime renders t the way the API expects in constraints
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
