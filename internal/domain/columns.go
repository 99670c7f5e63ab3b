// Package domain – JSON-backed column types.
//
// SQLite has no native array or map columns, so the summary's extracted
// slices are stored as JSON text. StringList and StringMap implement the
// database/sql Valuer/Scanner pair so GORM round-trips them transparently.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList is a []string persisted as a JSON text column.
type StringList []string

// Value encodes the list as JSON for storage. An empty list stores "[]".
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes a JSON text column back into the list.
func (l *StringList) Scan(src any) error {
	return scanJSON(src, l)
}

// StringMap is a map[string]string persisted as a JSON text column.
// It backs the summary's per-participant position excerpts.
type StringMap map[string]string

// Value encodes the map as JSON for storage. A nil map stores "{}".
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes a JSON text column back into the map.
func (m *StringMap) Scan(src any) error {
	return scanJSON(src, m)
}

// scanJSON handles the string/[]byte/nil forms SQLite drivers hand back.
func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
