package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// JSONMap is a JSON object column that implements driver.Valuer and
// sql.Scanner. It replaces gorm.io/datatypes.JSONMap to avoid pulling in
// a second copy of the SQLite driver as a transitive dependency.
//
// It works with both PostgreSQL JSONB and SQLite JSON columns.
type JSONMap map[string]interface{}

// Value implements driver.Valuer interface for database writes.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON map: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner interface for database reads.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to unmarshal JSON map: unsupported type")
	}

	out := make(JSONMap)
	if err := json.Unmarshal(bytes, &out); err != nil {
		return fmt.Errorf("invalid JSON in database: %w", err)
	}

	*m = out
	return nil
}

// Field returns the value stored under name and whether it is present.
// Satisfies the field source contract used by key builders.
func (m JSONMap) Field(name string) (interface{}, bool) {
	v, ok := m[name]
	return v, ok
}

// Copy returns a shallow copy of the map. Nested values are shared.
func (m JSONMap) Copy() JSONMap {
	if m == nil {
		return nil
	}
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
