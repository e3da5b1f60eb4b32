package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB stores T as a Postgres jsonb column
type JSONB[T any] struct {
	Data T
}

func NewJSONB[T any](data T) JSONB[T] {
	return JSONB[T]{Data: data}
}

func (p *JSONB[T]) Scan(src any) error {
	var zero T
	switch b := src.(type) {
	case nil:
		p.Data = zero
		return nil
	case []byte:
		return json.Unmarshal(b, &p.Data)
	case string:
		return json.Unmarshal([]byte(b), &p.Data)
	default:
		return fmt.Errorf("JSONB.Scan: expected []byte, got %T", src)
	}
}

func (p JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(p.Data)
}

func (p JSONB[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Data)
}

func (p *JSONB[T]) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &p.Data)
}

func (p *JSONB[T]) GetValue() T {
	return p.Data
}
