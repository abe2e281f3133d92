package models

import (
	"database/sql/driver"
	"encoding/json"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Blob is a typed JSON sub-structure stored in a single column. Decoding is
// confined to Scan; a value that cannot be decoded is logged and replaced by
// the zero value of T so the owning row stays usable.
type Blob[T any] struct {
	Data    T
	Corrupt bool
}

// NewBlob wraps v.
func NewBlob[T any](v T) Blob[T] {
	return Blob[T]{Data: v}
}

// Scan implements sql.Scanner.
func (b *Blob[T]) Scan(value any) error {
	var zero T
	b.Data = zero
	b.Corrupt = false

	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		log.Printf("⚠️  [MODELS] Unexpected blob column type %T, using defaults", value)
		b.Corrupt = true
		return nil
	}
	if len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, &b.Data); err != nil {
		log.Printf("⚠️  [MODELS] Corrupt %T blob, using defaults: %v", zero, err)
		b.Data = zero
		b.Corrupt = true
	}
	return nil
}

// Value implements driver.Valuer.
func (b Blob[T]) Value() (driver.Value, error) {
	raw, err := json.Marshal(b.Data)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// MarshalJSON renders the wrapped value only.
func (b Blob[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Data)
}

// UnmarshalJSON decodes into the wrapped value.
func (b *Blob[T]) UnmarshalJSON(raw []byte) error {
	return json.Unmarshal(raw, &b.Data)
}

// GormDataType implements schema.GormDataTypeInterface.
func (Blob[T]) GormDataType() string {
	return "json"
}

// GormDBDataType picks the column type per dialect.
func (Blob[T]) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	default:
		return "TEXT"
	}
}
