package models

import (
	"time"

	"gorm.io/datatypes"
)

// Category classifies an evidence submission. FormSchema optionally holds a
// JSON Schema document that structured-form payloads for this category must
// satisfy.
type Category struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:100;not null" json:"name"`
	Description string         `gorm:"size:200" json:"description"`
	FormSchema  datatypes.JSON `json:"form_schema"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// HasFormSchema reports whether submissions in this category are schema-checked.
func (c Category) HasFormSchema() bool {
	return len(c.FormSchema) > 0 && string(c.FormSchema) != "null"
}
