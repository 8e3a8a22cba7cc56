package models

import (
	"time"
)

// SchemaMigration is one row of the schema_migrations tracking table. The
// table is append-only: the runner inserts a row when a migration commits and
// never updates or deletes rows afterwards.
type SchemaMigration struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Version   string    `gorm:"uniqueIndex;not null" json:"version"`
	Name      string    `gorm:"not null" json:"name"`
	AppliedAt time.Time `json:"applied_at"`
}

// TableName ensures consistent table naming
func (SchemaMigration) TableName() string {
	return "schema_migrations"
}
