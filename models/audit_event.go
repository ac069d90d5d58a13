package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEvent is the durable copy of a ledger change event.
type AuditEvent struct {
	ID           string         `gorm:"primaryKey;size:64"`
	Kind         string         `gorm:"size:64;index;not null"`
	Height       uint64         `gorm:"index"`
	PermissionID *uint64        `gorm:"index"`
	Principal    Principal      `gorm:"size:128;index"`
	Fields       datatypes.JSON `gorm:"type:json"`
	CreatedAt    time.Time
}
