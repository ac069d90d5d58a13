package models

import "time"

// PermissionType is the kind of access a permission grants.
type PermissionType string

const (
	PermissionRead  PermissionType = "read"
	PermissionWrite PermissionType = "write"
	PermissionAdmin PermissionType = "admin"
)

// Valid reports whether t is one of the known permission types.
func (t PermissionType) Valid() bool {
	switch t {
	case PermissionRead, PermissionWrite, PermissionAdmin:
		return true
	}
	return false
}

// Permission is a ledger entry. Its ID is assigned by the ledger from the
// next-id counter, so the column is never auto-incremented.
//
// Granted and Status are two independent "off" switches: an update may clear
// Granted, only a revoke clears Status.
type Permission struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	User           Principal      `gorm:"column:user_principal;size:128;index;not null" json:"user"`
	Authority      Principal      `gorm:"column:authority_principal;size:128;index;not null" json:"authority"`
	Granted        bool           `gorm:"not null" json:"granted"`
	Status         bool           `gorm:"not null" json:"status"`
	CrisisID       *uint64        `gorm:"type:bigint;serializer:uint64bits" json:"crisis_id,omitempty"`
	Timestamp      uint64         `gorm:"not null" json:"timestamp"`
	Expiry         *uint64        `gorm:"type:bigint;serializer:uint64bits" json:"expiry,omitempty"`
	PermissionType PermissionType `gorm:"size:16;not null" json:"permission_type"`
	Scope          string         `gorm:"size:100;not null" json:"scope"`
	Level          uint64         `gorm:"not null" json:"level"`
	Location       string         `gorm:"size:100;not null" json:"location"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// PermissionIndex maps a (user, authority) pair to the permission that
// currently occupies it. The composite primary key enforces one entry per pair.
type PermissionIndex struct {
	User         Principal `gorm:"column:user_principal;primaryKey;size:128"`
	Authority    Principal `gorm:"column:authority_principal;primaryKey;size:128"`
	PermissionID uint64    `gorm:"not null"`
}

func (PermissionIndex) TableName() string {
	return "permission_index"
}

// PermissionUpdate holds the most recent update applied to a permission.
// There is one row per permission and every update overwrites it.
type PermissionUpdate struct {
	PermissionID    uint64    `gorm:"primaryKey;autoIncrement:false" json:"permission_id"`
	UpdateGranted   bool      `gorm:"not null" json:"update_granted"`
	UpdateCrisisID  *uint64   `gorm:"type:bigint;serializer:uint64bits" json:"update_crisis_id,omitempty"`
	UpdateExpiry    *uint64   `gorm:"type:bigint;serializer:uint64bits" json:"update_expiry,omitempty"`
	Updater         Principal `gorm:"size:128;not null" json:"updater"`
	UpdatedAtHeight uint64    `gorm:"not null" json:"updated_at_height"`
}
