package models

import "time"

// Account is the balance held by a principal. Balances are only moved by the
// grant fee transfer.
type Account struct {
	Principal Principal `gorm:"primaryKey;size:128" json:"principal"`
	Balance   uint64    `gorm:"not null" json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
