package models

// SettingsRowID is the primary key of the single LedgerSettings row.
const SettingsRowID = 1

// LedgerSettings is the ledger's configuration aggregate. AuthorityEndpoint
// transitions from nil to set exactly once.
type LedgerSettings struct {
	ID                uint       `gorm:"primaryKey" json:"-"`
	AuthorityEndpoint *Principal `gorm:"size:128" json:"authority_endpoint,omitempty"`
	Capacity          uint64     `gorm:"not null" json:"capacity"`
	Fee               uint64     `gorm:"not null" json:"fee"`
	NextID            uint64     `gorm:"not null" json:"next_id"`
}

// EndpointSet reports whether the authority endpoint has been established.
func (s *LedgerSettings) EndpointSet() bool {
	return s.AuthorityEndpoint != nil
}
