package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the ledger's repositories over one database handle. Inside
// Transaction every repository shares the transaction.
type Store interface {
	Ledger() LedgerRepository
	Accounts() AccountRepository
	Roles() RoleRepository

	// WithContext returns a Store whose queries carry ctx.
	WithContext(ctx context.Context) Store
	// Transaction runs fn in a database transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	Transaction(fn func(tx Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

var _ Store = (*gormStore)(nil)

// NewStore creates a Store backed by db.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Ledger() LedgerRepository {
	return &ledgerRepository{db: s.db}
}

func (s *gormStore) Accounts() AccountRepository {
	return &accountRepository{db: s.db}
}

func (s *gormStore) Roles() RoleRepository {
	return &roleRepository{db: s.db}
}

func (s *gormStore) WithContext(ctx context.Context) Store {
	return &gormStore{db: s.db.WithContext(ctx)}
}

func (s *gormStore) Transaction(fn func(tx Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}
