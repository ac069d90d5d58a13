package services

import (
	"context"
	"fmt"

	"permledger/models"
)

// AccountService exposes the balances moved by grant fees.
type AccountService interface {
	Balance(ctx context.Context, principal models.Principal) (uint64, error)
}

type accountService struct {
	Deps
}

// NewAccountService creates a new AccountService instance
func NewAccountService(deps Deps) AccountService {
	return &accountService{Deps: deps}
}

func (s *accountService) Balance(ctx context.Context, principal models.Principal) (uint64, error) {
	var balance uint64
	err := s.Sequencer.Read(func() error {
		var err error
		balance, err = s.Store.WithContext(ctx).Accounts().Balance(principal)
		if err != nil {
			return fmt.Errorf("loading balance of %s: %w", principal, err)
		}
		return nil
	})
	return balance, err
}
