package services

import (
	"context"
	"errors"

	"permledger/models"
)

// AccessService answers whether an authority currently holds a valid grant
// from a user. It never changes state.
type AccessService interface {
	HasAccess(ctx context.Context, user, authority models.Principal) (bool, error)
}

type accessService struct {
	Deps
}

var _ AccessService = (*accessService)(nil)

// NewAccessService creates a new AccessService instance
func NewAccessService(deps Deps) AccessService {
	return &accessService{Deps: deps}
}

func (s *accessService) HasAccess(ctx context.Context, user, authority models.Principal) (bool, error) {
	var ok bool
	err := s.Sequencer.Read(func() error {
		permission, err := lookupIndexed(s.Store.WithContext(ctx).Ledger(), user, authority)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = Valid(permission, s.Clock.Height())
		return nil
	})
	if err != nil {
		return false, err
	}
	s.Metrics.ObserveAccess(ok)
	return ok, nil
}

// Valid evaluates a permission at height now. Both off switches must be on,
// and an expiry at or below now has lapsed.
func Valid(p *models.Permission, now uint64) bool {
	if !p.Granted || !p.Status {
		return false
	}
	if p.Expiry != nil && *p.Expiry <= now {
		return false
	}
	return crisisPermits(p.CrisisID)
}

// crisisPermits reports whether the crisis linked to a permission allows
// access. The crisis registry is not consulted, so linked and unlinked
// permissions both pass.
func crisisPermits(crisisID *uint64) bool {
	if crisisID != nil {
		return true
	}
	return true
}
