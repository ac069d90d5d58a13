package services

import (
	"context"
	"errors"
	"fmt"

	"permledger/events"
	"permledger/models"
	"permledger/repositories"

	"gorm.io/gorm"
)

// RoleService is the role registry: a membership table of (principal, role)
// pairs. Any caller may change it once the authority endpoint is set.
type RoleService interface {
	AssignRole(ctx context.Context, caller, target models.Principal, role models.Role) error
	RevokeRole(ctx context.Context, caller, target models.Principal, role models.Role) error
	HasRole(ctx context.Context, target models.Principal, role models.Role) (bool, error)
}

type roleService struct {
	Deps
}

var _ RoleService = (*roleService)(nil)

// NewRoleService creates a new RoleService instance
func NewRoleService(deps Deps) RoleService {
	return &roleService{Deps: deps}
}

func requireEndpoint(tx repositories.Store) error {
	settings, err := tx.Ledger().Settings()
	if err != nil {
		return fmt.Errorf("loading ledger settings: %w", err)
	}
	if !settings.EndpointSet() {
		return ErrEndpointUnset
	}
	return nil
}

func (s *roleService) AssignRole(ctx context.Context, caller, target models.Principal, role models.Role) (err error) {
	defer func() { s.finish("assign_role", err) }()

	return s.commit(ctx, func(height uint64) (events.Event, error) {
		err := s.Store.WithContext(ctx).Transaction(func(tx repositories.Store) error {
			if !role.Valid() {
				return ErrInvalidRole
			}
			if err := requireEndpoint(tx); err != nil {
				return err
			}
			exists, err := tx.Roles().Exists(target, role)
			if err != nil {
				return fmt.Errorf("checking role %s of %s: %w", role, target, err)
			}
			if exists {
				return ErrRoleAlreadyAssigned
			}
			err = tx.Roles().Create(&models.RoleAssignment{Principal: target, Role: role, AssignedBy: caller})
			if err != nil {
				return fmt.Errorf("assigning role %s to %s: %w", role, target, err)
			}
			return nil
		})
		if err != nil {
			return events.Event{}, err
		}
		return events.New(events.RoleAssigned, height, caller, map[string]interface{}{
			"target": target.String(),
			"role":   string(role),
		}), nil
	})
}

func (s *roleService) RevokeRole(ctx context.Context, caller, target models.Principal, role models.Role) (err error) {
	defer func() { s.finish("revoke_role", err) }()

	return s.commit(ctx, func(height uint64) (events.Event, error) {
		err := s.Store.WithContext(ctx).Transaction(func(tx repositories.Store) error {
			if err := requireEndpoint(tx); err != nil {
				return err
			}
			err := tx.Roles().Delete(target, role)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			if err != nil {
				return fmt.Errorf("revoking role %s of %s: %w", role, target, err)
			}
			return nil
		})
		if err != nil {
			return events.Event{}, err
		}
		return events.New(events.RoleRevoked, height, caller, map[string]interface{}{
			"target": target.String(),
			"role":   string(role),
		}), nil
	})
}

func (s *roleService) HasRole(ctx context.Context, target models.Principal, role models.Role) (bool, error) {
	var exists bool
	err := s.Sequencer.Read(func() error {
		var err error
		exists, err = s.Store.WithContext(ctx).Roles().Exists(target, role)
		if err != nil {
			return fmt.Errorf("checking role %s of %s: %w", role, target, err)
		}
		return nil
	})
	return exists, err
}
