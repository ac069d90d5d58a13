package services

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"permledger/events"
	"permledger/models"
	"permledger/repositories"

	"gorm.io/gorm"
)

const (
	MaxLevel      = 10
	MaxTextLength = 100
)

// The PermissionService interface is the permission ledger: it issues,
// updates and revokes grants from a user to an authority.
type PermissionService interface {
	Grant(ctx context.Context, caller models.Principal, input GrantInput) (uint64, error)
	Revoke(ctx context.Context, caller, authority models.Principal) error
	Update(ctx context.Context, caller models.Principal, id uint64, input UpdateInput) error

	Permission(ctx context.Context, id uint64) (*models.Permission, error)
	PermissionFor(ctx context.Context, user, authority models.Principal) (*models.Permission, error)
	UpdateRecord(ctx context.Context, id uint64) (*models.PermissionUpdate, error)
	PermissionsByUser(ctx context.Context, user models.Principal, page int, pageSize int) ([]models.Permission, int64, error)
}

// --- Structs for Input ---
type GrantInput struct {
	Authority      models.Principal      `json:"authority"`
	CrisisID       *uint64               `json:"crisis_id,omitempty"`
	Expiry         *uint64               `json:"expiry,omitempty"`
	PermissionType models.PermissionType `json:"permission_type"`
	Scope          string                `json:"scope"`
	Level          uint64                `json:"level"`
	Location       string                `json:"location"`
}

// UpdateInput replaces the mutable fields of a permission. Nil CrisisID or
// Expiry clear the field.
type UpdateInput struct {
	Granted  bool    `json:"granted"`
	CrisisID *uint64 `json:"crisis_id,omitempty"`
	Expiry   *uint64 `json:"expiry,omitempty"`
}

type permissionService struct {
	Deps
}

var _ PermissionService = (*permissionService)(nil)

// NewPermissionService creates a new PermissionService instance
func NewPermissionService(deps Deps) PermissionService {
	return &permissionService{Deps: deps}
}

func validText(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= 1 && n <= MaxTextLength
}

// Grant records a new permission from caller to input.Authority and pays the
// configured fee to the authority endpoint. The checks run in a fixed order
// and the first failure is returned; the fee transfer and all writes commit
// together or not at all.
func (s *permissionService) Grant(ctx context.Context, caller models.Principal, input GrantInput) (id uint64, err error) {
	defer func() { s.finish("grant", err) }()

	var fee uint64
	var endpoint models.Principal
	err = s.commit(ctx, func(height uint64) (events.Event, error) {
		err := s.Store.WithContext(ctx).Transaction(func(tx repositories.Store) error {
			ledger := tx.Ledger()
			settings, err := ledger.Settings()
			if err != nil {
				return fmt.Errorf("loading ledger settings: %w", err)
			}

			if settings.NextID >= settings.Capacity {
				return ErrCapacityReached
			}
			if input.Authority.IsSentinel() {
				return ErrInvalidAuthority
			}
			if !input.PermissionType.Valid() {
				return ErrInvalidType
			}
			if !validText(input.Scope) {
				return ErrInvalidScope
			}
			if input.Level > MaxLevel {
				return ErrInvalidLevel
			}
			if !validText(input.Location) {
				return ErrInvalidLocation
			}
			if caller.IsSentinel() {
				return ErrInvalidUser
			}
			_, err = ledger.FindIndex(caller, input.Authority)
			if err == nil {
				return ErrDuplicate
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("checking permission index: %w", err)
			}
			if !settings.EndpointSet() {
				return ErrEndpointUnset
			}

			fee, endpoint = settings.Fee, *settings.AuthorityEndpoint
			if fee > 0 {
				if err := tx.Accounts().Transfer(fee, caller, endpoint); err != nil {
					if errors.Is(err, repositories.ErrInsufficientBalance) || errors.Is(err, repositories.ErrSelfTransfer) {
						return fmt.Errorf("%w: %w", ErrTransferFailed, err)
					}
					return fmt.Errorf("transferring grant fee: %w", err)
				}
			}

			permission := models.Permission{
				ID:             settings.NextID,
				User:           caller,
				Authority:      input.Authority,
				Granted:        true,
				Status:         true,
				CrisisID:       input.CrisisID,
				Timestamp:      height,
				Expiry:         input.Expiry,
				PermissionType: input.PermissionType,
				Scope:          input.Scope,
				Level:          input.Level,
				Location:       input.Location,
			}
			if err := ledger.CreatePermission(&permission); err != nil {
				return fmt.Errorf("creating permission: %w", err)
			}
			err = ledger.CreateIndex(&models.PermissionIndex{
				User:         caller,
				Authority:    input.Authority,
				PermissionID: permission.ID,
			})
			if err != nil {
				return fmt.Errorf("indexing permission: %w", err)
			}
			settings.NextID++
			if err := ledger.SaveSettings(settings); err != nil {
				return fmt.Errorf("advancing permission id: %w", err)
			}
			id = permission.ID
			return nil
		})
		if err != nil {
			return events.Event{}, err
		}

		fields := map[string]interface{}{
			"authority":       input.Authority.String(),
			"permission_type": string(input.PermissionType),
			"scope":           input.Scope,
			"level":           input.Level,
			"location":        input.Location,
			"fee":             fee,
			"endpoint":        endpoint.String(),
		}
		if input.CrisisID != nil {
			fields["crisis_id"] = *input.CrisisID
		}
		if input.Expiry != nil {
			fields["expiry"] = *input.Expiry
		}
		return events.New(events.PermissionGranted, height, caller, fields).ForPermission(id), nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Revoke ends the caller's grant to authority and frees the pair for a new
// grant. The record itself is kept with granted and status cleared.
func (s *permissionService) Revoke(ctx context.Context, caller, authority models.Principal) (err error) {
	defer func() { s.finish("revoke", err) }()

	return s.commit(ctx, func(height uint64) (events.Event, error) {
		var id uint64
		err := s.Store.WithContext(ctx).Transaction(func(tx repositories.Store) error {
			ledger := tx.Ledger()
			index, err := ledger.FindIndex(caller, authority)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return fmt.Errorf("checking permission index: %w", err)
			}
			permission, err := ledger.FindPermission(index.PermissionID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return fmt.Errorf("loading permission %d: %w", index.PermissionID, err)
			}
			if permission.User != caller {
				return ErrUnauthorized
			}

			err = ledger.UpdatePermission(permission.ID, map[string]interface{}{
				"granted": false,
				"status":  false,
			})
			if err != nil {
				return fmt.Errorf("revoking permission %d: %w", permission.ID, err)
			}
			if err := ledger.DeleteIndex(caller, authority); err != nil {
				return fmt.Errorf("removing permission index: %w", err)
			}
			id = permission.ID
			return nil
		})
		if err != nil {
			return events.Event{}, err
		}
		return events.New(events.PermissionRevoked, height, caller, map[string]interface{}{
			"authority": authority.String(),
		}).ForPermission(id), nil
	})
}

// Update overwrites granted, crisis id and expiry of a permission in place.
// The pair stays indexed, so an update never makes room for a new grant.
func (s *permissionService) Update(ctx context.Context, caller models.Principal, id uint64, input UpdateInput) (err error) {
	defer func() { s.finish("update", err) }()

	return s.commit(ctx, func(height uint64) (events.Event, error) {
		err := s.Store.WithContext(ctx).Transaction(func(tx repositories.Store) error {
			ledger := tx.Ledger()
			permission, err := ledger.FindPermission(id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return fmt.Errorf("loading permission %d: %w", id, err)
			}
			if permission.User != caller {
				return ErrUnauthorized
			}

			err = ledger.UpdatePermission(id, map[string]interface{}{
				"granted":   input.Granted,
				"crisis_id": input.CrisisID,
				"expiry":    input.Expiry,
				"timestamp": height,
			})
			if err != nil {
				return fmt.Errorf("updating permission %d: %w", id, err)
			}
			err = ledger.SaveUpdate(&models.PermissionUpdate{
				PermissionID:    id,
				UpdateGranted:   input.Granted,
				UpdateCrisisID:  input.CrisisID,
				UpdateExpiry:    input.Expiry,
				Updater:         caller,
				UpdatedAtHeight: height,
			})
			if err != nil {
				return fmt.Errorf("recording update of permission %d: %w", id, err)
			}
			return nil
		})
		if err != nil {
			return events.Event{}, err
		}

		fields := map[string]interface{}{"granted": input.Granted}
		if input.CrisisID != nil {
			fields["crisis_id"] = *input.CrisisID
		}
		if input.Expiry != nil {
			fields["expiry"] = *input.Expiry
		}
		return events.New(events.PermissionUpdated, height, caller, fields).ForPermission(id), nil
	})
}

// Permission retrieves a single permission by its ID.
func (s *permissionService) Permission(ctx context.Context, id uint64) (*models.Permission, error) {
	var permission *models.Permission
	err := s.Sequencer.Read(func() error {
		var err error
		permission, err = s.Store.WithContext(ctx).Ledger().FindPermission(id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("loading permission %d: %w", id, err)
		}
		return nil
	})
	return permission, err
}

// PermissionFor retrieves the permission currently indexed for a pair.
func (s *permissionService) PermissionFor(ctx context.Context, user, authority models.Principal) (*models.Permission, error) {
	var permission *models.Permission
	err := s.Sequencer.Read(func() error {
		var err error
		permission, err = lookupIndexed(s.Store.WithContext(ctx).Ledger(), user, authority)
		return err
	})
	return permission, err
}

// UpdateRecord retrieves the last update applied to a permission.
func (s *permissionService) UpdateRecord(ctx context.Context, id uint64) (*models.PermissionUpdate, error) {
	var update *models.PermissionUpdate
	err := s.Sequencer.Read(func() error {
		var err error
		update, err = s.Store.WithContext(ctx).Ledger().FindUpdate(id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("loading update of permission %d: %w", id, err)
		}
		return nil
	})
	return update, err
}

// PermissionsByUser retrieves a paginated list of the permissions a user
// has issued, revoked ones included.
func (s *permissionService) PermissionsByUser(ctx context.Context, user models.Principal, page int, pageSize int) ([]models.Permission, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	var permissions []models.Permission
	var total int64
	err := s.Sequencer.Read(func() error {
		var err error
		permissions, total, err = s.Store.WithContext(ctx).Ledger().FindByUser(user, page, pageSize)
		if err != nil {
			return fmt.Errorf("listing permissions of %s: %w", user, err)
		}
		return nil
	})
	return permissions, total, err
}

// lookupIndexed resolves the index entry of a pair and loads its record.
func lookupIndexed(ledger repositories.LedgerRepository, user, authority models.Principal) (*models.Permission, error) {
	index, err := ledger.FindIndex(user, authority)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("checking permission index: %w", err)
	}
	permission, err := ledger.FindPermission(index.PermissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading permission %d: %w", index.PermissionID, err)
	}
	return permission, nil
}
