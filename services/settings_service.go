package services

import (
	"context"
	"errors"
	"fmt"

	"permledger/events"
	"permledger/models"
	"permledger/repositories"
)

// SettingsService is the configuration store gating the rest of the ledger.
type SettingsService interface {
	// SetAuthorityEndpoint sets the endpoint once; it can never change after.
	SetAuthorityEndpoint(ctx context.Context, caller, endpoint models.Principal) error
	SetCapacity(ctx context.Context, caller models.Principal, capacity int64) error
	SetFee(ctx context.Context, caller models.Principal, fee int64) error
	Settings(ctx context.Context) (*models.LedgerSettings, error)
	// Bootstrap sets the endpoint on behalf of the service if none is set
	// yet. It reports whether the endpoint was set by this call.
	Bootstrap(ctx context.Context, endpoint models.Principal) (bool, error)
}

type settingsService struct {
	Deps
}

var _ SettingsService = (*settingsService)(nil)

// NewSettingsService creates a new SettingsService instance
func NewSettingsService(deps Deps) SettingsService {
	return &settingsService{Deps: deps}
}

// mutate loads the settings row inside a sequenced transaction, lets fn
// change it and saves it if fn succeeds. A saved change is announced as kind.
func (s *settingsService) mutate(ctx context.Context, caller models.Principal, kind events.Kind, fields map[string]interface{}, fn func(settings *models.LedgerSettings) error) error {
	return s.commit(ctx, func(height uint64) (events.Event, error) {
		err := s.Store.WithContext(ctx).Transaction(func(tx repositories.Store) error {
			settings, err := tx.Ledger().Settings()
			if err != nil {
				return fmt.Errorf("loading ledger settings: %w", err)
			}
			if err := fn(settings); err != nil {
				return err
			}
			if err := tx.Ledger().SaveSettings(settings); err != nil {
				return fmt.Errorf("saving ledger settings: %w", err)
			}
			return nil
		})
		if err != nil {
			return events.Event{}, err
		}
		return events.New(kind, height, caller, fields), nil
	})
}

func (s *settingsService) SetAuthorityEndpoint(ctx context.Context, caller, endpoint models.Principal) (err error) {
	defer func() { s.finish("set_authority_endpoint", err) }()

	fields := map[string]interface{}{"endpoint": endpoint.String()}
	return s.mutate(ctx, caller, events.EndpointSet, fields, func(settings *models.LedgerSettings) error {
		if endpoint.IsSentinel() {
			return ErrInvalidEndpoint
		}
		if settings.EndpointSet() {
			return ErrEndpointAlreadySet
		}
		settings.AuthorityEndpoint = &endpoint
		return nil
	})
}

func (s *settingsService) SetCapacity(ctx context.Context, caller models.Principal, capacity int64) (err error) {
	defer func() { s.finish("set_capacity", err) }()

	fields := map[string]interface{}{"capacity": capacity}
	return s.mutate(ctx, caller, events.CapacitySet, fields, func(settings *models.LedgerSettings) error {
		if capacity <= 0 {
			return ErrInvalidCapacity
		}
		if !settings.EndpointSet() {
			return ErrEndpointUnset
		}
		settings.Capacity = uint64(capacity)
		return nil
	})
}

func (s *settingsService) SetFee(ctx context.Context, caller models.Principal, fee int64) (err error) {
	defer func() { s.finish("set_fee", err) }()

	fields := map[string]interface{}{"fee": fee}
	return s.mutate(ctx, caller, events.FeeSet, fields, func(settings *models.LedgerSettings) error {
		if fee < 0 {
			return ErrInvalidFee
		}
		if !settings.EndpointSet() {
			return ErrEndpointUnset
		}
		settings.Fee = uint64(fee)
		return nil
	})
}

func (s *settingsService) Settings(ctx context.Context) (*models.LedgerSettings, error) {
	var settings *models.LedgerSettings
	err := s.Sequencer.Read(func() error {
		var err error
		settings, err = s.Store.WithContext(ctx).Ledger().Settings()
		if err != nil {
			return fmt.Errorf("loading ledger settings: %w", err)
		}
		return nil
	})
	return settings, err
}

func (s *settingsService) Bootstrap(ctx context.Context, endpoint models.Principal) (bool, error) {
	err := s.SetAuthorityEndpoint(ctx, models.SystemPrincipal, endpoint)
	if errors.Is(err, ErrEndpointAlreadySet) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
