package services

import (
	"errors"
	"fmt"
)

// Category groups ledger errors by what went wrong.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryState         Category = "state"
	CategoryAuthorization Category = "authorization"
	CategoryConfiguration Category = "configuration"
	CategoryExternal      Category = "external"
)

// LedgerError is a failure with a stable numeric code. Operations return the
// package-level values below, possibly wrapped; compare with errors.Is.
type LedgerError struct {
	Code     uint32
	Name     string
	Category Category
	Message  string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s (err u%d)", e.Message, e.Code)
}

func newLedgerError(code uint32, name string, category Category, message string) *LedgerError {
	return &LedgerError{Code: code, Name: name, Category: category, Message: message}
}

var (
	ErrUnauthorized        = newLedgerError(100, "unauthorized", CategoryAuthorization, "caller does not own the permission")
	ErrNotFound            = newLedgerError(101, "not_found", CategoryState, "permission not found")
	ErrDuplicate           = newLedgerError(102, "duplicate", CategoryState, "permission already exists for this user and authority")
	ErrInvalidAuthority    = newLedgerError(103, "invalid_authority", CategoryValidation, "invalid authority")
	ErrInvalidUser         = newLedgerError(104, "invalid_user", CategoryValidation, "invalid user")
	ErrInvalidType         = newLedgerError(105, "invalid_type", CategoryValidation, "permission type must be read, write or admin")
	ErrInvalidScope        = newLedgerError(106, "invalid_scope", CategoryValidation, "scope must be 1 to 100 characters")
	ErrInvalidLevel        = newLedgerError(107, "invalid_level", CategoryValidation, "level must be between 0 and 10")
	ErrInvalidLocation     = newLedgerError(108, "invalid_location", CategoryValidation, "location must be 1 to 100 characters")
	ErrCapacityReached     = newLedgerError(109, "capacity_reached", CategoryState, "permission capacity reached")
	ErrEndpointUnset       = newLedgerError(110, "endpoint_unset", CategoryConfiguration, "authority endpoint is not set")
	ErrEndpointAlreadySet  = newLedgerError(111, "endpoint_already_set", CategoryConfiguration, "authority endpoint is already set")
	ErrInvalidEndpoint     = newLedgerError(112, "invalid_endpoint", CategoryValidation, "invalid authority endpoint")
	ErrInvalidCapacity     = newLedgerError(113, "invalid_capacity", CategoryValidation, "capacity must be greater than zero")
	ErrInvalidFee          = newLedgerError(114, "invalid_fee", CategoryValidation, "fee must not be negative")
	ErrInvalidRole         = newLedgerError(115, "invalid_role", CategoryValidation, "role must be admin, moderator or user")
	ErrRoleAlreadyAssigned = newLedgerError(116, "role_already_assigned", CategoryState, "role already assigned")
	ErrRoleNotFound        = newLedgerError(117, "role_not_found", CategoryState, "role not assigned")
	ErrTransferFailed      = newLedgerError(118, "transfer_failed", CategoryExternal, "fee transfer failed")
)

// AsLedgerError extracts the LedgerError carried by err, if any.
func AsLedgerError(err error) (*LedgerError, bool) {
	var lerr *LedgerError
	if errors.As(err, &lerr) {
		return lerr, true
	}
	return nil, false
}

// outcome names the result of an operation for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if lerr, ok := AsLedgerError(err); ok {
		return lerr.Name
	}
	return "internal"
}
