package events

import (
	"context"
	"encoding/json"
	"time"

	"permledger/models"

	"github.com/google/uuid"
)

type Kind string

const (
	PermissionGranted Kind = "permission.granted"
	PermissionRevoked Kind = "permission.revoked"
	PermissionUpdated Kind = "permission.updated"
	RoleAssigned      Kind = "role.assigned"
	RoleRevoked       Kind = "role.revoked"
	EndpointSet       Kind = "settings.endpoint_set"
	CapacitySet       Kind = "settings.capacity_set"
	FeeSet            Kind = "settings.fee_set"
)

const eventVersion = "1.0"

// Event is a structured record of a committed ledger change.
type Event struct {
	ID           string                 `json:"id"`
	Kind         Kind                   `json:"kind"`
	Height       uint64                 `json:"height"`
	Timestamp    int64                  `json:"timestamp"`
	Version      string                 `json:"version"`
	PermissionID *uint64                `json:"permission_id,omitempty"`
	Principal    models.Principal       `json:"principal"`
	Fields       map[string]interface{} `json:"fields,omitempty"`
}

// New builds an event for a change made by principal at the given height.
func New(kind Kind, height uint64, principal models.Principal, fields map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Height:    height,
		Timestamp: time.Now().Unix(),
		Version:   eventVersion,
		Principal: principal,
		Fields:    fields,
	}
}

// ForPermission attaches the permission the event is about.
func (e Event) ForPermission(id uint64) Event {
	e.PermissionID = &id
	return e
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Sink receives events after the change they describe has committed. The
// ledger never reads from a sink, and a sink error never undoes a change.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}
