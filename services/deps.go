package services

import (
	"context"

	"permledger/clock"
	"permledger/events"
	"permledger/metrics"
	"permledger/repositories"

	"go.uber.org/zap"
)

// Deps is what every ledger service is built from. Services built from the
// same Deps share one Sequencer and therefore one operation order.
type Deps struct {
	Store     repositories.Store
	Clock     clock.Clock
	Sink      events.Sink
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Sequencer *Sequencer
}

// NewDeps fills in a fresh Sequencer and defaults for the optional parts.
// sink, logger and m may be nil.
func NewDeps(store repositories.Store, c clock.Clock, sink events.Sink, logger *zap.Logger, m *metrics.Metrics) Deps {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Deps{
		Store:     store,
		Clock:     c,
		Sink:      sink,
		Logger:    logger,
		Metrics:   m,
		Sequencer: &Sequencer{},
	}
}

// commit runs a mutation with exclusive access at the current height. When
// fn succeeds, its event is emitted before the lock is released, so the event
// stream follows commit order.
func (d Deps) commit(ctx context.Context, fn func(height uint64) (events.Event, error)) error {
	return d.Sequencer.Write(func() error {
		e, err := fn(d.Clock.Height())
		if err != nil {
			return err
		}
		d.emit(ctx, e)
		return nil
	})
}

// emit hands a committed change to the sink. Delivery failures are logged
// and otherwise ignored.
func (d Deps) emit(ctx context.Context, e events.Event) {
	if err := d.Sink.Emit(ctx, e); err != nil {
		d.Logger.Warn("Failed to deliver ledger event",
			zap.String("event_id", e.ID),
			zap.String("kind", string(e.Kind)),
			zap.Error(err),
		)
	}
}

// finish records an operation's outcome and logs unexpected failures.
func (d Deps) finish(operation string, err error) {
	d.Metrics.ObserveOperation(operation, outcome(err))
	if err != nil {
		if _, ok := AsLedgerError(err); !ok {
			d.Logger.Error("Ledger operation failed", zap.String("operation", operation), zap.Error(err))
		}
	}
}

// Ledger bundles the ledger's services over one set of Deps.
type Ledger struct {
	Settings    SettingsService
	Permissions PermissionService
	Access      AccessService
	Roles       RoleService
	Accounts    AccountService
}

func NewLedger(deps Deps) *Ledger {
	return &Ledger{
		Settings:    NewSettingsService(deps),
		Permissions: NewPermissionService(deps),
		Access:      NewAccessService(deps),
		Roles:       NewRoleService(deps),
		Accounts:    NewAccountService(deps),
	}
}
