package services

import (
	"context"
	"sync"
	"testing"

	"permledger/clock"
	"permledger/database"
	"permledger/events"
	"permledger/metrics"
	"permledger/models"
	"permledger/repositories"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	userA     models.Principal = "A"
	authB     models.Principal = "B"
	authC     models.Principal = "C"
	endpointE models.Principal = "E"
)

// recorder is an events.Sink that keeps everything it receives
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]events.Kind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type testLedger struct {
	*Ledger
	store   repositories.Store
	clock   *clock.Manual
	events  *recorder
	metrics *metrics.Metrics
}

// setupLedger builds a ledger over a fresh in-memory database seeded with
// capacity 10000, fee 500 and the given balances. The endpoint is not set.
func setupLedger(t *testing.T, balances map[string]uint64) *testLedger {
	t.Helper()
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.SeedInitialData(db, database.Seed{Capacity: 10000, Fee: 500, Balances: balances}, zap.NewNop()))

	tl := &testLedger{
		store:   repositories.NewStore(db),
		clock:   clock.NewManual(1),
		events:  &recorder{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	tl.Ledger = NewLedger(NewDeps(tl.store, tl.clock, tl.events, zap.NewNop(), tl.metrics))
	return tl
}

// setupConfiguredLedger is setupLedger with the endpoint set to E and
// A funded with 10000.
func setupConfiguredLedger(t *testing.T) *testLedger {
	t.Helper()
	tl := setupLedger(t, map[string]uint64{"A": 10000})
	require.NoError(t, tl.Settings.SetAuthorityEndpoint(context.Background(), "admin", endpointE))
	return tl
}

func readGrant(authority models.Principal) GrantInput {
	return GrantInput{
		Authority:      authority,
		PermissionType: models.PermissionRead,
		Scope:          "loc",
		Level:          5,
		Location:       "CityZ",
	}
}

func (tl *testLedger) balance(t *testing.T, p models.Principal) uint64 {
	t.Helper()
	b, err := tl.Accounts.Balance(context.Background(), p)
	require.NoError(t, err)
	return b
}

func (tl *testLedger) nextID(t *testing.T) uint64 {
	t.Helper()
	s, err := tl.Settings.Settings(context.Background())
	require.NoError(t, err)
	return s.NextID
}

func u64(v uint64) *uint64 {
	return &v
}
