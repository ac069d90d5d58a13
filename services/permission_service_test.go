package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"permledger/events"
	"permledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGrantExampleScenario(t *testing.T) {
	ctx := context.Background()
	tl := setupConfiguredLedger(t)

	id, err := tl.Permissions.Grant(ctx, userA, readGrant(authB))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
	assert.Equal(t, uint64(9500), tl.balance(t, userA))
	assert.Equal(t, uint64(500), tl.balance(t, endpointE))

	ok, err := tl.Access.HasAccess(ctx, userA, authB)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = tl.Permissions.Grant(ctx, userA, readGrant(authB))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, uint64(9500), tl.balance(t, userA))

	require.NoError(t, tl.Permissions.Revoke(ctx, userA, authB))
	ok, err = tl.Access.HasAccess(ctx, userA, authB)
	require.NoError(t, err)
	assert.False(t, ok)

	id, err = tl.Permissions.Grant(ctx, userA, readGrant(authB))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, uint64(9000), tl.balance(t, userA))
	assert.Equal(t, uint64(1000), tl.balance(t, endpointE))

	old, err := tl.Permissions.Permission(ctx, 0)
	require.NoError(t, err)
	assert.False(t, old.Granted)
	assert.False(t, old.Status)

	assert.Equal(t, []events.Kind{
		events.EndpointSet,
		events.PermissionGranted,
		events.PermissionRevoked,
		events.PermissionGranted,
	}, tl.events.kinds())
}

func TestGrantRecordsPermission(t *testing.T) {
	ctx := context.Background()
	tl := setupConfiguredLedger(t)
	tl.clock.Set(42)

	input := readGrant(authB)
	input.CrisisID = u64(7)
	input.Expiry = u64(100)
	id, err := tl.Permissions.Grant(ctx, userA, input)
	require.NoError(t, err)

	p, err := tl.Permissions.PermissionFor(ctx, userA, authB)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, userA, p.User)
	assert.Equal(t, authB, p.Authority)
	assert.True(t, p.Granted)
	assert.True(t, p.Status)
	assert.Equal(t, uint64(42), p.Timestamp)
	require.NotNil(t, p.CrisisID)
	assert.Equal(t, uint64(7), *p.CrisisID)
	require.NotNil(t, p.Expiry)
	assert.Equal(t, uint64(100), *p.Expiry)
	assert.Equal(t, models.PermissionRead, p.PermissionType)
	assert.Equal(t, "loc", p.Scope)
	assert.Equal(t, uint64(5), p.Level)
	assert.Equal(t, "CityZ", p.Location)

	e := tl.events.last()
	assert.Equal(t, events.PermissionGranted, e.Kind)
	assert.Equal(t, uint64(42), e.Height)
	require.NotNil(t, e.PermissionID)
	assert.Equal(t, id, *e.PermissionID)
	assert.Equal(t, uint64(500), e.Fields["fee"])
}

func TestGrantValidation(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("x", MaxTextLength+1)
	wide := strings.Repeat("é", MaxTextLength)

	tests := []struct {
		name   string
		caller models.Principal
		modify func(in *GrantInput)
		want   error
	}{
		{"Sentinel authority", userA, func(in *GrantInput) { in.Authority = models.SentinelPrincipal }, ErrInvalidAuthority},
		{"Unknown type", userA, func(in *GrantInput) { in.PermissionType = "execute" }, ErrInvalidType},
		{"Empty scope", userA, func(in *GrantInput) { in.Scope = "" }, ErrInvalidScope},
		{"Long scope", userA, func(in *GrantInput) { in.Scope = long }, ErrInvalidScope},
		{"Level above max", userA, func(in *GrantInput) { in.Level = MaxLevel + 1 }, ErrInvalidLevel},
		{"Empty location", userA, func(in *GrantInput) { in.Location = "" }, ErrInvalidLocation},
		{"Long location", userA, func(in *GrantInput) { in.Location = long }, ErrInvalidLocation},
		{"Sentinel user", models.SentinelPrincipal, func(in *GrantInput) {}, ErrInvalidUser},
		{"Max level", userA, func(in *GrantInput) { in.Level = MaxLevel }, nil},
		{"Multibyte text at limit", userA, func(in *GrantInput) { in.Scope = wide; in.Location = wide }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := setupConfiguredLedger(t)
			input := readGrant(authB)
			tt.modify(&input)

			_, err := tl.Permissions.Grant(ctx, tt.caller, input)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, uint64(0), tl.nextID(t))
			assert.Equal(t, uint64(10000), tl.balance(t, userA))
			assert.Equal(t, uint64(0), tl.balance(t, endpointE))
		})
	}
}

func TestGrantCheckOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("Capacity before authority", func(t *testing.T) {
		tl := setupConfiguredLedger(t)
		require.NoError(t, tl.Settings.SetCapacity(ctx, "admin", 1))
		_, err := tl.Permissions.Grant(ctx, userA, readGrant(authB))
		require.NoError(t, err)

		input := readGrant(models.SentinelPrincipal)
		_, err = tl.Permissions.Grant(ctx, userA, input)
		assert.ErrorIs(t, err, ErrCapacityReached)
	})

	t.Run("Authority before type", func(t *testing.T) {
		tl := setupConfiguredLedger(t)
		input := readGrant(models.SentinelPrincipal)
		input.PermissionType = "bogus"
		_, err := tl.Permissions.Grant(ctx, userA, input)
		assert.ErrorIs(t, err, ErrInvalidAuthority)
	})

	t.Run("Type before scope", func(t *testing.T) {
		tl := setupConfiguredLedger(t)
		input := readGrant(authB)
		input.PermissionType = "bogus"
		input.Scope = ""
		_, err := tl.Permissions.Grant(ctx, userA, input)
		assert.ErrorIs(t, err, ErrInvalidType)
	})

	t.Run("Level before location", func(t *testing.T) {
		tl := setupConfiguredLedger(t)
		input := readGrant(authB)
		input.Level = 99
		input.Location = ""
		_, err := tl.Permissions.Grant(ctx, userA, input)
		assert.ErrorIs(t, err, ErrInvalidLevel)
	})

	t.Run("User before endpoint", func(t *testing.T) {
		tl := setupLedger(t, nil)
		_, err := tl.Permissions.Grant(ctx, models.SentinelPrincipal, readGrant(authB))
		assert.ErrorIs(t, err, ErrInvalidUser)
	})

	t.Run("Validation before endpoint", func(t *testing.T) {
		tl := setupLedger(t, nil)
		input := readGrant(authB)
		input.Level = 11
		_, err := tl.Permissions.Grant(ctx, userA, input)
		assert.ErrorIs(t, err, ErrInvalidLevel)
	})

	t.Run("Endpoint unset", func(t *testing.T) {
		tl := setupLedger(t, map[string]uint64{"A": 10000})
		_, err := tl.Permissions.Grant(ctx, userA, readGrant(authB))
		assert.ErrorIs(t, err, ErrEndpointUnset)
		assert.Equal(t, uint64(10000), tl.balance(t, userA))
	})
}

func TestGrantCapacity(t *testing.T) {
	ctx := context.Background()
	tl := setupConfiguredLedger(t)
	require.NoError(t, tl.Settings.SetCapacity(ctx, "admin", 2))

	_, err := tl.Permissions.Grant(ctx, userA, readGrant(authB))
	require.NoError(t, err)
	_, err = tl.Permissions.Grant(ctx, userA, readGrant(authC))
	require.NoError(t, err)

	_, err = tl.Permissions.Grant(ctx, userA, readGrant("D"))
	assert.ErrorIs(t, err, ErrCapacityReached)
	assert.Equal(t, uint64(2), tl.nextID(t))
	assert.Equal(t, uint64(9000), tl.balance(t, userA))
	assert.Equal(t, uint64(1000), tl.balance(t, endpointE))

	_, err = tl.Permissions.PermissionFor(ctx, userA, "D")
	assert.ErrorIs(t, err, ErrNotFound)

	t.Run("Revoke does not free capacity", func(t *testing.T) {
		require.NoError(t, tl.Permissions.Revoke(ctx, userA, authB))
		_, err := tl.Permissions.Grant(ctx, userA, readGrant(authB))
		assert.ErrorIs(t, err, ErrCapacityReached)
	})

	t.Run("Capacity below next id", func(t *testing.T) {
		require.NoError(t, tl.Settings.SetCapacity(ctx, "admin", 1))
		_, err := tl.Permissions.Grant(ctx, userA, readGrant("D"))
		assert.ErrorIs(t, err, ErrCapacityReached)
	})
}

func TestGrantTransferFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("Insufficient balance", func(t *testing.T) {
		tl := setupLedger(t, map[string]uint64{"P": 100})
		require.NoError(t, tl.Settings.SetAuthorityEndpoint(ctx, "admin", endpointE))

		_, err := tl.Permissions.Grant(ctx, "P", readGrant(authB))
		assert.ErrorIs(t, err, ErrTransferFailed)
		assert.ErrorContains(t, err, "insufficient balance")

		assert.Equal(t, uint64(100), tl.balance(t, "P"))
		assert.Equal(t, uint64(0), tl.balance(t, endpointE))
		assert.Equal(t, uint64(0), tl.nextID(t))
		_, err = tl.Permissions.PermissionFor(ctx, "P", authB)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = tl.Permissions.Permission(ctx, 0)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, []events.Kind{events.EndpointSet}, tl.events.kinds())
	})

	t.Run("Unfunded caller", func(t *testing.T) {
		tl := setupConfiguredLedger(t)
		_, err := tl.Permissions.Grant(ctx, "nobody", readGrant(authB))
		assert.ErrorIs(t, err, ErrTransferFailed)
	})

	t.Run("Endpoint granting", func(t *testing.T) {
		tl := setupLedger(t, map[string]uint64{"E": 10000})
		require.NoError(t, tl.Settings.SetAuthorityEndpoint(ctx, "admin", endpointE))

		_, err := tl.Permissions.Grant(ctx, endpointE, readGrant(authB))
		assert.ErrorIs(t, err, ErrTransferFailed)
		assert.Equal(t, uint64(10000), tl.balance(t, endpointE))
		assert.Equal(t, uint64(0), tl.nextID(t))
	})
}

func TestGrantWithZeroFee(t *testing.T) {
	ctx := context.Background()
	tl := setupLedger(t, nil)
	require.NoError(t, tl.Settings.SetAuthorityEndpoint(ctx, "admin", endpointE))
	require.NoError(t, tl.Settings.SetFee(ctx, "admin", 0))

	id, err := tl.Permissions.Grant(ctx, "broke", readGrant(authB))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
	assert.Equal(t, uint64(0), tl.balance(t, endpointE))
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	tl := setupConfiguredLedger(t)

	t.Run("Not found", func(t *testing.T) {
		assert.ErrorIs(t, tl.Permissions.Revoke(ctx, userA, authB), ErrNotFound)
	})

	_, err := tl.Permissions.Grant(ctx, userA, readGrant(authB))
	require.NoError(t, err)

	t.Run("Other user's pair", func(t *testing.T) {
		assert.ErrorIs(t, tl.Permissions.Revoke(ctx, authB, userA), ErrNotFound)
	})

	require.NoError(t, tl.Permissions.Revoke(ctx, userA, authB))

	t.Run("Twice", func(t *testing.T) {
		assert.ErrorIs(t, tl.Permissions.Revoke(ctx, userA, authB), ErrNotFound)
	})

	e := tl.events.last()
	assert.Equal(t, events.PermissionRevoked, e.Kind)
	require.NotNil(t, e.PermissionID)
	assert.Equal(t, uint64(0), *e.PermissionID)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	tl := setupConfiguredLedger(t)

	id, err := tl.Permissions.Grant(ctx, userA, readGrant(authB))
	require.NoError(t, err)

	t.Run("Not found", func(t *testing.T) {
		err := tl.Permissions.Update(ctx, userA, 99, UpdateInput{Granted: true})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Not owner", func(t *testing.T) {
		err := tl.Permissions.Update(ctx, authB, id, UpdateInput{Granted: false})
		assert.ErrorIs(t, err, ErrUnauthorized)
		ok, err := tl.Access.HasAccess(ctx, userA, authB)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Suspend keeps pair indexed", func(t *testing.T) {
		tl.clock.Set(20)
		require.NoError(t, tl.Permissions.Update(ctx, userA, id, UpdateInput{Granted: false, CrisisID: u64(3)}))

		ok, err := tl.Access.HasAccess(ctx, userA, authB)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = tl.Permissions.Grant(ctx, userA, readGrant(authB))
		assert.ErrorIs(t, err, ErrDuplicate)

		p, err := tl.Permissions.Permission(ctx, id)
		require.NoError(t, err)
		assert.False(t, p.Granted)
		assert.True(t, p.Status)
		assert.Equal(t, uint64(20), p.Timestamp)
		require.NotNil(t, p.CrisisID)
		assert.Equal(t, uint64(3), *p.CrisisID)
	})

	t.Run("Resume and clear crisis", func(t *testing.T) {
		tl.clock.Set(30)
		require.NoError(t, tl.Permissions.Update(ctx, userA, id, UpdateInput{Granted: true, Expiry: u64(50)}))

		ok, err := tl.Access.HasAccess(ctx, userA, authB)
		require.NoError(t, err)
		assert.True(t, ok)

		p, err := tl.Permissions.Permission(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, p.CrisisID)
		require.NotNil(t, p.Expiry)
		assert.Equal(t, uint64(50), *p.Expiry)
	})

	t.Run("History keeps only the last update", func(t *testing.T) {
		update, err := tl.Permissions.UpdateRecord(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, update.PermissionID)
		assert.True(t, update.UpdateGranted)
		assert.Nil(t, update.UpdateCrisisID)
		require.NotNil(t, update.UpdateExpiry)
		assert.Equal(t, uint64(50), *update.UpdateExpiry)
		assert.Equal(t, userA, update.Updater)
		assert.Equal(t, uint64(30), update.UpdatedAtHeight)
	})

	t.Run("No history for untouched permission", func(t *testing.T) {
		_, err := tl.Permissions.Grant(ctx, userA, readGrant(authC))
		require.NoError(t, err)
		_, err = tl.Permissions.UpdateRecord(ctx, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Revoked record stays off", func(t *testing.T) {
		require.NoError(t, tl.Permissions.Revoke(ctx, userA, authC))
		require.NoError(t, tl.Permissions.Update(ctx, userA, 1, UpdateInput{Granted: true}))

		p, err := tl.Permissions.Permission(ctx, 1)
		require.NoError(t, err)
		assert.True(t, p.Granted)
		assert.False(t, p.Status)
		ok, err := tl.Access.HasAccess(ctx, userA, authC)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestFullRangeExpiryAndCrisisID(t *testing.T) {
	ctx := context.Background()
	tl := setupConfiguredLedger(t)

	t.Run("Grant", func(t *testing.T) {
		input := readGrant(authB)
		input.Expiry = u64(math.MaxUint64)
		input.CrisisID = u64(math.MaxUint64)
		id, err := tl.Permissions.Grant(ctx, userA, input)
		require.NoError(t, err)

		p, err := tl.Permissions.Permission(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, p.Expiry)
		assert.Equal(t, uint64(math.MaxUint64), *p.Expiry)
		require.NotNil(t, p.CrisisID)
		assert.Equal(t, uint64(math.MaxUint64), *p.CrisisID)

		ok, err := tl.Access.HasAccess(ctx, userA, authB)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(9500), tl.balance(t, userA))
	})

	t.Run("Update", func(t *testing.T) {
		id, err := tl.Permissions.Grant(ctx, userA, readGrant(authC))
		require.NoError(t, err)

		big := uint64(math.MaxInt64) + 1
		require.NoError(t, tl.Permissions.Update(ctx, userA, id, UpdateInput{
			Granted:  true,
			CrisisID: u64(big),
			Expiry:   u64(math.MaxUint64),
		}))

		p, err := tl.Permissions.Permission(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, p.Expiry)
		assert.Equal(t, uint64(math.MaxUint64), *p.Expiry)
		require.NotNil(t, p.CrisisID)
		assert.Equal(t, big, *p.CrisisID)

		update, err := tl.Permissions.UpdateRecord(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, update.UpdateExpiry)
		assert.Equal(t, uint64(math.MaxUint64), *update.UpdateExpiry)
		require.NotNil(t, update.UpdateCrisisID)
		assert.Equal(t, big, *update.UpdateCrisisID)

		ok, err := tl.Access.HasAccess(ctx, userA, authC)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestPermissionsByUser(t *testing.T) {
	ctx := context.Background()
	tl := setupConfiguredLedger(t)

	for _, authority := range []models.Principal{authB, authC, "D"} {
		_, err := tl.Permissions.Grant(ctx, userA, readGrant(authority))
		require.NoError(t, err)
	}
	require.NoError(t, tl.Permissions.Revoke(ctx, userA, authC))

	permissions, total, err := tl.Permissions.PermissionsByUser(ctx, userA, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, permissions, 2)

	permissions, _, err = tl.Permissions.PermissionsByUser(ctx, userA, 2, 2)
	require.NoError(t, err)
	assert.Len(t, permissions, 1)

	permissions, total, err = tl.Permissions.PermissionsByUser(ctx, authB, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, permissions)
}

func TestSinkFailureDoesNotUndoGrant(t *testing.T) {
	ctx := context.Background()
	tl := setupConfiguredLedger(t)

	failing := events.SinkFunc(func(context.Context, events.Event) error {
		return errors.New("broker down")
	})
	ledger := NewLedger(NewDeps(tl.store, tl.clock, failing, zap.NewNop(), nil))

	id, err := ledger.Permissions.Grant(ctx, userA, readGrant(authB))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	ok, err := ledger.Access.HasAccess(ctx, userA, authB)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventsFollowCommitOrder(t *testing.T) {
	ctx := context.Background()
	tl := setupConfiguredLedger(t)

	const grants = 16
	var wg sync.WaitGroup
	for i := 0; i < grants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tl.Permissions.Grant(ctx, userA, readGrant(models.Principal(fmt.Sprintf("auth-%d", i))))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var ids []uint64
	for _, e := range tl.events.all() {
		if e.Kind == events.PermissionGranted {
			require.NotNil(t, e.PermissionID)
			ids = append(ids, *e.PermissionID)
		}
	}
	require.Len(t, ids, grants)
	for i, id := range ids {
		assert.Equal(t, uint64(i), id)
	}
}
