package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// stubRegistry fails Register for failID and Deregister for every ID in
// deregisterErr.
type stubRegistry struct {
	failID        string
	deregisterErr error
	registered    []string
	deregistered  []string
}

func (s *stubRegistry) Register(instance Instance) error {
	if instance.ID == s.failID {
		return errors.New("agent unavailable")
	}
	s.registered = append(s.registered, instance.ID)
	return nil
}

func (s *stubRegistry) Deregister(id string) error {
	s.deregistered = append(s.deregistered, id)
	return s.deregisterErr
}

func (s *stubRegistry) Discover(string, string) ([]string, error) {
	return nil, nil
}

func TestRegisterAll(t *testing.T) {
	instances := []Instance{{ID: "http-1"}, {ID: "grpc-1"}}

	t.Run("All registered", func(t *testing.T) {
		reg := &stubRegistry{}
		deregister, err := RegisterAll(reg, instances, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, []string{"http-1", "grpc-1"}, reg.registered)
		assert.Empty(t, reg.deregistered)

		deregister()
		assert.Equal(t, []string{"http-1", "grpc-1"}, reg.deregistered)
	})

	t.Run("Partial failure rolls back", func(t *testing.T) {
		reg := &stubRegistry{failID: "grpc-1"}
		deregister, err := RegisterAll(reg, instances, zap.NewNop())
		assert.ErrorContains(t, err, "registering grpc-1")
		assert.Equal(t, []string{"http-1"}, reg.deregistered)

		deregister()
		assert.Equal(t, []string{"http-1"}, reg.deregistered)
	})

	t.Run("Deregister failures are logged", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		reg := &stubRegistry{deregisterErr: errors.New("agent gone")}
		deregister, err := RegisterAll(reg, instances, zap.New(core))
		require.NoError(t, err)

		deregister()
		entries := logs.FilterMessage("Failed to deregister service instance").All()
		require.Len(t, entries, 2)
		assert.Equal(t, "http-1", entries[0].ContextMap()["id"])
		assert.Equal(t, "agent gone", entries[0].ContextMap()["error"])
	})
}
