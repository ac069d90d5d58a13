package registry

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Instance is one network endpoint of the ledger as seen by the registry.
type Instance struct {
	ID      string
	Name    string
	Address string
	Port    int
	Tags    []string
	Meta    map[string]string
	Check   *consulapi.AgentServiceCheck
}

// ServiceRegistry defines the interface for service registration and discovery.
type ServiceRegistry interface {
	Register(instance Instance) error
	// Deregister removes an instance using its unique ID.
	Deregister(id string) error
	// Discover finds healthy instances of a service by name and optional tag.
	// Returns a list of "host:port" strings.
	Discover(name string, tag string) ([]string, error)
}

// RegisterAll registers every instance. If one fails, the instances already
// registered are deregistered again before the error is returned. The
// returned func deregisters everything and logs failures.
func RegisterAll(reg ServiceRegistry, instances []Instance, logger *zap.Logger) (func(), error) {
	var done []Instance
	deregister := func() {
		for _, inst := range done {
			if err := reg.Deregister(inst.ID); err != nil {
				logger.Warn("Failed to deregister service instance", zap.String("id", inst.ID), zap.Error(err))
			}
		}
	}
	for _, inst := range instances {
		if err := reg.Register(inst); err != nil {
			deregister()
			return func() {}, fmt.Errorf("registering %s: %w", inst.ID, err)
		}
		done = append(done, inst)
	}
	return deregister, nil
}
