package registry

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

const (
	checkInterval = "10s"
	checkTimeout  = "2s"
)

type consulRegistry struct {
	client *consulapi.Client
	logger *zap.SugaredLogger
}

var _ ServiceRegistry = (*consulRegistry)(nil)

// NewConsulRegistry creates a registry backed by the Consul agent at address
// and checks that the agent answers.
func NewConsulRegistry(address string, logger *zap.SugaredLogger) (ServiceRegistry, error) {
	consulConfig := consulapi.DefaultConfig()
	consulConfig.Address = address

	client, err := consulapi.NewClient(consulConfig)
	if err != nil {
		logger.Errorw("Failed to create Consul client", "address", address, "error", err)
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	if _, err := client.Agent().NodeName(); err != nil {
		logger.Errorw("Failed to connect to Consul agent", "address", address, "error", err)
		return nil, fmt.Errorf("cannot connect to consul agent at %s: %w", address, err)
	}
	logger.Infow("Successfully connected to Consul agent", "address", address)

	return &consulRegistry{
		client: client,
		logger: logger.Named("ConsulRegistry"),
	}, nil
}

// Register registers a service instance with Consul, including its health check.
func (r *consulRegistry) Register(instance Instance) error {
	reg := &consulapi.AgentServiceRegistration{
		ID:      instance.ID,
		Name:    instance.Name,
		Tags:    instance.Tags,
		Port:    instance.Port,
		Address: instance.Address,
		Meta:    instance.Meta,
		Check:   instance.Check,
	}

	if err := r.client.Agent().ServiceRegister(reg); err != nil {
		r.logger.Errorw("Failed to register service with Consul", "service_id", instance.ID, "service_name", instance.Name, "address", instance.Address, "port", instance.Port, "error", err)
		return fmt.Errorf("failed to register service '%s': %w", instance.Name, err)
	}
	r.logger.Infow("Successfully registered service with Consul", "service_id", instance.ID, "service_name", instance.Name, "address", instance.Address, "port", instance.Port)
	return nil
}

// Deregister removes a service instance from Consul.
func (r *consulRegistry) Deregister(id string) error {
	if err := r.client.Agent().ServiceDeregister(id); err != nil {
		r.logger.Errorw("Failed to deregister service from Consul", "service_id", id, "error", err)
		return fmt.Errorf("failed to deregister service '%s': %w", id, err)
	}
	r.logger.Infow("Successfully deregistered service from Consul", "service_id", id)
	return nil
}

// Discover finds healthy instances of a service in Consul.
func (r *consulRegistry) Discover(name string, tag string) ([]string, error) {
	instances, _, err := r.client.Health().Service(name, tag, true, nil)
	if err != nil {
		r.logger.Warnw("Failed to discover service from Consul", "service_name", name, "tag", tag, "error", err)
		return nil, fmt.Errorf("failed to discover service '%s': %w", name, err)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("no healthy instances found for service '%s'", name)
	}

	addrs := make([]string, 0, len(instances))
	for _, inst := range instances {
		// Prefer Service.Address, fallback to Node.Address
		addr := inst.Service.Address
		if addr == "" {
			addr = inst.Node.Address
		}
		addrs = append(addrs, fmt.Sprintf("%s:%d", addr, inst.Service.Port))
	}
	r.logger.Debugw("Discovered healthy service instances", "service_name", name, "tag", tag, "count", len(addrs))
	return addrs, nil
}

// LedgerInstances describes the REST and gRPC endpoints of one ledger
// process. Both share the service name and are told apart by tag.
func LedgerInstances(serviceName, host string, httpPort, grpcPort int, grpcService string) []Instance {
	httpID := fmt.Sprintf("%s-http-%s-%d", serviceName, host, httpPort)
	grpcID := fmt.Sprintf("%s-grpc-%s-%d", serviceName, host, grpcPort)
	return []Instance{
		{
			ID:      httpID,
			Name:    serviceName,
			Address: host,
			Port:    httpPort,
			Tags:    []string{"http"},
			Meta:    map[string]string{"protocol": "http"},
			Check:   CreateHTTPCheck(httpID, host, httpPort, "/health", checkInterval, checkTimeout),
		},
		{
			ID:      grpcID,
			Name:    serviceName,
			Address: host,
			Port:    grpcPort,
			Tags:    []string{"grpc"},
			Meta:    map[string]string{"protocol": "grpc"},
			Check:   CreateGRPCCheck(grpcID, fmt.Sprintf("%s:%d/%s", host, grpcPort, grpcService), checkInterval, checkTimeout, false),
		},
	}
}

// CreateHTTPCheck creates a Consul HTTP health check configuration.
func CreateHTTPCheck(serviceID, serviceHost string, servicePort int, checkPath string, interval, timeout string) *consulapi.AgentServiceCheck {
	return &consulapi.AgentServiceCheck{
		CheckID:                        fmt.Sprintf("check_%s_http", serviceID),
		Name:                           fmt.Sprintf("HTTP Check for %s", serviceID),
		HTTP:                           fmt.Sprintf("http://%s:%d%s", serviceHost, servicePort, checkPath),
		Method:                         "GET",
		Interval:                       interval,
		Timeout:                        timeout,
		DeregisterCriticalServiceAfter: "1m",
	}
}

// CreateGRPCCheck creates a Consul gRPC health check configuration.
// grpcTarget is "host:port" optionally followed by "/service".
func CreateGRPCCheck(serviceID, grpcTarget string, interval, timeout string, useTLS bool) *consulapi.AgentServiceCheck {
	return &consulapi.AgentServiceCheck{
		CheckID:                        fmt.Sprintf("check_%s_grpc", serviceID),
		Name:                           fmt.Sprintf("gRPC Check for %s", serviceID),
		GRPC:                           grpcTarget,
		GRPCUseTLS:                     useTLS,
		Interval:                       interval,
		Timeout:                        timeout,
		DeregisterCriticalServiceAfter: "1m",
	}
}
