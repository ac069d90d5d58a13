package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"permledger/auth"
	"permledger/clock"
	"permledger/config"
	"permledger/controllers"
	"permledger/database"
	"permledger/events"
	grpcserver "permledger/grpc_server"
	"permledger/metrics"
	"permledger/models"
	"permledger/registry"
	"permledger/repositories"
	"permledger/services"

	jujuclock "github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newLogger(level string) *zap.Logger {
	var logger *zap.Logger
	var err error
	switch level {
	case "debug":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(fmt.Errorf("building logger: %w", err))
	}
	return logger
}

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	config.InitConfig(flags)
	cfg := config.AppConfig

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync() // Make sure the buffer is flushed before the program exits

	auth.SetSigningKey([]byte(cfg.JwtSecret))
	auth.SetTokenTTL(cfg.TokenTTL)

	if cfg.IssueToken != "" {
		token, err := auth.GenerateToken(models.Principal(cfg.IssueToken))
		if err != nil {
			logger.Fatal("Failed to issue token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}
	if cfg.HashSecret != "" {
		hashed, err := auth.HashSecret(cfg.HashSecret)
		if err != nil {
			logger.Fatal("Failed to hash secret", zap.Error(err))
		}
		fmt.Println(hashed)
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Permission ledger stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seed := database.Seed{Capacity: cfg.DefaultCapacity, Fee: cfg.DefaultFee, Balances: cfg.Balances()}
	db, err := database.InitDB(cfg.DatabaseDriver, cfg.DatabaseURL, seed, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sinks := events.Fanout{events.NewLogSink(logger)}
	if cfg.AuditLog {
		sinks = append(sinks, events.NewAuditSink(db))
	}
	if cfg.RabbitMQURL != "" {
		publisher, err := events.NewPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			return fmt.Errorf("connecting to rabbitmq: %w", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	blockClock := clock.NewBlockHeight(jujuclock.WallClock, cfg.Clock.Genesis, cfg.Clock.BlockInterval)
	deps := services.NewDeps(repositories.NewStore(db), blockClock, sinks, logger, m)
	ledger := services.NewLedger(deps)

	if cfg.AuthorityEndpoint != "" {
		set, err := ledger.Settings.Bootstrap(ctx, models.Principal(cfg.AuthorityEndpoint))
		if err != nil {
			return fmt.Errorf("bootstrapping authority endpoint: %w", err)
		}
		if set {
			logger.Info("Authority endpoint set from configuration", zap.String("endpoint", cfg.AuthorityEndpoint))
		}
	}

	credentials := cfg.CredentialHashes()
	container := controllers.NewContainer(ledger, controllers.Options{
		Logger:      logger,
		Credentials: credentials,
		HealthCheck: sqlDB.PingContext,
		Metrics:     m.Handler(),
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           container,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcserver.NewServer(ledger, credentials, logger)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listening for gRPC on port %d: %w", cfg.GRPCPort, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("Starting gRPC server", zap.String("addr", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	deregister := func() {}
	if cfg.Consul.Enabled {
		runErr = func() error {
			serviceRegistry, err := registry.NewConsulRegistry(cfg.Consul.Address, logger.Sugar())
			if err != nil {
				return err
			}
			instances := registry.LedgerInstances(cfg.ServiceName, cfg.Consul.ServiceHost, cfg.HTTPPort, cfg.GRPCPort, grpcserver.AccessGateServiceName)
			deregister, err = registry.RegisterAll(serviceRegistry, instances, logger)
			return err
		}()
		if runErr != nil {
			logger.Error("Service registration failed, shutting down", zap.Error(runErr))
		}
	}

	if runErr == nil {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
		case runErr = <-errCh:
			logger.Error("Server failed, shutting down", zap.Error(runErr))
		}
	}

	grpcServer.Health.Shutdown()
	deregister()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	grpcServer.GracefulStop()
	logger.Info("Permission ledger stopped")
	return runErr
}
