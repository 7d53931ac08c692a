// Package main is the entry point for the external processor.
// It wires configuration, observability, and the selected engine into a
// gRPC server implementing Envoy's ext_proc contract, plus a thin admin
// HTTP surface for health checks and Prometheus scraping.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/pandora-labs/extproc-gateway/internal/authn"
	"github.com/pandora-labs/extproc-gateway/internal/concurrency"
	"github.com/pandora-labs/extproc-gateway/internal/config"
	"github.com/pandora-labs/extproc-gateway/internal/extproc"
	"github.com/pandora-labs/extproc-gateway/internal/idempotency"
	"github.com/pandora-labs/extproc-gateway/internal/logging"
	"github.com/pandora-labs/extproc-gateway/internal/observability"
	grpcTransport "github.com/pandora-labs/extproc-gateway/internal/transport/grpc"
	httpTransport "github.com/pandora-labs/extproc-gateway/internal/transport/http"
	"github.com/pandora-labs/extproc-gateway/internal/vault"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	flags := pflag.NewFlagSet("extproc", pflag.ExitOnError)
	serviceName := flags.StringP("service", "s", extproc.BaseProcessorName, "processor to run")
	showVersion := flags.Bool("version", false, "print version and exit")

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "--version" {
		fmt.Println("extproc " + version)
		return
	}
	if len(args) == 0 || args[0] != "run" {
		fmt.Fprintf(os.Stderr, "extproc: unknown sub-command %q, the only sub-command is \"run\"\n", firstArgOrEmpty(args))
		os.Exit(1)
	}

	if err := flags.Parse(args[1:]); err != nil {
		os.Exit(1)
	}
	if *showVersion {
		fmt.Println("extproc " + version)
		return
	}

	run(*serviceName)
}

func firstArgOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func run(serviceName string) {
	cfg, err := config.LoadConfig(os.Getenv("SERVICE_ENV"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.AppEnv, "extproc-gateway")
	logger.WithFields(map[string]interface{}{
		"service":     serviceName,
		"environment": cfg.AppEnv,
		"grpc_port":   cfg.GRPC.Port,
	}).Info("starting external processor")

	ctx := context.Background()

	vaultClient := resolveVaultClient(ctx, cfg, logger)
	resolveSecrets(ctx, cfg, vaultClient, logger)

	metrics := observability.NewMetricsCollector("extproc", "gateway")

	registry := extproc.NewRegistry()
	registry.Register(extproc.BaseProcessorName, func() *extproc.Processor { return extproc.NewBaseProcessor() })
	registerDomainProcessors(ctx, registry, cfg, logger, metrics)

	processor, err := registry.Build(serviceName)
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("failed to build processor")
	}

	grpcServer := grpc.NewServer(
		grpc.ChainStreamInterceptor(
			grpcTransport.StreamRecoveryInterceptor(logger, metrics),
			grpcTransport.StreamLoggingInterceptor(logger),
			grpcTransport.StreamTracingInterceptor(),
		),
	)

	svcRegistry := grpcTransport.NewServiceRegistry(grpcServer, grpcTransport.WithReflection(cfg.AppEnv == config.EnvDevelopment))
	extprocServer := grpcTransport.NewServer(processor, metrics, logger)
	extprocv3.RegisterExternalProcessorServer(grpcServer, extprocServer)
	svcRegistry.SetServiceHealth("", true)

	adminServer := httpTransport.NewAdminServer(":"+cfg.GRPC.MetricsPort, logger)

	go func() {
		listener, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
		if err != nil {
			logger.WithField("error", err.Error()).Fatal("failed to create gRPC listener")
		}
		logger.WithField("address", listener.Addr().String()).Info("gRPC server listening")
		if err := grpcServer.Serve(listener); err != nil {
			logger.WithField("error", err.Error()).Fatal("gRPC server failed")
		}
	}()

	go func() {
		if err := adminServer.ListenAndServe(); err != nil {
			logger.WithField("error", err.Error()).Fatal("admin HTTP server failed")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"grpc_address":  cfg.GRPC.Port,
		"admin_address": cfg.GRPC.MetricsPort,
		"processor":     processor.Name,
	}).Info("external processor started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down external processor")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := svcRegistry.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err.Error()).Error("gRPC server forced to shutdown")
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err.Error()).Error("admin server forced to shutdown")
	}

	logger.Info("external processor stopped gracefully")
}

func resolveVaultClient(ctx context.Context, cfg *config.Config, logger *observability.Logger) *vault.Client {
	if !cfg.Vault.Enabled() {
		logger.Info("vault integration disabled, using environment variables for secrets")
		return vault.NewDisabledClient()
	}

	logger.WithField("vault_addr", cfg.Vault.Addr).Info("initializing vault client")
	client, err := vault.NewClient(cfg.Vault.Addr, cfg.Vault.Token)
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("failed to initialize vault client")
	}
	if !client.IsAvailable(ctx) {
		logger.Warn("vault is configured but not available, falling back to environment variables")
	}
	return client
}

// resolveSecrets overwrites cfg.Token's key material with Vault-resolved
// values when Vault is available, falling back to whatever the process
// environment already populated otherwise.
func resolveSecrets(ctx context.Context, cfg *config.Config, vaultClient *vault.Client, logger *observability.Logger) {
	if !vaultClient.Enabled() {
		return
	}

	if key, err := vaultClient.GetSecretWithEnvFallback(ctx, "secret/extproc-gateway", "token_public_key", "TOKEN_PUBLIC_KEY"); err == nil && key != "" {
		cfg.Token.PublicKey = key
	}
	if key, err := vaultClient.GetSecretWithEnvFallback(ctx, "secret/extproc-gateway", "token_private_key", "TOKEN_PRIVATE_KEY"); err == nil && key != "" {
		cfg.Token.PrivateKey = key
	}
	logger.Info("secrets resolved from vault")
}

func registerDomainProcessors(ctx context.Context, registry *extproc.Registry, cfg *config.Config, logger *observability.Logger, metrics *observability.MetricsCollector) {
	registry.Register(extproc.DigestProcessorName, func() *extproc.Processor { return extproc.NewDigestProcessor(metrics) })

	registry.Register(extproc.IdempotencyProcessorName, func() *extproc.Processor {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
		store := idempotency.NewRedisStore(redisClient, "extproc:idemp:", logger, metrics)
		engine := idempotency.NewEngine(store, cfg.Idemp.SentinelTTL, cfg.Idemp.CompletedTTL, metrics)
		return extproc.NewIdempotencyProcessor(engine)
	})

	registry.Register(extproc.AuthProcessorName, func() *extproc.Processor {
		exchanger := authn.NewHTTPExchanger(cfg.Auth.URL(), cfg.Auth.Timeout, metrics)
		jwtManager := buildJWTManager(cfg, logger, metrics)
		engine := authn.NewEngine(exchanger, jwtManager)
		audit := observability.NewAuditLogger(logger)
		return extproc.NewAuthProcessor(engine, audit)
	})

	registry.Register(extproc.ConcurrencyProcessorName, func() *extproc.Processor {
		return extproc.NewConcurrencyProcessor(concurrency.NewProbe(metrics))
	})

	registry.Register(extproc.LogProcessorName, func() *extproc.Processor {
		producer := buildLogProducer(cfg, logger)
		engine := logging.NewEngine(producer, cfg.Kafka.Topic, logger, metrics)
		return extproc.NewLogProcessor(engine)
	})
}

func buildJWTManager(cfg *config.Config, logger *observability.Logger, metrics *observability.MetricsCollector) *authn.JWTManager {
	algorithm := authn.Algorithm(cfg.Token.Algorithm)

	// HS256 verifies against a shared secret; RS256 against a PEM public
	// key. Both are provisioned through the same two config slots, so
	// which one supplies the key material depends on the algorithm.
	keyMaterial := []byte(cfg.Token.PublicKey)
	if algorithm == authn.AlgHS256 {
		keyMaterial = []byte(cfg.Token.PrivateKey)
	}

	manager, err := authn.NewJWTManager(algorithm, keyMaterial, cfg.Token.Issuer, cfg.Token.Audience, metrics)
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("failed to initialize JWT manager")
	}
	return manager
}

// buildLogProducer constructs the Kafka producer backing the log engine.
// When no brokers are configured (local/dev runs without a Kafka
// deployment), a discard producer is used instead so the log engine still
// runs its validation and JSON-flattening logic without needing live
// infrastructure.
func buildLogProducer(cfg *config.Config, logger *observability.Logger) logging.Producer {
	brokers := cfg.Kafka.BrokerList()
	if len(brokers) == 0 {
		logger.Warn("no KAFKA_BROKERS configured, log engine will discard records")
		return discardProducer{}
	}

	var zapLogger *zap.Logger
	var err error
	if cfg.AppEnv == config.EnvProduction {
		zapLogger, err = zap.NewProduction()
	} else {
		zapLogger, err = zap.NewDevelopment()
	}
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("failed to create zap logger for log engine")
	}

	producer, err := logging.NewSaramaProducer(brokers, zapLogger)
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("failed to create kafka producer for log engine")
	}
	return producer
}

type discardProducer struct{}

func (discardProducer) Produce(topic string, partitionKey, value []byte) error { return nil }
func (discardProducer) Close() error                                          { return nil }
