// Package config provides configuration management for the external processor.
// Configuration is loaded from environment variables with sensible defaults.
// Supports multiple environments: dev, sandbox, audit, prod.
// In dev/test: loads .env files via godotenv
// When CONFIG_FILE names a YAML file that loads, that file alone supplies the
// configuration; environment variables and defaults are not applied on top.
// Otherwise environment variables override defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// Environment constants
	EnvDevelopment = "dev"
	EnvSandbox     = "sandbox"
	EnvAudit       = "audit"
	EnvProduction  = "prod"
)

// Config holds all configuration for the external processor.
type Config struct {
	AppEnv  string        `mapstructure:"SERVICE_ENV"`
	GRPC    GRPCConfig    `mapstructure:",squash"`
	Auth    AuthConfig    `mapstructure:",squash"`
	Token   TokenConfig   `mapstructure:",squash"`
	Redis   RedisConfig   `mapstructure:",squash"`
	Kafka   KafkaConfig   `mapstructure:",squash"`
	Idemp   IdempConfig   `mapstructure:",squash"`
	Tracing TracingConfig `mapstructure:",squash"`
	Vault   VaultConfig   `mapstructure:",squash"`
}

// GRPCConfig holds the ext_proc server's listener and admin surface settings.
type GRPCConfig struct {
	Port        string `mapstructure:"GRPC_PORT"`
	Workers     int    `mapstructure:"GRPC_WORKERS"`
	MetricsPort string `mapstructure:"METRICS_PORT"`
}

// AuthConfig holds the out-of-band auth service exchange settings.
type AuthConfig struct {
	Host    string        `mapstructure:"AUTH_HOST"`
	Port    string        `mapstructure:"AUTH_PORT"`
	Timeout time.Duration `mapstructure:"AUTH_TIMEOUT"`
}

// URL returns the auth service's token exchange endpoint.
func (a AuthConfig) URL() string {
	return fmt.Sprintf("http://%s:%s/api/v0/tokens", a.Host, a.Port)
}

// TokenConfig holds JWT verification configuration.
type TokenConfig struct {
	PublicKey  string `mapstructure:"TOKEN_PUBLIC_KEY"`
	PrivateKey string `mapstructure:"TOKEN_PRIVATE_KEY"`
	Algorithm  string `mapstructure:"TOKEN_ALGORITHM"`
	Issuer     string `mapstructure:"TOKEN_ISSUER"`
	Audience   string `mapstructure:"TOKEN_AUDIENCE"`
}

// RedisConfig holds the idempotency store's Redis connection configuration.
type RedisConfig struct {
	Host string `mapstructure:"REDIS_CACHE_HOST"`
	Port string `mapstructure:"REDIS_CACHE_PORT"`
}

// Addr returns the Redis address in host:port form.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// KafkaConfig holds the log engine's message-bus producer configuration.
type KafkaConfig struct {
	Topic      string `mapstructure:"KAFKA_TOPIC"`
	ConfigFile string `mapstructure:"KAFKA_CONFIG_FILE"`
	Brokers    string `mapstructure:"KAFKA_BROKERS"`
}

// BrokerList parses the comma-separated broker list, preferring any
// bootstrap.servers entry found in ConfigFile when present.
func (k KafkaConfig) BrokerList() []string {
	if k.ConfigFile != "" {
		if props, err := readPropertiesFile(k.ConfigFile); err == nil {
			if v, ok := props["bootstrap.servers"]; ok && v != "" {
				return splitCSV(v)
			}
		}
	}
	return splitCSV(k.Brokers)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func readPropertiesFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from KAFKA_CONFIG_FILE operator config
	if err != nil {
		return nil, err
	}
	props := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		props[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return props, nil
}

// IdempConfig holds the two TTLs the idempotency engine's cache protocol
// depends on; sentinel TTL must stay well below completed TTL.
type IdempConfig struct {
	SentinelTTL  time.Duration `mapstructure:"IDEMP_SENTINEL_TTL"`
	CompletedTTL time.Duration `mapstructure:"IDEMP_COMPLETED_TTL"`
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"OTEL_TRACING_ENABLED"`
	OTLPEndpoint string  `mapstructure:"OTLP_ENDPOINT"`
	SampleRate   float64 `mapstructure:"OTEL_SAMPLE_RATE"`
}

// VaultConfig holds HashiCorp Vault configuration for secret resolution.
type VaultConfig struct {
	Addr string `mapstructure:"VAULT_ADDR"`
	Token string `mapstructure:"VAULT_TOKEN"`
}

// Enabled reports whether Vault-backed secret resolution should be used.
func (v VaultConfig) Enabled() bool {
	return v.Addr != "" && v.Token != ""
}

// Load reads configuration from environment variables, applying defaults
// matching the documented external interface.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVICE_ENV", EnvDevelopment)
	v.SetDefault("GRPC_PORT", "50051")
	v.SetDefault("GRPC_WORKERS", 5)
	v.SetDefault("METRICS_PORT", "9090")
	v.SetDefault("AUTH_HOST", "localhost")
	v.SetDefault("AUTH_PORT", "8090")
	v.SetDefault("AUTH_TIMEOUT", "5s")
	v.SetDefault("TOKEN_ALGORITHM", "HS256")
	v.SetDefault("REDIS_CACHE_HOST", "localhost")
	v.SetDefault("REDIS_CACHE_PORT", "6379")
	v.SetDefault("KAFKA_TOPIC", "gateway.requests")
	v.SetDefault("IDEMP_SENTINEL_TTL", "10s")
	v.SetDefault("IDEMP_COMPLETED_TTL", "24h")
	v.SetDefault("OTEL_TRACING_ENABLED", false)
	v.SetDefault("OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATE", 1.0)

	v.AutomaticEnv()

	envVars := []string{
		"SERVICE_ENV",
		"GRPC_PORT", "GRPC_WORKERS", "METRICS_PORT",
		"AUTH_HOST", "AUTH_PORT", "AUTH_TIMEOUT",
		"TOKEN_PUBLIC_KEY", "TOKEN_PRIVATE_KEY", "TOKEN_ALGORITHM", "TOKEN_ISSUER", "TOKEN_AUDIENCE",
		"REDIS_CACHE_HOST", "REDIS_CACHE_PORT",
		"KAFKA_TOPIC", "KAFKA_CONFIG_FILE", "KAFKA_BROKERS",
		"IDEMP_SENTINEL_TTL", "IDEMP_COMPLETED_TTL",
		"OTEL_TRACING_ENABLED", "OTLP_ENDPOINT", "OTEL_SAMPLE_RATE",
		"VAULT_ADDR", "VAULT_TOKEN",
	}
	for _, env := range envVars {
		_ = v.BindEnv(env)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadConfig loads configuration with support for .env files and YAML.
// In dev/test it first loads .env files, which never override variables
// already set. If CONFIG_FILE is set and loads, that YAML config is returned
// as is, with no environment or default overlay; otherwise Load builds the
// config from environment variables over defaults.
func LoadConfig(env string) (*Config, error) {
	if env == EnvDevelopment || env == "test" {
		envFile := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", envFile, err)
			}
		}
		_ = godotenv.Load()
	}

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		cfg, err := loadFromYAML(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load YAML config from %s, falling back to env vars: %v\n", configFile, err)
		} else {
			return cfg, nil
		}
	}

	return Load()
}

func loadFromYAML(filename string) (*Config, error) {
	if strings.Contains(filename, "..") {
		return nil, fmt.Errorf("invalid config file path: path traversal detected")
	}

	data, err := os.ReadFile(filename) // #nosec G304 -- filename is from CONFIG_FILE env var, validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if cfg.AppEnv != "" {
		_ = os.Setenv("SERVICE_ENV", cfg.AppEnv) // #nosec G104 -- error is always nil
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the loaded configuration is internally consistent.
func Validate(cfg *Config) error {
	validEnvs := map[string]bool{
		EnvDevelopment: true,
		EnvSandbox:     true,
		EnvAudit:       true,
		EnvProduction:  true,
		"test":         true,
	}
	if !validEnvs[cfg.AppEnv] {
		return fmt.Errorf("invalid environment %q: must be one of [dev, sandbox, audit, prod, test]", cfg.AppEnv)
	}

	if cfg.Idemp.SentinelTTL <= 0 || cfg.Idemp.CompletedTTL <= 0 {
		return fmt.Errorf("idempotency TTLs must be positive")
	}
	if cfg.Idemp.SentinelTTL > cfg.Idemp.CompletedTTL {
		return fmt.Errorf("sentinel TTL (%s) must not exceed completed TTL (%s)", cfg.Idemp.SentinelTTL, cfg.Idemp.CompletedTTL)
	}

	return nil
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool { return c.AppEnv == EnvDevelopment }

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool { return c.AppEnv == EnvProduction }
