package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ClockConfig struct {
	Genesis       time.Time     `mapstructure:"genesis"`
	BlockInterval time.Duration `mapstructure:"block_interval"`
}

// BalanceConfig is a genesis balance. Principals are case sensitive, so
// balances are a list rather than a map; viper lowercases map keys.
type BalanceConfig struct {
	Principal string `mapstructure:"principal"`
	Amount    uint64 `mapstructure:"amount"`
}

// CredentialConfig pairs a principal with the bcrypt hash of its secret.
type CredentialConfig struct {
	Principal  string `mapstructure:"principal"`
	SecretHash string `mapstructure:"secret_hash"`
}

type ConsulConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Address     string `mapstructure:"address"`
	ServiceHost string `mapstructure:"service_host"`
}

type Config struct {
	HTTPPort       int    `mapstructure:"http_port"`
	GRPCPort       int    `mapstructure:"grpc_port"`
	LogLevel       string `mapstructure:"log_level"`
	DatabaseDriver string `mapstructure:"database_driver"`
	DatabaseURL    string `mapstructure:"database_url"`
	ServiceName    string `mapstructure:"service_name"`
	JwtSecret      string `mapstructure:"jwt_secret"`

	// AuthorityEndpoint is applied once at startup if the ledger has no
	// endpoint yet. It never replaces a stored endpoint.
	AuthorityEndpoint string          `mapstructure:"authority_endpoint"`
	DefaultCapacity   uint64          `mapstructure:"default_capacity"`
	DefaultFee        uint64          `mapstructure:"default_fee"`
	GenesisBalances   []BalanceConfig `mapstructure:"genesis_balances"`

	RabbitMQURL string       `mapstructure:"rabbitmq_url"`
	AuditLog    bool         `mapstructure:"audit_log"`
	Clock       ClockConfig  `mapstructure:"clock"`
	Consul      ConsulConfig `mapstructure:"consul"`

	Credentials []CredentialConfig `mapstructure:"credentials"`
	TokenTTL    time.Duration      `mapstructure:"token_ttl"`

	// IssueToken, when set, makes the binary print a bearer token for that
	// principal and exit. HashSecret does the same for a credentials hash.
	IssueToken string `mapstructure:"issue_token"`
	HashSecret string `mapstructure:"hash_secret"`
}

var AppConfig Config

// Flags returns the command line flags understood by InitConfig.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("permledger", pflag.ContinueOnError)
	fs.String("config", "", "path to a config file (default: ./config.yaml or ./config/config.yaml)")
	fs.String("issue_token", "", "print a bearer token for the given principal and exit")
	fs.String("hash_secret", "", "print the bcrypt hash of a login secret and exit")
	fs.String("log_level", "", "log level (debug, info)")
	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 8080)
	v.SetDefault("grpc_port", 50051)
	v.SetDefault("log_level", "info")
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_url", "file:permledger.db?cache=shared")
	v.SetDefault("service_name", "permission-ledger")
	v.SetDefault("jwt_secret", "default-very-insecure-secret-key") // CHANGE THIS IN PRODUCTION
	v.SetDefault("default_capacity", 10000)
	v.SetDefault("default_fee", 500)
	v.SetDefault("audit_log", false)
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("clock.genesis", "2024-01-01T00:00:00Z")
	v.SetDefault("clock.block_interval", "10m")
	v.SetDefault("consul.enabled", false)
	v.SetDefault("consul.address", "127.0.0.1:8500")
	v.SetDefault("consul.service_host", "127.0.0.1")
}

// Load builds a Config from defaults, an optional config file, PERMLEDGER_*
// environment variables and the parsed flags, in increasing precedence.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PERMLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("binding flags: %w", err)
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if cfg.DefaultCapacity == 0 {
		return Config{}, fmt.Errorf("default_capacity must be greater than zero")
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("token_ttl must be positive, got %s", cfg.TokenTTL)
	}
	if cfg.Clock.BlockInterval <= 0 {
		return Config{}, fmt.Errorf("clock.block_interval must be positive, got %s", cfg.Clock.BlockInterval)
	}
	return cfg, nil
}

// Balances returns the genesis balances keyed by principal.
func (c Config) Balances() map[string]uint64 {
	balances := make(map[string]uint64, len(c.GenesisBalances))
	for _, b := range c.GenesisBalances {
		balances[b.Principal] += b.Amount
	}
	return balances
}

// CredentialHashes returns the login hashes keyed by principal.
func (c Config) CredentialHashes() map[string]string {
	hashes := make(map[string]string, len(c.Credentials))
	for _, cred := range c.Credentials {
		hashes[cred.Principal] = cred.SecretHash
	}
	return hashes
}

// InitConfig loads the configuration into AppConfig and panics on failure.
func InitConfig(flags *pflag.FlagSet) {
	cfg, err := Load(flags)
	if err != nil {
		panic(fmt.Errorf("fatal error loading config: %w", err))
	}
	AppConfig = cfg
}
