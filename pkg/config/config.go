package config

import (
	"time"

	"github.com/DeBrosOfficial/snowball/pkg/chain"
)

// DefaultAPIURL is the hosted Snowball backend.
const DefaultAPIURL = "https://api.snowball.build/v1"

// Config represents the SDK configuration
type Config struct {
	APIKey           string            `yaml:"api_key"`
	APIURL           string            `yaml:"api_url"`
	Chain            string            `yaml:"chain"`              // key from the known chain table
	DeferSessionInit bool              `yaml:"defer_session_init"` // skip initUserSession at construction
	Logging          LoggingConfig     `yaml:"logging"`
	Storage          StorageConfig     `yaml:"storage"`
	Lit              LitConfig         `yaml:"lit"`
	SmartWallet      SmartWalletConfig `yaml:"smart_wallet"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Quiet bool   `yaml:"quiet"`
}

// StorageConfig selects and configures the durable storage backend
type StorageConfig struct {
	Backend       string        `yaml:"backend"` // memory, file, sqlite, redis, olric
	Path          string        `yaml:"path"`    // file and sqlite backends
	EncryptionKey string        `yaml:"encryption_key"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisDB       int           `yaml:"redis_db"`
	OlricServers  []string      `yaml:"olric_servers"`
	DMap          string        `yaml:"dmap"`
	Timeout       time.Duration `yaml:"timeout"`
}

// LitConfig contains threshold-network settings
type LitConfig struct {
	Network           string        `yaml:"network"`
	RPCURL            string        `yaml:"rpc_url"`
	RelayURL          string        `yaml:"relay_url"`
	RelayAPIKey       string        `yaml:"relay_api_key"`
	SessionExpiration time.Duration `yaml:"session_expiration"`
}

// SmartWalletConfig contains account-abstraction bundler settings
type SmartWalletConfig struct {
	BundlerURL  string `yaml:"bundler_url"`
	GasPolicyID string `yaml:"gas_policy_id"`
	EntryPoint  string `yaml:"entry_point"`
	Factory     string `yaml:"factory"`
}

// Storage backends
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendOlric  = "olric"
)

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		APIURL: DefaultAPIURL,
		Chain:  chain.Sepolia.Key,
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			DMap:    "snowball",
			Timeout: 5 * time.Second,
		},
		Lit: LitConfig{
			Network:           "cayenne",
			RelayURL:          "https://relayer-server-staging-cayenne.getlit.dev",
			SessionExpiration: 24 * time.Hour,
		},
	}
}

// ResolveChain returns the configured chain from the known table.
func (c *Config) ResolveChain() (*chain.Chain, bool) {
	return chain.ByKey(c.Chain)
}
