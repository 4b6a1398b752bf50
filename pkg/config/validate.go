package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DeBrosOfficial/snowball/pkg/chain"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "storage.redis_addr"
	Message string // e.g., "must not be empty"
	Hint    string // e.g., "expected host:port"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate performs comprehensive validation of the entire config.
// It aggregates all errors and returns them, allowing the caller to print all issues at once.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateCore()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateLit()...)
	errs = append(errs, c.validateSmartWallet()...)

	return errs
}

func (c *Config) validateCore() []error {
	var errs []error

	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, ValidationError{
			Path:    "api_key",
			Message: "must not be empty",
			Hint:    "set api_key or " + EnvAPIKey,
		})
	}

	if err := validateHTTPURL(c.APIURL); err != nil {
		errs = append(errs, ValidationError{
			Path:    "api_url",
			Message: err.Error(),
		})
	}

	if _, ok := chain.ByKey(c.Chain); !ok {
		errs = append(errs, ValidationError{
			Path:    "chain",
			Message: fmt.Sprintf("unknown chain %q", c.Chain),
			Hint:    "expected one of " + strings.Join(chain.Keys(), ", "),
		})
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("invalid value %q", c.Logging.Level),
			Hint:    "allowed values: debug, info, warn, error",
		})
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	sc := c.Storage

	switch sc.Backend {
	case "", BackendMemory:
	case BackendFile, BackendSQLite:
		// An empty path falls back to DefaultPath.
		if sc.Path == "" {
			break
		}
		if err := validateParentDir(sc.Path); err != nil {
			errs = append(errs, ValidationError{
				Path:    "storage.path",
				Message: err.Error(),
			})
		}
	case BackendRedis:
		if err := validateHostPort(sc.RedisAddr); err != nil {
			errs = append(errs, ValidationError{
				Path:    "storage.redis_addr",
				Message: err.Error(),
				Hint:    "expected host:port",
			})
		}
		if sc.RedisDB < 0 {
			errs = append(errs, ValidationError{
				Path:    "storage.redis_db",
				Message: fmt.Sprintf("must be >= 0; got %d", sc.RedisDB),
			})
		}
	case BackendOlric:
		if len(sc.OlricServers) == 0 {
			errs = append(errs, ValidationError{
				Path:    "storage.olric_servers",
				Message: "must not be empty for backend olric",
			})
		}
		for i, s := range sc.OlricServers {
			if err := validateHostPort(s); err != nil {
				errs = append(errs, ValidationError{
					Path:    fmt.Sprintf("storage.olric_servers[%d]", i),
					Message: err.Error(),
				})
			}
		}
		if sc.DMap == "" {
			errs = append(errs, ValidationError{
				Path:    "storage.dmap",
				Message: "must not be empty for backend olric",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Path:    "storage.backend",
			Message: fmt.Sprintf("invalid value %q", sc.Backend),
			Hint:    "allowed values: memory, file, sqlite, redis, olric",
		})
	}

	if sc.EncryptionKey != "" && sc.Backend != BackendFile {
		errs = append(errs, ValidationError{
			Path:    "storage.encryption_key",
			Message: "only supported by the file backend",
		})
	}

	if sc.Timeout < 0 {
		errs = append(errs, ValidationError{
			Path:    "storage.timeout",
			Message: fmt.Sprintf("must be >= 0; got %v", sc.Timeout),
		})
	}

	return errs
}

func (c *Config) validateLit() []error {
	var errs []error
	lc := c.Lit

	// Lit is optional; only validate once a relay key is configured.
	if lc.RelayAPIKey == "" {
		return nil
	}

	if lc.Network == "" {
		errs = append(errs, ValidationError{
			Path:    "lit.network",
			Message: "must not be empty",
		})
	}
	if lc.RelayURL != "" {
		if err := validateHTTPURL(lc.RelayURL); err != nil {
			errs = append(errs, ValidationError{
				Path:    "lit.relay_url",
				Message: err.Error(),
			})
		}
	}
	if lc.RPCURL != "" {
		if err := validateHTTPURL(lc.RPCURL); err != nil {
			errs = append(errs, ValidationError{
				Path:    "lit.rpc_url",
				Message: err.Error(),
			})
		}
	}
	if lc.SessionExpiration < 0 {
		errs = append(errs, ValidationError{
			Path:    "lit.session_expiration",
			Message: fmt.Sprintf("must be >= 0; got %v", lc.SessionExpiration),
		})
	}

	return errs
}

func (c *Config) validateSmartWallet() []error {
	var errs []error
	sw := c.SmartWallet

	if sw.BundlerURL != "" {
		if err := validateHTTPURL(sw.BundlerURL); err != nil {
			errs = append(errs, ValidationError{
				Path:    "smart_wallet.bundler_url",
				Message: err.Error(),
			})
		}
	}
	if sw.EntryPoint != "" && !common.IsHexAddress(sw.EntryPoint) {
		errs = append(errs, ValidationError{
			Path:    "smart_wallet.entry_point",
			Message: fmt.Sprintf("invalid address %q", sw.EntryPoint),
			Hint:    "expected a 0x-prefixed 20 byte hex address",
		})
	}
	if sw.Factory != "" && !common.IsHexAddress(sw.Factory) {
		errs = append(errs, ValidationError{
			Path:    "smart_wallet.factory",
			Message: fmt.Sprintf("invalid address %q", sw.Factory),
			Hint:    "expected a 0x-prefixed 20 byte hex address",
		})
	}

	return errs
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https; got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	return nil
}

func validateParentDir(path string) error {
	parent := filepath.Dir(path)
	info, err := os.Stat(parent)
	if err != nil {
		if os.IsNotExist(err) {
			// Will be created on open
			return nil
		}
		return fmt.Errorf("cannot access parent directory: %v", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("parent path is not a directory")
	}
	return nil
}

func validateHostPort(hostPort string) error {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return fmt.Errorf("expected format host:port")
	}
	if host == "" {
		return fmt.Errorf("host must not be empty")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535; got %q", port)
	}
	return nil
}
