package cli

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DeBrosOfficial/snowball/pkg/chain"
)

type chainInfo struct {
	Key        string `json:"key"`
	ChainID    int64  `json:"chainId"`
	Name       string `json:"name"`
	VMType     string `json:"vmType"`
	Testnet    bool   `json:"testnet"`
	EntryPoint string `json:"entryPoint"`
	Factory    string `json:"factory"`
}

// HandleChainsCommand lists the known chains.
func HandleChainsCommand(env *Env) error {
	var chains []chainInfo
	for _, key := range chain.Keys() {
		c, _ := chain.ByKey(key)
		chains = append(chains, chainInfo{
			Key:        c.Key,
			ChainID:    c.ChainID,
			Name:       c.Name,
			VMType:     c.VMType,
			Testnet:    c.TestNetwork,
			EntryPoint: c.EntryPointAddress.Hex(),
			Factory:    c.FactoryAddress.Hex(),
		})
	}

	if env.Format == "json" {
		return env.printJSON(chains)
	}
	env.printf("%-14s %-10s %-14s %-4s %s\n", "KEY", "CHAIN ID", "NAME", "VM", "TESTNET")
	for _, c := range chains {
		env.printf("%-14s %-10d %-14s %-4s %t\n", c.Key, c.ChainID, c.Name, c.VMType, c.Testnet)
	}
	return nil
}

// HandleConfigCommand handles config management commands
func HandleConfigCommand(env *Env, args []string) error {
	if len(args) == 0 {
		showConfigHelp(env)
		return nil
	}

	switch args[0] {
	case "validate":
		return handleConfigValidate(env)
	case "show":
		return handleConfigShow(env)
	case "help":
		showConfigHelp(env)
		return nil
	default:
		showConfigHelp(env)
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}

func showConfigHelp(env *Env) {
	env.printf("Config Management Commands\n\n")
	env.printf("Usage: snowball config <subcommand> [-c <file>]\n\n")
	env.printf("Subcommands:\n")
	env.printf("  validate  - Validate the config file and environment overrides\n")
	env.printf("  show      - Print the effective config with secrets redacted\n\n")
	env.printf("Without -c, ~/.snowball/config.yaml is used when it exists.\n")
}

func handleConfigValidate(env *Env) error {
	cfg, err := env.loadConfig()
	if err != nil {
		return err
	}
	errs := cfg.Validate()
	if len(errs) == 0 {
		env.printf("✅ Config is valid\n")
		return nil
	}
	env.printf("❌ Config has %d problem(s):\n", len(errs))
	for _, e := range errs {
		env.printf("  - %s\n", e)
	}
	return fmt.Errorf("config validation failed")
}

func handleConfigShow(env *Env) error {
	cfg, err := env.loadConfig()
	if err != nil {
		return err
	}
	cfg.APIKey = redact(cfg.APIKey)
	cfg.Lit.RelayAPIKey = redact(cfg.Lit.RelayAPIKey)
	cfg.Storage.EncryptionKey = redact(cfg.Storage.EncryptionKey)

	if env.Format == "json" {
		return env.printJSON(cfg)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = env.Out.Write(out)
	return err
}

func redact(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
