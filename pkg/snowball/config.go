package snowball

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/snowball/pkg/auth/lit"
	"github.com/DeBrosOfficial/snowball/pkg/config"
	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/logging"
	"github.com/DeBrosOfficial/snowball/pkg/smartwallet"
	"github.com/DeBrosOfficial/snowball/pkg/storage"
)

// FromConfig turns a loaded configuration into Options. Auth factories
// depend on host ceremonies and are passed in by the caller. A smart wallet
// factory is set up when a bundler url is configured.
func FromConfig(cfg *config.Config, auths ...NamedFactory) (Options, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return Options{}, sberrors.Make("config.invalid", "Invalid configuration", errors.Join(errs...)).
			WithCode(sberrors.CodeConfig)
	}
	c, ok := cfg.ResolveChain()
	if !ok {
		return Options{}, sberrors.Newf("config.chain", "Unknown chain %q", cfg.Chain).WithCode(sberrors.CodeConfig)
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return Options{}, sberrors.Make("config.logging", "Error creating logger", err).WithCode(sberrors.CodeConfig)
	}
	store, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return Options{}, sberrors.Make("config.storage", "Error opening storage", err).WithCode(sberrors.CodeConfig)
	}

	opts := Options{
		Chain:            c,
		APIKey:           cfg.APIKey,
		APIURL:           cfg.APIURL,
		DeferSessionInit: cfg.DeferSessionInit,
		Storage:          storage.NewLogged(store, logger),
		Logger:           logger,
		Auths:            auths,
	}
	if cfg.SmartWallet.BundlerURL != "" {
		opts.MakeSmartWallet = smartwallet.NewFactory(SmartWalletConfig(cfg.SmartWallet, logger))
	}
	return opts, nil
}

// NewLogger builds the SDK logger for cfg.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Quiet || cfg.Level == "" {
		return logging.NewSDKLogger(cfg.Quiet)
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = level
	return zcfg.Build()
}

// LitConfig maps the lit section onto lit.Config. Session signing and
// wallet construction still have to be supplied.
func LitConfig(cfg config.LitConfig) lit.Config {
	return lit.Config{
		Network:           cfg.Network,
		RPCURL:            cfg.RPCURL,
		RelayURL:          cfg.RelayURL,
		RelayAPIKey:       cfg.RelayAPIKey,
		SessionExpiration: cfg.SessionExpiration,
	}
}

// SmartWalletConfig maps the smart_wallet section onto smartwallet.Config.
// Empty contract addresses fall back to the chain defaults.
func SmartWalletConfig(cfg config.SmartWalletConfig, logger *zap.Logger) smartwallet.Config {
	out := smartwallet.Config{
		BundlerURL:  cfg.BundlerURL,
		GasPolicyID: cfg.GasPolicyID,
		Logger:      logger,
	}
	if cfg.EntryPoint != "" {
		out.EntryPoint = common.HexToAddress(cfg.EntryPoint)
	}
	if cfg.Factory != "" {
		out.Factory = common.HexToAddress(cfg.Factory)
	}
	return out
}
