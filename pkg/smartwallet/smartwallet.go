// Package smartwallet wraps an auth provider's wallet handle in an ERC-4337
// smart account and submits user operations through a bundler.
package smartwallet

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/snowball/pkg/chain"
	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/wallet"
)

// ClassName prefixes smart wallet error names.
const ClassName = "SmartWallet"

// ErrNoGasPolicyID is the error name reported by SendSponsoredUserOperation
// when no gas policy is configured.
const ErrNoGasPolicyID = "SMARTWALLET_NO_GAS_POLICY_ID"

// SmartWallet is a smart account owned by a wallet handle.
type SmartWallet interface {
	Chain() *chain.Chain
	// Owner is the wallet handle the account was built from.
	Owner() wallet.Signer
	Address(ctx context.Context) (common.Address, error)
	SendUserOperation(ctx context.Context, target common.Address, data []byte, value *big.Int) (common.Hash, error)
	SendSponsoredUserOperation(ctx context.Context, target common.Address, data []byte, value *big.Int) (common.Hash, error)
	// WaitForUserOperationTransaction waits until the operation is included
	// and returns the hash of the bundle transaction.
	WaitForUserOperationTransaction(ctx context.Context, hash common.Hash) (common.Hash, error)
	// GetUserOperationByHash returns nil when the bundler does not know hash.
	GetUserOperationByHash(ctx context.Context, hash common.Hash) (*UserOperationResponse, error)
	// GetUserOperationReceipt returns nil while the operation is pending.
	GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error)
}

// Factory builds a smart wallet for a wallet handle on c.
type Factory func(ctx context.Context, c *chain.Chain, owner wallet.Signer) (SmartWallet, error)

// WaitOptions tunes WaitForUserOperationTransaction. The interval grows by
// Multiplier after every poll.
type WaitOptions struct {
	Interval   time.Duration
	Multiplier float64
	MaxTries   uint
}

// DefaultWaitOptions match the common account-abstraction client defaults.
var DefaultWaitOptions = WaitOptions{Interval: 2 * time.Second, Multiplier: 1.5, MaxTries: 5}

// Config configures BundlerWallet.
type Config struct {
	// BundlerURL is the bundler JSON-RPC endpoint. When empty the chain's
	// first rpc url is used with APIKey appended.
	BundlerURL string
	APIKey     string
	// GasPolicyID is required by SendSponsoredUserOperation.
	GasPolicyID string
	// EntryPoint and Factory override the chain's contract addresses.
	EntryPoint common.Address
	Factory    common.Address
	// Salt selects one of the accounts an owner can deploy. Defaults to 0.
	Salt *big.Int

	Wait       WaitOptions
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (c Config) withDefaults(ch *chain.Chain) Config {
	if c.BundlerURL == "" && c.APIKey != "" {
		if urls := ch.AlchemyRPCURLs(c.APIKey); len(urls) > 0 {
			c.BundlerURL = urls[0]
		}
	}
	if c.EntryPoint == (common.Address{}) {
		c.EntryPoint = ch.EntryPointAddress
	}
	if c.Factory == (common.Address{}) {
		c.Factory = ch.FactoryAddress
	}
	if c.Salt == nil {
		c.Salt = new(big.Int)
	}
	if c.Wait.MaxTries == 0 {
		c.Wait.MaxTries = DefaultWaitOptions.MaxTries
	}
	if c.Wait.Interval <= 0 {
		c.Wait.Interval = DefaultWaitOptions.Interval
	}
	if c.Wait.Multiplier < 1 {
		c.Wait.Multiplier = DefaultWaitOptions.Multiplier
	}
	return c
}

// NewFactory returns a Factory that dials a BundlerWallet per call.
func NewFactory(cfg Config) Factory {
	return func(ctx context.Context, c *chain.Chain, owner wallet.Signer) (SmartWallet, error) {
		w, err := Dial(ctx, cfg, c, owner)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

func missing(field string) error {
	return sberrors.New("missing."+field, "["+ClassName+"] Missing "+field).WithCode(sberrors.CodePrecondition)
}
