// Package auth defines the contract every auth provider implements and the
// plumbing they share: chain, rpc transport, storage, logging and the change
// notification wired to the orchestrator.
package auth

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/snowball/pkg/chain"
	"github.com/DeBrosOfficial/snowball/pkg/logging"
	"github.com/DeBrosOfficial/snowball/pkg/metrics"
	"github.com/DeBrosOfficial/snowball/pkg/result"
	"github.com/DeBrosOfficial/snowball/pkg/rpc"
	"github.com/DeBrosOfficial/snowball/pkg/state"
	"github.com/DeBrosOfficial/snowball/pkg/storage"
	"github.com/DeBrosOfficial/snowball/pkg/wallet"
)

// Auth is one provider instance bound to one chain.
type Auth interface {
	// ClassName identifies the provider implementation, e.g. "EmbeddedAuth".
	ClassName() string
	Chain() *chain.Chain

	// InitUserSession attempts to restore an existing session. It only does
	// work when the provider needs it, so it is safe to call repeatedly.
	InitUserSession(ctx context.Context) error

	// GetWallet returns the wallet handle, building it when needed.
	GetWallet(ctx context.Context) (wallet.Signer, error)
	GetWalletAddresses(ctx context.Context) ([]common.Address, error)
	// Wallet returns the ready wallet handle or nil.
	Wallet() wallet.Signer

	// SessionExpirationTime returns the session expiry in epoch ms, or 0
	// when there is no session or it has expired.
	SessionExpirationTime() int64

	StateName() string
	Loading() *state.Loading
	Err() *result.Failure
	ClearError()
}

// SessionSyncer is implemented by providers whose state mirrors the shared
// rpc session. SyncSession reconciles the state with that session without
// any network calls.
type SessionSyncer interface {
	SyncSession()
}

// MakeOptions is what the orchestrator hands to every factory.
type MakeOptions struct {
	Chain   *chain.Chain
	RPC     *rpc.Client
	Storage storage.Storage
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// OnStateChange is called after every state change.
	OnStateChange func()
}

// Factory builds an instance for opts.Chain. prev is the instance of the same
// provider on the previous chain, or nil; factories may carry its state over.
type Factory func(opts MakeOptions, prev Auth) (Auth, error)

// GetWalletAddress returns the first wallet address of a, or the zero
// address when it has none.
func GetWalletAddress(ctx context.Context, a Auth) (common.Address, error) {
	addrs, err := a.GetWalletAddresses(ctx)
	if err != nil || len(addrs) == 0 {
		return common.Address{}, err
	}
	return addrs[0], nil
}

// Base carries the fields every provider needs. Providers embed it.
type Base struct {
	className     string
	component     logging.Component
	chain         *chain.Chain
	rpc           *rpc.Client
	storage       storage.Storage
	logger        *logging.ColoredLogger
	metrics       *metrics.Metrics
	onStateChange func()
}

// NewBase builds the shared part of a provider. Its log lines are tagged
// with component.
func NewBase(className string, component logging.Component, opts MakeOptions) Base {
	b := Base{
		className:     className,
		component:     component,
		chain:         opts.Chain,
		rpc:           opts.RPC,
		storage:       opts.Storage,
		logger:        logging.Wrap(opts.Logger).Named(className),
		metrics:       opts.Metrics,
		onStateChange: opts.OnStateChange,
	}
	b.logger.ComponentDebug(b.component, "init", zap.Stringer("chain", opts.Chain))
	return b
}

func (b *Base) ClassName() string {
	return b.className
}

func (b *Base) Chain() *chain.Chain {
	return b.chain
}

// RPC returns the transport. It may be nil for providers that do not talk to
// the backend.
func (b *Base) RPC() *rpc.Client {
	return b.rpc
}

func (b *Base) Storage() storage.Storage {
	return b.storage
}

func (b *Base) Logger() *logging.ColoredLogger {
	return b.logger
}

// Component is the log tag of the provider.
func (b *Base) Component() logging.Component {
	return b.component
}

// Notify records a transition into stateName and forwards it to the orchestrator.
func (b *Base) Notify(stateName string) {
	b.metrics.ObserveTransition(b.className, stateName)
	if b.onStateChange != nil {
		b.onStateChange()
	}
}

// GetUser returns the user behind the current session, or nil when there is
// no valid session or the lookup fails.
func (b *Base) GetUser(ctx context.Context) *rpc.User {
	if b.rpc == nil || !b.rpc.HasValidSession() {
		return nil
	}
	res := b.rpc.Whoami(ctx)
	if !res.IsOk() {
		f := res.Failure()
		b.logger.ComponentWarn(b.component, "Failed to fetch user session", zap.String("reason", f.Reason), zap.String("code", f.Code))
		return nil
	}
	u := res.Value()
	return &u
}
