package embedded

import (
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/snowball/pkg/auth"
	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/logging"
	"github.com/DeBrosOfficial/snowball/pkg/state"
)

// Configure returns the factory the orchestrator calls on every chain switch.
//
// When the previous instance runs on a chain of the same VM family its state
// is carried over, so the user stays signed in. A ready wallet is rebuilt
// from the previous parameters with only the chain replaced; when that fails
// the instance starts from Initializing with the user.
func Configure(cfg Config) auth.Factory {
	return func(opts auth.MakeOptions, prev auth.Auth) (auth.Auth, error) {
		a, err := New(opts, cfg)
		if err != nil {
			return nil, err
		}

		p, ok := prev.(*Auth)
		if !ok || p == nil || !opts.Chain.SameVM(p.Chain()) {
			return a, nil
		}

		a.state.Load(p.state.Get())

		if _, ready := p.state.State().(WalletReady); !ready {
			return a, nil
		}
		params, built := p.WalletParams()
		if !built {
			return a, nil
		}
		params.Chain = opts.Chain
		client, err := a.cfg.Wallets.MakeWalletClient(params)
		if err != nil {
			// Keep the user signed in; GetWallet rebuilds from the backend config.
			user := p.User()
			a.Logger().ComponentWarn(logging.ComponentWallet, "Unable to rebuild wallet for new chain",
				zap.Stringer("chain", opts.Chain),
				zap.String("cause", sberrors.Chain(err)))
			a.state.Load(state.Snapshot[State]{State: Initializing{User: user}})
			return a, nil
		}
		a.built = &builtWallet{client: client, params: params}
		return a, nil
	}
}
