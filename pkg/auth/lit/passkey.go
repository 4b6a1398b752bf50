package lit

import (
	"context"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/snowball/pkg/auth"
	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
)

// PasskeyClassName identifies the passkey provider.
const PasskeyClassName = "LitPasskeyAuth"

// PasskeyAuth signs in with a WebAuthn credential bound to a PKP.
type PasskeyAuth struct {
	*Auth
	passkeys PasskeyProvider
}

// NewPasskey creates a passkey provider in the init state.
func NewPasskey(opts auth.MakeOptions, cfg Config, passkeys PasskeyProvider) (*PasskeyAuth, error) {
	if passkeys == nil {
		return nil, sberrors.New("missing.passkeyProvider", "["+PasskeyClassName+"] Missing passkey provider")
	}
	a, err := newAuth(PasskeyClassName, opts, cfg)
	if err != nil {
		return nil, err
	}
	return &PasskeyAuth{Auth: a, passkeys: passkeys}, nil
}

// ConfigurePasskey returns the orchestrator factory for PasskeyAuth. State
// is not carried across chains; the user signs in again.
func ConfigurePasskey(cfg Config, passkeys PasskeyProvider) auth.Factory {
	return func(opts auth.MakeOptions, _ auth.Auth) (auth.Auth, error) {
		a, err := NewPasskey(opts, cfg, passkeys)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// Authenticate runs the passkey assertion and looks up the PKPs bound to the
// credential.
func (p *PasskeyAuth) Authenticate(ctx context.Context) error {
	p.op.Lock()
	defer p.op.Unlock()

	if _, ok := p.state.State().(Init); !ok {
		return p.invalidState("authenticate")
	}
	makeError := sberrors.Builder(PasskeyClassName+".authenticate", "Error authenticating with passkey")

	p.state.SetLoading(LoadingAuthenticate, "Authenticating with passkey")
	method, err := call(func() (AuthMethod, error) { return p.passkeys.Authenticate(ctx) })
	if err != nil {
		return p.state.SetError(makeError(0, err))
	}

	p.state.SetLoading(LoadingFetchPKPs, "Fetching associated PKPs")
	pkps, err := p.cfg.Relay.FetchPKPs(ctx, method)
	if err != nil {
		return p.state.SetError(makeError(1, err))
	}
	p.Logger().ComponentDebug(p.Component(), "authenticated", zap.Int("pkps", len(pkps)))

	p.state.Set(Authenticated{AuthMethod: method, PKPs: pkps})
	return nil
}

// Register creates a passkey for username and mints a PKP bound to it. The
// state is left as it was; the new credential is used by Authenticate.
func (p *PasskeyAuth) Register(ctx context.Context, username string) (PKP, error) {
	p.op.Lock()
	defer p.op.Unlock()

	if _, ok := p.state.State().(Init); !ok {
		return PKP{}, p.invalidState("register")
	}
	makeError := sberrors.Builder(PasskeyClassName+".register", "Error registering passkey")

	p.state.SetLoading(LoadingRegister, "Registering passkey")
	method, err := call(func() (AuthMethod, error) { return p.passkeys.Register(ctx, username) })
	if err != nil {
		return PKP{}, p.state.SetError(makeError(0, err))
	}

	p.state.SetLoading(LoadingMintPKP, "Minting PKP")
	pkp, err := p.mintPKP(ctx, method)
	if err != nil {
		return PKP{}, p.state.SetError(makeError(1, err))
	}

	p.state.ClearLoading()
	return pkp, nil
}
