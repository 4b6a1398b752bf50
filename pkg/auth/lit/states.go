package lit

import "github.com/DeBrosOfficial/snowball/pkg/wallet"

// State names.
const (
	StateInit          = "init"
	StateAuthenticated = "authenticated"
	StateWalletReady   = "wallet-ready"
)

// State is one of Init, Authenticated or WalletReady.
type State interface {
	Name() string
	isState()
}

type Init struct{}

type Authenticated struct {
	AuthMethod AuthMethod
	PKPs       []PKP
}

// WalletReady carries the auth method and PKPs only after a fresh sign-in.
type WalletReady struct {
	AuthMethod *AuthMethod
	PKPs       []PKP
	Wallet     wallet.Signer
}

func (Init) Name() string          { return StateInit }
func (Authenticated) Name() string { return StateAuthenticated }
func (WalletReady) Name() string   { return StateWalletReady }

func (Init) isState()          {}
func (Authenticated) isState() {}
func (WalletReady) isState()   {}
