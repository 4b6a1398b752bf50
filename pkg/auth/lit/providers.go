package lit

import (
	"context"
	"fmt"
	"time"

	"github.com/DeBrosOfficial/snowball/pkg/chain"
	"github.com/DeBrosOfficial/snowball/pkg/wallet"
)

// SessionSigParams describes the signing session to negotiate.
type SessionSigParams struct {
	AuthMethod   AuthMethod
	PKPPublicKey string
	Chain        *chain.Chain
	Network      string
	Expiration   time.Time
}

// SessionSigner negotiates session signatures with the threshold network.
type SessionSigner interface {
	SessionSigs(ctx context.Context, params SessionSigParams) (SessionSigs, error)
}

// SessionSignerFunc adapts a function to SessionSigner.
type SessionSignerFunc func(ctx context.Context, params SessionSigParams) (SessionSigs, error)

func (f SessionSignerFunc) SessionSigs(ctx context.Context, params SessionSigParams) (SessionSigs, error) {
	return f(ctx, params)
}

// PKPWalletParams is what a PKP wallet is scoped to.
type PKPWalletParams struct {
	PKPPublicKey string
	SessionSigs  SessionSigs
	RPCURL       string
	Chain        *chain.Chain
}

// WalletFactory builds a wallet that signs through a PKP.
type WalletFactory interface {
	NewPKPWallet(ctx context.Context, params PKPWalletParams) (wallet.Signer, error)
}

// WalletFactoryFunc adapts a function to WalletFactory.
type WalletFactoryFunc func(ctx context.Context, params PKPWalletParams) (wallet.Signer, error)

func (f WalletFactoryFunc) NewPKPWallet(ctx context.Context, params PKPWalletParams) (wallet.Signer, error) {
	return f(ctx, params)
}

// PasskeyProvider runs WebAuthn ceremonies and turns them into auth methods.
type PasskeyProvider interface {
	Authenticate(ctx context.Context) (AuthMethod, error)
	// Register creates a credential for username and returns the auth
	// method a new PKP should be bound to.
	Register(ctx context.Context, username string) (AuthMethod, error)
}

// OAuthProvider drives a redirect-based sign-in.
type OAuthProvider interface {
	// Name is the provider tag carried in redirect urls, e.g. "google".
	Name() string
	SignInURL(redirectURI string) (string, error)
	IsSignInRedirect(uri string) bool
	Authenticate(ctx context.Context, uri string) (AuthMethod, error)
}

// call runs fn and turns a panic into an error.
func call[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", p)
			}
		}
	}()
	return fn()
}
