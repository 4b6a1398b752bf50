// Package lit implements auth providers backed by a threshold signing
// network. A credential (passkey or OAuth) is exchanged for key-shares
// (PKPs) through a relay; the wallet signs through a cached signing session.
package lit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/snowball/pkg/auth"
	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/logging"
	"github.com/DeBrosOfficial/snowball/pkg/result"
	"github.com/DeBrosOfficial/snowball/pkg/state"
	"github.com/DeBrosOfficial/snowball/pkg/storage"
	"github.com/DeBrosOfficial/snowball/pkg/wallet"
)

const (
	DefaultNetwork           = "cayenne"
	DefaultSessionExpiration = 24 * time.Hour
)

// Loading codes.
const (
	LoadingAuthenticate   = "authenticate"
	LoadingFetchPKPs      = "fetchPKPs"
	LoadingRegister       = "register"
	LoadingGetSessionSigs = "getSessionSigs"
	LoadingCreateWallet   = "createWallet"
	LoadingRedirectAuth   = "handleRedirect.authenticate"
	LoadingMintPKP        = "mintPKP"
)

// Config is shared by every Lit provider.
type Config struct {
	Network           string
	RPCURL            string
	RelayURL          string
	RelayAPIKey       string
	SessionExpiration time.Duration

	// Relay overrides the HTTP relay built from RelayURL and RelayAPIKey.
	Relay         Relay
	SessionSigner SessionSigner
	Wallets       WalletFactory
	Poll          PollOptions
	Now           func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if c.RPCURL == "" {
		c.RPCURL = fmt.Sprintf("https://rpc.%s.litprotocol.com", c.Network)
	}
	if c.RelayURL == "" {
		c.RelayURL = DefaultRelayURL
	}
	if c.SessionExpiration <= 0 {
		c.SessionExpiration = DefaultSessionExpiration
	}
	if c.Relay == nil {
		c.Relay = NewHTTPRelay(c.RelayURL, c.RelayAPIKey)
	}
	if c.Poll == (PollOptions{}) {
		c.Poll = DefaultPollOptions
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Auth is the state machine shared by the passkey and OAuth providers.
type Auth struct {
	auth.Base
	cfg   Config
	state *state.Container[State]

	op sync.Mutex

	sessionMu sync.RWMutex
	session   *sessionRecord
}

var _ auth.Auth = (*Auth)(nil)

func newAuth(className string, opts auth.MakeOptions, cfg Config) (*Auth, error) {
	if cfg.RelayAPIKey == "" && cfg.Relay == nil {
		return nil, sberrors.New("missing.litRelayApiKey", fmt.Sprintf("[%s] Missing litRelayApiKey", className))
	}
	if cfg.SessionSigner == nil || cfg.Wallets == nil {
		return nil, sberrors.New("missing.litConfig", fmt.Sprintf("[%s] Missing session signer or wallet factory", className))
	}

	a := &Auth{Base: auth.NewBase(className, logging.ComponentLit, opts), cfg: cfg.withDefaults()}
	a.state = state.New[State](Init{}, a.Logger().Logger)
	a.state.OnChange(func(snap state.Snapshot[State]) {
		a.Notify(snap.State.Name())
	})
	a.loadSession()
	return a, nil
}

// Config returns the effective configuration.
func (a *Auth) Config() Config {
	return a.cfg
}

func (a *Auth) Snapshot() state.Snapshot[State] {
	return a.state.Get()
}

func (a *Auth) State() State {
	return a.state.State()
}

func (a *Auth) StateName() string {
	return a.state.State().Name()
}

func (a *Auth) Loading() *state.Loading {
	return a.state.Get().Loading
}

func (a *Auth) Err() *result.Failure {
	return a.state.Get().Error
}

func (a *Auth) ClearError() {
	a.state.ClearError()
}

// Wallet returns the PKP wallet once the state is wallet-ready.
func (a *Auth) Wallet() wallet.Signer {
	if ready, ok := a.state.State().(WalletReady); ok {
		return ready.Wallet
	}
	return nil
}

// InitUserSession is a no-op: a signing session alone cannot rebuild the
// credential, so the user signs in again.
func (a *Auth) InitUserSession(context.Context) error {
	return nil
}

// SessionExpirationTime returns the expiry of the cached signing session, or
// 0 when there is none or it has expired.
func (a *Auth) SessionExpirationTime() int64 {
	a.sessionMu.RLock()
	defer a.sessionMu.RUnlock()
	if a.session == nil || a.session.ExpiresAt <= a.cfg.Now().UnixMilli() {
		return 0
	}
	return a.session.ExpiresAt
}

// Reset returns to init. A cached signing session is kept.
func (a *Auth) Reset() {
	a.op.Lock()
	defer a.op.Unlock()
	a.state.Set(Init{})
}

// GetWallet builds the PKP wallet from the first PKP of the authenticated
// credential, negotiating and caching a fresh signing session.
func (a *Auth) GetWallet(ctx context.Context) (wallet.Signer, error) {
	// Ready wallets skip op so state subscribers can call this.
	if w := a.Wallet(); w != nil {
		return w, nil
	}

	a.op.Lock()
	defer a.op.Unlock()
	return a.getWallet(ctx)
}

func (a *Auth) getWallet(ctx context.Context) (wallet.Signer, error) {
	if w := a.Wallet(); w != nil {
		return w, nil
	}

	makeError := sberrors.Builder(a.ClassName()+".getWallet", "Error getting wallet")

	authed, ok := a.state.State().(Authenticated)
	if !ok {
		return nil, a.state.SetError(makeError(0, "Not authenticated"))
	}
	if len(authed.PKPs) == 0 || authed.PKPs[0].PublicKey == "" {
		return nil, a.state.SetError(makeError(1, "No PKPs found"))
	}
	pkp := authed.PKPs[0]

	expires := a.cfg.Now().Add(a.cfg.SessionExpiration)
	a.state.SetLoading(LoadingGetSessionSigs, "Getting session signatures")
	sigs, err := call(func() (SessionSigs, error) {
		return a.cfg.SessionSigner.SessionSigs(ctx, SessionSigParams{
			AuthMethod:   authed.AuthMethod,
			PKPPublicKey: pkp.PublicKey,
			Chain:        a.Chain(),
			Network:      a.cfg.Network,
			Expiration:   expires,
		})
	})
	if err != nil {
		return nil, a.state.SetError(makeError(2, err))
	}
	a.saveSession(sessionRecord{Version: sessionRecordVersion, ExpiresAt: expires.UnixMilli(), SessionSigs: sigs})

	a.state.SetLoading(LoadingCreateWallet, "Creating wallet")
	w, err := call(func() (wallet.Signer, error) {
		return a.cfg.Wallets.NewPKPWallet(ctx, PKPWalletParams{
			PKPPublicKey: pkp.PublicKey,
			SessionSigs:  sigs,
			RPCURL:       a.cfg.RPCURL,
			Chain:        a.Chain(),
		})
	})
	if err != nil {
		return nil, a.state.SetError(makeError(3, err))
	}

	a.Logger().ComponentDebug(logging.ComponentWallet, "pkp wallet created",
		zap.String("address", w.Address().Hex()),
		zap.Stringer("chain", a.Chain()))

	method := authed.AuthMethod
	a.state.Set(WalletReady{AuthMethod: &method, PKPs: authed.PKPs, Wallet: w})
	return w, nil
}

// GetWalletAddresses builds the wallet when needed and returns its address.
func (a *Auth) GetWalletAddresses(ctx context.Context) ([]common.Address, error) {
	w, err := a.GetWallet(ctx)
	if err != nil {
		return nil, err
	}
	return []common.Address{w.Address()}, nil
}

// invalidState records an attempt to run op outside init.
func (a *Auth) invalidState(op string) error {
	return a.state.SetError(sberrors.New(sberrors.ReasonInvalidState,
		fmt.Sprintf("[%s.%s] Invalid state: %s", a.ClassName(), op, a.StateName())).
		WithCode(sberrors.CodeInvalidState))
}

// mintPKP mints a key-share bound to method and waits for the relay to finish.
func (a *Auth) mintPKP(ctx context.Context, method AuthMethod) (PKP, error) {
	requestID, err := a.cfg.Relay.MintPKP(ctx, method)
	if err != nil {
		return PKP{}, err
	}
	a.Logger().ComponentDebug(a.Component(), "mint requested", zap.String("request_id", requestID))

	status, err := PollUntilTerminal(ctx, a.cfg.Relay, requestID, a.cfg.Poll)
	if err != nil {
		return PKP{}, err
	}
	if status.Status != StatusSucceeded {
		return PKP{}, fmt.Errorf("minting failed: %s", status.Error)
	}
	pkp := status.PKP()
	if pkp.PublicKey == "" {
		return PKP{}, fmt.Errorf("minting returned no public key")
	}
	if pkp.TokenID == "" {
		a.Logger().ComponentWarn(a.Component(), "Missing required fields in mint response", zap.String("request_id", requestID))
	}
	return pkp, nil
}

func (a *Auth) sessionKey() string {
	return a.ClassName() + ":sessionSigs"
}

// loadSession restores a cached signing session, discarding it when it is
// stale, from another record version, or unreadable.
func (a *Auth) loadSession() {
	store := a.Storage()
	if store == nil {
		a.Logger().ComponentDebug(a.Component(), "storage not available")
		return
	}

	var rec sessionRecord
	ok, err := storage.GetJSON(store, a.sessionKey(), &rec)
	if err != nil {
		a.Logger().ComponentWarn(a.Component(), "Error loading session", zap.Error(err))
		_ = store.Remove(a.sessionKey())
		return
	}
	if !ok {
		a.Logger().ComponentDebug(a.Component(), "No session found")
		return
	}

	var soft string
	switch {
	case rec.Version != sessionRecordVersion:
		soft = "Session version mismatch"
	case rec.ExpiresAt <= a.cfg.Now().UnixMilli():
		soft = "Session expired"
	}
	if soft != "" {
		a.Logger().ComponentDebug(a.Component(), soft, zap.Stringer("record", rec))
		_ = store.Remove(a.sessionKey())
		return
	}

	a.sessionMu.Lock()
	a.session = &rec
	a.sessionMu.Unlock()
	a.Logger().ComponentDebug(a.Component(), "Loaded session", zap.Int64("expires_at", rec.ExpiresAt))
}

func (a *Auth) saveSession(rec sessionRecord) {
	a.sessionMu.Lock()
	a.session = &rec
	a.sessionMu.Unlock()

	if err := storage.SetJSON(a.Storage(), a.sessionKey(), rec); err != nil {
		a.Logger().ComponentWarn(a.Component(), "Error saving session", zap.Error(err))
		return
	}
	a.Logger().ComponentDebug(a.Component(), "Saved session", zap.Int64("expires_at", rec.ExpiresAt))
}
