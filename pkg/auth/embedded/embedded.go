// Package embedded implements the email OTP + passkey provider. Identity is
// established against the Snowball backend; the wallet client is derived
// from the backend's wallet configuration and memoized.
package embedded

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DeBrosOfficial/snowball/pkg/auth"
	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/logging"
	"github.com/DeBrosOfficial/snowball/pkg/result"
	"github.com/DeBrosOfficial/snowball/pkg/rpc"
	"github.com/DeBrosOfficial/snowball/pkg/state"
	"github.com/DeBrosOfficial/snowball/pkg/wallet"
)

// ClassName identifies this provider in logs, metrics and errors.
const ClassName = "EmbeddedAuth"

// Loading codes, one per step.
const (
	LoadingInitUserSession  = "emb:initUserSession"
	LoadingInitWallet       = "emb:initWallet"
	LoadingSendOtp          = "emb:sendOtp"
	LoadingVerifyOtp        = "emb:verifyOtp"
	LoadingGetAuthConfig    = "emb:getAuthConfig"
	LoadingLoginPasskey     = "emb:login:passkey"
	LoadingLoginRPC         = "emb:login:rpc"
	LoadingAttest           = "emb:attest"
	LoadingConnectPasskey   = "emb:connectPasskey"
	LoadingGetWalletConfig  = "emb:getWalletConfig"
	LoadingMakeWalletClient = "emb:makeWalletClient"
)

// Failure codes.
const (
	CodeVerifyOtpInvalidState     = "e5725223"
	CodeCreatePasskeyInvalidState = "e6229558"
	CodeEmailNotFound             = "e574623491"
	CodeAssertionFailed           = "e4862734"
	CodeAttestFailed              = "e519443"
)

// Config holds the host-specific collaborators.
type Config struct {
	Ceremony CeremonyProvider
	Wallets  WalletClientMaker
	// ServerSignURL is forwarded to attestation when set.
	ServerSignURL string
	// Now renders passkey display names. Defaults to time.Now.
	Now func() time.Time
}

type builtWallet struct {
	client wallet.Signer
	params WalletClientParams
}

// Auth is the embedded provider state machine. Mutating operations are
// serialized per instance.
type Auth struct {
	auth.Base
	cfg   Config
	state *state.Container[State]

	op sync.Mutex

	walletMu sync.RWMutex
	built    *builtWallet
}

var _ auth.Auth = (*Auth)(nil)

// New creates an instance in the initializing state.
func New(opts auth.MakeOptions, cfg Config) (*Auth, error) {
	if opts.RPC == nil {
		return nil, sberrors.New("missing.rpc", fmt.Sprintf("[%s] Missing rpc client", ClassName))
	}
	if cfg.Ceremony == nil || cfg.Wallets == nil {
		return nil, sberrors.New("missing.embeddedConfig", fmt.Sprintf("[%s] Missing ceremony or wallet provider", ClassName))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	a := &Auth{Base: auth.NewBase(ClassName, logging.ComponentEmbedded, opts), cfg: cfg}
	a.state = state.New[State](Initializing{}, a.Logger().Logger)
	a.state.OnChange(func(snap state.Snapshot[State]) {
		a.Notify(snap.State.Name())
	})
	return a, nil
}

// Snapshot returns the current state with its loading and error attributes.
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

// User returns the known user, or nil.
func (a *Auth) User() *rpc.User {
	return UserOf(a.state.State())
}

// Wallet returns the wallet client once the state is wallet-ready.
func (a *Auth) Wallet() wallet.Signer {
	if _, ok := a.state.State().(WalletReady); !ok {
		return nil
	}
	a.walletMu.RLock()
	defer a.walletMu.RUnlock()
	if a.built == nil {
		return nil
	}
	return a.built.client
}

// WalletParams returns the parameters the current wallet client was built with.
func (a *Auth) WalletParams() (WalletClientParams, bool) {
	a.walletMu.RLock()
	defer a.walletMu.RUnlock()
	if a.built == nil {
		return WalletClientParams{}, false
	}
	return a.built.params, true
}

// SessionExpirationTime reports the backend session expiry.
func (a *Auth) SessionExpirationTime() int64 {
	return a.RPC().SessionExpirationTime()
}

// InitUserSession restores the user behind a persisted session. It does
// nothing unless the state is initializing and idle.
func (a *Auth) InitUserSession(ctx context.Context) error {
	a.op.Lock()
	defer a.op.Unlock()

	snap := a.state.Get()
	if snap.State.Name() != StateInitializing || snap.IsLoading() {
		return nil
	}

	a.state.SetLoading(LoadingInitUserSession, "Initializing user session")
	user := a.GetUser(ctx)
	if user == nil {
		a.state.Set(NoSession{})
		return nil
	}

	if len(user.Wallets) == 0 {
		// A user without wallets has not registered a passkey yet.
		a.state.Set(AuthenticatedNoPasskey{User: *user})
		return nil
	}

	a.state.SetLoading(LoadingInitWallet, "Initializing wallet")
	a.state.SetKeepLoading(Initializing{User: user})
	if _, f := a.getWallet(ctx); f != nil {
		return f
	}
	return nil
}

// SendOtp emails a one-time code and waits for it.
func (a *Auth) SendOtp(ctx context.Context, email string) result.Result[rpc.SendOtpValue] {
	a.op.Lock()
	defer a.op.Unlock()

	a.state.SetLoading(LoadingSendOtp, "Sending OTP")
	res := a.RPC().SendOtp(ctx, email)
	if !res.IsOk() {
		return result.Fail[rpc.SendOtpValue](a.state.SetErr(res.Failure()))
	}
	a.state.Set(WaitingForOtp{OtpUUID: res.Value().UUID})
	return res
}

// VerifyOtp submits the code for the pending OTP. A user that already has
// wallets continues straight to wallet-ready.
func (a *Auth) VerifyOtp(ctx context.Context, code string) result.Result[rpc.LoginValue] {
	a.op.Lock()
	defer a.op.Unlock()

	waiting, ok := a.state.State().(WaitingForOtp)
	if !ok {
		return result.Fail[rpc.LoginValue](a.state.SetErr(result.NewFailure(
			sberrors.ReasonInvalidState, CodeVerifyOtpInvalidState,
			result.WithMeta(map[string]any{"expected_state": StateWaitingForOtp}),
		)))
	}

	a.state.SetLoading(LoadingVerifyOtp, "Verifying OTP")
	res := a.RPC().VerifyOtp(ctx, code, waiting.OtpUUID)
	if !res.IsOk() {
		return result.Fail[rpc.LoginValue](a.state.SetErr(res.Failure()))
	}

	user := res.Value().User
	if len(user.Wallets) == 0 {
		a.state.Set(AuthenticatedNoPasskey{User: user})
		return res
	}

	a.state.SetKeepLoading(WaitingForOtp{OtpUUID: waiting.OtpUUID, User: &user})
	if _, f := a.getWallet(ctx); f != nil {
		a.Logger().ComponentWarn(a.Component(), "Unable to create wallet", zap.String("reason", f.Reason))
	}
	return res
}

// Login signs in with an existing passkey.
func (a *Auth) Login(ctx context.Context) result.Result[rpc.User] {
	a.op.Lock()
	defer a.op.Unlock()

	a.state.SetLoading(LoadingGetAuthConfig, "Retrieving auth config")
	cfg := a.RPC().GetAuthConfig(ctx)
	if !cfg.IsOk() {
		return result.Fail[rpc.User](a.state.SetErr(cfg.Failure()))
	}

	a.state.SetLoading(LoadingLoginPasskey, "Logging in")
	assertion := result.Catch(sberrors.ReasonAssertionFailed, CodeAssertionFailed, func() (rpc.Assertion, error) {
		return a.cfg.Ceremony.AssertLogin(ctx, LoginParams{Challenge: cfg.Value().LoginChallenge})
	})
	if !assertion.IsOk() {
		return result.Fail[rpc.User](a.state.SetErr(assertion.Failure()))
	}

	a.state.SetLoading(LoadingLoginRPC, "Logging in")
	login := a.RPC().LoginPasskey(ctx, assertion.Value())
	if !login.IsOk() {
		return result.Fail[rpc.User](a.state.SetErr(login.Failure()))
	}

	user := login.Value().User
	a.state.SetKeepLoading(withUser(a.state.State(), user))

	// A working passkey implies the user has a wallet.
	if _, f := a.getWallet(ctx); f != nil {
		return result.Fail[rpc.User](f)
	}
	return result.Ok(user)
}

// CreatePasskey registers a passkey for the signed-in user and derives the
// wallet. The passkey is named "<name> - <email>", or just the email.
func (a *Auth) CreatePasskey(ctx context.Context, name string) result.Result[rpc.User] {
	a.op.Lock()
	defer a.op.Unlock()

	current, ok := a.state.State().(AuthenticatedNoPasskey)
	if !ok {
		return result.Fail[rpc.User](a.state.SetErr(result.NewFailure(
			sberrors.ReasonInvalidState, CodeCreatePasskeyInvalidState,
			result.WithMeta(map[string]any{"expected_state": StateAuthenticatedNoPasskey}),
		)))
	}

	email, ok := current.User.Email()
	if !ok {
		return result.Fail[rpc.User](a.state.SetErr(result.NewFailure(sberrors.ReasonEmailNotFound, CodeEmailNotFound)))
	}

	a.state.SetLoading(LoadingGetAuthConfig, "Retrieving auth config")
	cfg := a.RPC().GetAuthConfig(ctx)
	if !cfg.IsOk() {
		return result.Fail[rpc.User](a.state.SetErr(cfg.Failure()))
	}

	passkeyName := email
	if name != "" {
		passkeyName = name + " - " + email
	}
	turnkey := cfg.Value().Turnkey

	a.state.SetLoading(LoadingAttest, "Attesting passkey")
	attest := result.Catch(sberrors.ReasonAttestFailed, CodeAttestFailed, func() (AttestPayload, error) {
		return a.cfg.Ceremony.AttestPasskey(ctx, AttestParams{
			Name:          passkeyName,
			DisplayName:   fmt.Sprintf("%s (%s)", passkeyName, renderTimestamp(a.cfg.Now())),
			OrgID:         turnkey.OrgID,
			RPID:          turnkey.RPID,
			APIBaseURL:    turnkey.APIBaseURL,
			ServerSignURL: a.cfg.ServerSignURL,
		})
	})
	if !attest.IsOk() {
		return result.Fail[rpc.User](a.state.SetErr(attest.Failure()))
	}

	a.state.SetLoading(LoadingConnectPasskey, "Creating new user")
	connect := a.RPC().ConnectPasskey(ctx, attest.Value().EncodedChallenge, attest.Value().Attestation)
	if !connect.IsOk() {
		return result.Fail[rpc.User](a.state.SetErr(connect.Failure()))
	}

	user := connect.Value().User
	a.state.SetKeepLoading(AuthenticatedNoPasskey{User: user})
	if _, f := a.getWallet(ctx); f != nil {
		return result.Fail[rpc.User](f)
	}
	return result.Ok(user)
}

// GetWallet returns the wallet client, building it from the backend's wallet
// configuration when the state carries a user.
func (a *Auth) GetWallet(ctx context.Context) (wallet.Signer, error) {
	// A ready wallet is returned without taking op, so state subscribers
	// notified from inside an operation can call this.
	if w := a.Wallet(); w != nil {
		return w, nil
	}

	a.op.Lock()
	defer a.op.Unlock()

	w, f := a.getWallet(ctx)
	if f != nil {
		return nil, f
	}
	return w, nil
}

func (a *Auth) getWallet(ctx context.Context) (wallet.Signer, *result.Failure) {
	if w := a.Wallet(); w != nil {
		return w, nil
	}

	current := a.state.State()
	user := UserOf(current)
	if user == nil {
		return nil, a.state.SetError(sberrors.New(sberrors.ReasonInvalidState,
			fmt.Sprintf("[%s.getWallet] Invalid state: %s", ClassName, current.Name())).
			WithCode(sberrors.CodeInvalidState))
	}
	u := *user
	makeError := sberrors.Builder(ClassName+".getWallet", "Error getting wallet")

	a.state.SetLoading(LoadingGetWalletConfig, "Retrieving wallet")
	var (
		authCfg   result.Result[rpc.AuthConfig]
		walletCfg result.Result[rpc.WalletConfig]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		authCfg = a.RPC().GetAuthConfig(gctx)
		if !authCfg.IsOk() {
			return authCfg.Failure()
		}
		return nil
	})
	g.Go(func() error {
		walletCfg = a.RPC().GetWalletConfig(gctx)
		if !walletCfg.IsOk() {
			return walletCfg.Failure()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		f, _ := result.AsFailure(err)
		return nil, a.state.SetErr(f)
	}

	if len(u.Wallets) == 0 || len(u.Wallets[0].Accounts) == 0 {
		return nil, a.state.SetError(makeError(0, "User has no wallet accounts"))
	}

	provider := walletCfg.Value().Provider
	params := WalletClientParams{
		RPID:           authCfg.Value().Turnkey.RPID,
		Chain:          a.Chain(),
		BaseURL:        authCfg.Value().Turnkey.APIBaseURL,
		Transport:      transportURL(a.Chain(), provider),
		CredentialIDs:  u.CredentialIDs(),
		WalletAddress:  u.Wallets[0].Accounts[0].Address,
		OrganizationID: walletCfg.Value().OrganizationID,
	}

	a.state.SetLoading(LoadingMakeWalletClient, "Constructing wallet")
	client, err := a.walletFor(params)
	if err != nil {
		return nil, a.state.SetError(makeError(1, err))
	}

	a.state.Set(WalletReady{User: u})
	return client, nil
}

// walletFor returns the memoized client for params, building it on a miss.
func (a *Auth) walletFor(params WalletClientParams) (wallet.Signer, error) {
	a.walletMu.Lock()
	defer a.walletMu.Unlock()

	if a.built != nil && a.built.params.key() == params.key() {
		return a.built.client, nil
	}
	client, err := a.cfg.Wallets.MakeWalletClient(params)
	if err != nil {
		return nil, err
	}
	a.built = &builtWallet{client: client, params: params}
	a.Logger().ComponentDebug(logging.ComponentWallet, "wallet client built",
		zap.String("address", params.WalletAddress.Hex()),
		zap.Stringer("chain", params.Chain))
	return client, nil
}

// GetWalletAddresses lists the accounts of the user's first wallet once the
// state is wallet-ready, and nothing otherwise.
func (a *Auth) GetWalletAddresses(context.Context) ([]common.Address, error) {
	ready, ok := a.state.State().(WalletReady)
	if !ok || len(ready.User.Wallets) == 0 {
		return nil, nil
	}
	accounts := ready.User.Wallets[0].Accounts
	out := make([]common.Address, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, acc.Address)
	}
	return out, nil
}

// SyncSession follows the shared rpc session after another instance changed
// it. A signed-in state without a valid session drops to no-session; a
// no-session state with a valid one goes back to initializing, so the next
// InitUserSession restores the user.
func (a *Auth) SyncSession() {
	a.op.Lock()
	defer a.op.Unlock()

	valid := a.RPC().HasValidSession()
	switch a.state.State().(type) {
	case AuthenticatedNoPasskey, WalletReady:
		if !valid {
			a.state.Set(NoSession{})
		}
	case NoSession:
		if valid {
			a.state.Set(Initializing{})
		}
	}
}

// Logout drops the backend session and returns to no-session.
func (a *Auth) Logout(context.Context) {
	a.op.Lock()
	defer a.op.Unlock()

	a.state.Set(NoSession{})
	a.RPC().Logout()
}
