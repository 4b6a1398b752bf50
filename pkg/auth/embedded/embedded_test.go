package embedded_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/snowball/pkg/auth"
	"github.com/DeBrosOfficial/snowball/pkg/auth/embedded"
	"github.com/DeBrosOfficial/snowball/pkg/chain"
	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/rpc"
	"github.com/DeBrosOfficial/snowball/pkg/rpc/rpctest"
	"github.com/DeBrosOfficial/snowball/pkg/storage"
	"github.com/DeBrosOfficial/snowball/pkg/wallet"
)

const apiKey = "pk_test"

type fakeCeremony struct {
	mu         sync.Mutex
	attests    []embedded.AttestParams
	assertions []embedded.LoginParams
	credential string
	attestErr  error
	assertErr  error
}

func (f *fakeCeremony) AttestPasskey(_ context.Context, p embedded.AttestParams) (embedded.AttestPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attests = append(f.attests, p)
	if f.attestErr != nil {
		return embedded.AttestPayload{}, f.attestErr
	}
	return embedded.AttestPayload{
		EncodedChallenge: "challenge",
		Attestation:      rpc.Attestation{CredentialID: f.credential},
	}, nil
}

func (f *fakeCeremony) AssertLogin(_ context.Context, p embedded.LoginParams) (rpc.Assertion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assertions = append(f.assertions, p)
	if f.assertErr != nil {
		return rpc.Assertion{}, f.assertErr
	}
	return rpc.Assertion{CredentialID: f.credential}, nil
}

type fakeWallets struct {
	mu     sync.Mutex
	params []embedded.WalletClientParams
	err    error
}

func (f *fakeWallets) MakeWalletClient(p embedded.WalletClientParams) (wallet.Signer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	return wallet.GenerateLocalSigner()
}

func (f *fakeWallets) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.params)
}

type harness struct {
	backend  *rpctest.Backend
	client   *rpc.Client
	ceremony *fakeCeremony
	wallets  *fakeWallets
	cfg      embedded.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := rpctest.New(apiKey)
	url := backend.Start(t)
	h := &harness{
		backend:  backend,
		client:   rpc.New(rpc.Options{APIKey: apiKey, APIURL: url, Storage: storage.NewMemory()}),
		ceremony: &fakeCeremony{credential: "cred-1"},
		wallets:  &fakeWallets{},
	}
	h.cfg = embedded.Config{
		Ceremony: h.ceremony,
		Wallets:  h.wallets,
		Now:      func() time.Time { return time.Date(2026, time.October, 19, 21, 5, 0, 0, time.UTC) },
	}
	return h
}

func (h *harness) opts(c *chain.Chain, onChange func()) auth.MakeOptions {
	return auth.MakeOptions{Chain: c, RPC: h.client, OnStateChange: onChange}
}

func (h *harness) newAuth(t *testing.T) *embedded.Auth {
	t.Helper()
	a, err := embedded.New(h.opts(chain.Sepolia, nil), h.cfg)
	require.NoError(t, err)
	return a
}

func (h *harness) walletReady(t *testing.T, a *embedded.Auth) {
	t.Helper()
	ctx := context.Background()
	require.True(t, a.SendOtp(ctx, "a@b.com").IsOk())
	require.True(t, a.VerifyOtp(ctx, rpctest.DefaultOTPCode).IsOk())
	res := a.CreatePasskey(ctx, "")
	require.True(t, res.IsOk(), "createPasskey failed: %v", res.Failure())
	require.Equal(t, embedded.StateWalletReady, a.StateName())
}

func TestOtpToWalletReady(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var codes []string
	var a *embedded.Auth
	a, err := embedded.New(h.opts(chain.Sepolia, func() {
		if l := a.Loading(); l != nil {
			codes = append(codes, l.Code)
		}
	}), h.cfg)
	require.NoError(t, err)

	sent := a.SendOtp(ctx, "a@b.com")
	require.True(t, sent.IsOk())
	waiting, ok := a.State().(embedded.WaitingForOtp)
	require.True(t, ok, "state is %s", a.StateName())
	assert.Equal(t, sent.Value().UUID, waiting.OtpUUID)
	assert.Nil(t, a.Loading())

	verified := a.VerifyOtp(ctx, rpctest.DefaultOTPCode)
	require.True(t, verified.IsOk())
	authed, ok := a.State().(embedded.AuthenticatedNoPasskey)
	require.True(t, ok, "state is %s", a.StateName())
	assert.Equal(t, verified.Value().User.UID, authed.User.UID)

	addrs, err := a.GetWalletAddresses(ctx)
	require.NoError(t, err)
	assert.Empty(t, addrs, "no addresses before wallet-ready")

	created := a.CreatePasskey(ctx, "")
	require.True(t, created.IsOk(), "createPasskey failed: %v", created.Failure())
	ready, ok := a.State().(embedded.WalletReady)
	require.True(t, ok, "state is %s", a.StateName())
	assert.Equal(t, authed.User.UID, ready.User.UID)

	addrs, err = a.GetWalletAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{rpctest.DeriveAddress(authed.User.UID)}, addrs)
	assert.NotNil(t, a.Wallet())
	assert.Nil(t, a.Loading())
	assert.Nil(t, a.Err())

	assert.Equal(t, []string{
		embedded.LoadingSendOtp,
		embedded.LoadingVerifyOtp,
		embedded.LoadingGetAuthConfig,
		embedded.LoadingAttest,
		embedded.LoadingConnectPasskey,
		embedded.LoadingConnectPasskey, // carried into the next variant
		embedded.LoadingGetWalletConfig,
		embedded.LoadingMakeWalletClient,
	}, codes)
}

func TestCreatePasskeyNaming(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.newAuth(t)

	require.True(t, a.SendOtp(ctx, "a@b.com").IsOk())
	require.True(t, a.VerifyOtp(ctx, rpctest.DefaultOTPCode).IsOk())
	require.True(t, a.CreatePasskey(ctx, "Laptop").IsOk())

	require.Len(t, h.ceremony.attests, 1)
	p := h.ceremony.attests[0]
	assert.Equal(t, "Laptop - a@b.com", p.Name)
	assert.Equal(t, "Laptop - a@b.com (Oct 19 2026 9:05pm)", p.DisplayName)
	assert.Equal(t, "localhost", p.RPID)
	assert.Equal(t, "org-parent", p.OrgID)
	assert.Equal(t, "https://api.turnkey.test", p.APIBaseURL)
}

func TestWalletParams(t *testing.T) {
	h := newHarness(t)
	a := h.newAuth(t)
	h.walletReady(t, a)

	params, ok := a.WalletParams()
	require.True(t, ok)
	user := a.User()
	require.NotNil(t, user)

	assert.Equal(t, "localhost", params.RPID)
	assert.Equal(t, "https://api.turnkey.test", params.BaseURL)
	assert.Equal(t, "https://eth-sepolia.g.alchemy.com/v2/alchemy-key", params.Transport)
	assert.Equal(t, []string{"cred-1"}, params.CredentialIDs)
	assert.Equal(t, "org-sub", params.OrganizationID)
	assert.Equal(t, rpctest.DeriveAddress(user.UID), params.WalletAddress)
	assert.Same(t, chain.Sepolia, params.Chain)
}

func TestURLProviderTransport(t *testing.T) {
	h := newHarness(t)
	h.backend.WalletConfig.Provider = rpc.WalletProvider{Type: rpc.ProviderURL, Value: "https://rpc.example"}
	a := h.newAuth(t)
	h.walletReady(t, a)

	params, _ := a.WalletParams()
	assert.Equal(t, "https://rpc.example", params.Transport)
}

func TestGetWalletIsMemoized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.newAuth(t)
	h.walletReady(t, a)
	require.Equal(t, 1, h.wallets.calls())

	w1, err := a.GetWallet(ctx)
	require.NoError(t, err)
	w2, err := a.GetWallet(ctx)
	require.NoError(t, err)

	assert.Same(t, w1, w2)
	assert.Same(t, a.Wallet(), w1)
	assert.Equal(t, 1, h.wallets.calls())
	assert.Equal(t, 1, h.backend.Calls("pu_getWalletConfig"))
}

func TestVerifyOtpOutsideWaitingState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	setups := map[string]func(t *testing.T, a *embedded.Auth){
		embedded.StateInitializing: func(*testing.T, *embedded.Auth) {},
		embedded.StateNoSession: func(_ *testing.T, a *embedded.Auth) {
			a.Logout(ctx)
		},
		embedded.StateAuthenticatedNoPasskey: func(t *testing.T, a *embedded.Auth) {
			require.True(t, a.SendOtp(ctx, "x@y.com").IsOk())
			require.True(t, a.VerifyOtp(ctx, rpctest.DefaultOTPCode).IsOk())
		},
		embedded.StateWalletReady: func(t *testing.T, a *embedded.Auth) {
			h.walletReady(t, a)
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			a := h.newAuth(t)
			setup(t, a)
			require.Equal(t, name, a.StateName())
			before := a.State()
			calls := h.backend.Calls("verifyOtp")

			res := a.VerifyOtp(ctx, rpctest.DefaultOTPCode)
			require.False(t, res.IsOk())
			assert.Equal(t, sberrors.ReasonInvalidState, res.Failure().Reason)
			assert.Equal(t, embedded.CodeVerifyOtpInvalidState, res.Failure().Code)
			assert.Equal(t, embedded.StateWaitingForOtp, res.Failure().Meta["expected_state"])

			assert.Equal(t, before, a.State(), "variant and user must be unchanged")
			assert.Same(t, res.Failure(), a.Err())
			assert.Nil(t, a.Loading())
			assert.Equal(t, calls, h.backend.Calls("verifyOtp"))
			assert.True(t, sberrors.IsInvalidState(a.Err()))
		})
	}
}

func TestCreatePasskeyOutsideAuthenticatedState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	setups := map[string]func(t *testing.T, a *embedded.Auth){
		embedded.StateInitializing: func(*testing.T, *embedded.Auth) {},
		embedded.StateNoSession: func(_ *testing.T, a *embedded.Auth) {
			a.Logout(ctx)
		},
		embedded.StateWaitingForOtp: func(t *testing.T, a *embedded.Auth) {
			require.True(t, a.SendOtp(ctx, "x@y.com").IsOk())
		},
		embedded.StateWalletReady: func(t *testing.T, a *embedded.Auth) {
			h.walletReady(t, a)
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			a := h.newAuth(t)
			setup(t, a)
			before := a.State()
			attests := len(h.ceremony.attests)

			res := a.CreatePasskey(ctx, "")
			require.False(t, res.IsOk())
			assert.Equal(t, sberrors.ReasonInvalidState, res.Failure().Reason)
			assert.Equal(t, embedded.CodeCreatePasskeyInvalidState, res.Failure().Code)
			assert.Equal(t, before, a.State())
			assert.Equal(t, attests, len(h.ceremony.attests))
		})
	}
}

func TestGetWalletWithoutUser(t *testing.T) {
	h := newHarness(t)
	a := h.newAuth(t)
	a.Logout(context.Background())

	w, err := a.GetWallet(context.Background())
	require.Error(t, err)
	assert.Nil(t, w)
	assert.True(t, sberrors.IsInvalidState(err))
	assert.Equal(t, sberrors.ReasonInvalidState, a.Err().Reason)
	assert.Contains(t, a.Err().Unwrap().Error(), "Invalid state: no-session")
	assert.Equal(t, embedded.StateNoSession, a.StateName())
	assert.Zero(t, h.wallets.calls())
}

func TestCreatePasskeyWithoutEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.SeedUser("phone-user", rpc.User{
		UID:         "uid-phone",
		AuthMethods: []rpc.AuthMethod{{Type: "phone", Value: "+100"}},
	})
	h.client.SetSession(h.backend.IssueSession("phone-user"))

	a := h.newAuth(t)
	require.NoError(t, a.InitUserSession(ctx))
	require.Equal(t, embedded.StateAuthenticatedNoPasskey, a.StateName())

	res := a.CreatePasskey(ctx, "")
	require.False(t, res.IsOk())
	assert.Equal(t, sberrors.ReasonEmailNotFound, res.Failure().Reason)
	assert.Equal(t, embedded.CodeEmailNotFound, res.Failure().Code)
	assert.True(t, sberrors.IsPrecondition(res.Failure()))
}

func TestRemoteErrorKeepsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.newAuth(t)

	require.True(t, a.SendOtp(ctx, "a@b.com").IsOk())
	before := a.State()

	res := a.VerifyOtp(ctx, "123456")
	require.False(t, res.IsOk())
	assert.Equal(t, "invalid_otp", res.Failure().Reason)
	assert.Equal(t, before, a.State())
	assert.Equal(t, "invalid_otp", a.Err().Reason)
	assert.Nil(t, a.Loading())

	a.ClearError()
	assert.Nil(t, a.Err())

	// The caller can retry from the same state.
	require.True(t, a.VerifyOtp(ctx, rpctest.DefaultOTPCode).IsOk())
}

func TestSendOtpFailure(t *testing.T) {
	h := newHarness(t)
	a := h.newAuth(t)

	res := a.SendOtp(context.Background(), "not-an-email")
	require.False(t, res.IsOk())
	assert.Equal(t, "invalid_auth", a.Err().Reason)
	assert.Equal(t, embedded.StateInitializing, a.StateName())
}

func TestVerifyOtpExistingUserDerivesWallet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.SeedUser("old@b.com", rpc.User{
		UID:      "uid-old",
		Passkeys: []rpc.Passkey{{CredentialID: "cred-old"}},
		Wallets: []rpc.Wallet{{ID: "w1", Accounts: []rpc.WalletAccount{
			{Address: rpctest.DeriveAddress("uid-old")},
		}}},
	})

	a := h.newAuth(t)
	require.True(t, a.SendOtp(ctx, "old@b.com").IsOk())
	require.True(t, a.VerifyOtp(ctx, rpctest.DefaultOTPCode).IsOk())

	assert.Equal(t, embedded.StateWalletReady, a.StateName())
	params, _ := a.WalletParams()
	assert.Equal(t, []string{"cred-old"}, params.CredentialIDs)
}

func TestVerifyOtpWalletFailureStillSucceeds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.SeedUser("old@b.com", rpc.User{
		UID:     "uid-old",
		Wallets: []rpc.Wallet{{ID: "w1", Accounts: []rpc.WalletAccount{{Address: common.HexToAddress("0x01")}}}},
	})
	h.backend.Fail("pu_getWalletConfig", 500, "unexpected", "srv-1")

	a := h.newAuth(t)
	require.True(t, a.SendOtp(ctx, "old@b.com").IsOk())
	res := a.VerifyOtp(ctx, rpctest.DefaultOTPCode)

	assert.True(t, res.IsOk(), "the OTP itself was accepted")
	waiting, ok := a.State().(embedded.WaitingForOtp)
	require.True(t, ok)
	require.NotNil(t, waiting.User)
	assert.Equal(t, "uid-old", waiting.User.UID)
	assert.Equal(t, "srv-1", a.Err().Code)
	assert.Nil(t, a.Loading())
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.SeedUser("p@k.com", rpc.User{
		UID:      "uid-pk",
		Passkeys: []rpc.Passkey{{CredentialID: "cred-1"}},
		Wallets:  []rpc.Wallet{{ID: "w1", Accounts: []rpc.WalletAccount{{Address: rpctest.DeriveAddress("uid-pk")}}}},
	})

	a := h.newAuth(t)
	res := a.Login(ctx)
	require.True(t, res.IsOk(), "login failed: %v", res.Failure())
	assert.Equal(t, "uid-pk", res.Value().UID)
	assert.Equal(t, embedded.StateWalletReady, a.StateName())
	assert.Greater(t, a.SessionExpirationTime(), time.Now().UnixMilli())

	require.Len(t, h.ceremony.assertions, 1)
	assert.NotEmpty(t, h.ceremony.assertions[0].Challenge)
}

func TestLoginCeremonyFailure(t *testing.T) {
	h := newHarness(t)
	h.ceremony.assertErr = errors.New("user cancelled")
	a := h.newAuth(t)

	res := a.Login(context.Background())
	require.False(t, res.IsOk())
	f := res.Failure()
	assert.Equal(t, sberrors.ReasonAssertionFailed, f.Reason)
	assert.Equal(t, embedded.CodeAssertionFailed, f.Code)
	assert.EqualError(t, f.Unwrap(), "user cancelled")
	assert.True(t, sberrors.IsCeremony(f))
	assert.Equal(t, embedded.StateInitializing, a.StateName())
	assert.Zero(t, h.backend.Calls("loginPasskey"))
}

func TestLoginCeremonyPanicIsCaught(t *testing.T) {
	h := newHarness(t)
	a, err := embedded.New(h.opts(chain.Sepolia, nil), embedded.Config{
		Ceremony: panickingCeremony{},
		Wallets:  h.wallets,
	})
	require.NoError(t, err)

	res := a.Login(context.Background())
	require.False(t, res.IsOk())
	assert.Equal(t, embedded.CodeAssertionFailed, res.Failure().Code)
}

type panickingCeremony struct{}

func (panickingCeremony) AttestPasskey(context.Context, embedded.AttestParams) (embedded.AttestPayload, error) {
	panic("attest exploded")
}

func (panickingCeremony) AssertLogin(context.Context, embedded.LoginParams) (rpc.Assertion, error) {
	panic("assert exploded")
}

func TestAttestFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ceremony.attestErr = errors.New("not allowed")
	a := h.newAuth(t)

	require.True(t, a.SendOtp(ctx, "a@b.com").IsOk())
	require.True(t, a.VerifyOtp(ctx, rpctest.DefaultOTPCode).IsOk())
	before := a.State()

	res := a.CreatePasskey(ctx, "")
	require.False(t, res.IsOk())
	assert.Equal(t, sberrors.ReasonAttestFailed, res.Failure().Reason)
	assert.Equal(t, embedded.CodeAttestFailed, res.Failure().Code)
	assert.Equal(t, before, a.State())
	assert.Zero(t, h.backend.Calls("pu_connectPasskey"))
}

func TestWalletClientFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.wallets.err = errors.New("handshake failed")
	a := h.newAuth(t)

	require.True(t, a.SendOtp(ctx, "a@b.com").IsOk())
	require.True(t, a.VerifyOtp(ctx, rpctest.DefaultOTPCode).IsOk())
	res := a.CreatePasskey(ctx, "")
	require.False(t, res.IsOk())

	assert.Equal(t, "EmbeddedAuth.getWallet.1", res.Failure().Reason)
	assert.Equal(t, "e-Auth.setError", res.Failure().Code)
	assert.Contains(t, sberrors.Chain(res.Failure()), "handshake failed")
	assert.Equal(t, embedded.StateAuthenticatedNoPasskey, a.StateName(), "connected user is kept")
	assert.Nil(t, a.Wallet())
}

func TestInitUserSession(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		h := newHarness(t)
		a := h.newAuth(t)
		require.NoError(t, a.InitUserSession(context.Background()))
		assert.Equal(t, embedded.StateNoSession, a.StateName())
		assert.Zero(t, h.backend.Calls("pu_whoami"))
	})

	t.Run("user with wallet", func(t *testing.T) {
		h := newHarness(t)
		h.backend.SeedUser("w@b.com", rpc.User{
			UID:     "uid-w",
			Wallets: []rpc.Wallet{{ID: "w1", Accounts: []rpc.WalletAccount{{Address: rpctest.DeriveAddress("uid-w")}}}},
		})
		h.client.SetSession(h.backend.IssueSession("w@b.com"))

		a := h.newAuth(t)
		require.NoError(t, a.InitUserSession(context.Background()))
		assert.Equal(t, embedded.StateWalletReady, a.StateName())

		// Only runs from an idle initializing state.
		require.NoError(t, a.InitUserSession(context.Background()))
		assert.Equal(t, 1, h.backend.Calls("pu_whoami"))
	})

	t.Run("stale session", func(t *testing.T) {
		h := newHarness(t)
		h.client.SetSession(rpc.Session{Token: "unknown", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()})
		a := h.newAuth(t)
		require.NoError(t, a.InitUserSession(context.Background()))
		assert.Equal(t, embedded.StateNoSession, a.StateName())
	})
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	a := h.newAuth(t)
	h.walletReady(t, a)
	require.NotZero(t, a.SessionExpirationTime())

	a.Logout(context.Background())
	assert.Equal(t, embedded.StateNoSession, a.StateName())
	assert.Zero(t, a.SessionExpirationTime())
	assert.Nil(t, a.Wallet())
	assert.False(t, h.client.HasValidSession())
}

func TestConfigureCarriesStateWithinVMFamily(t *testing.T) {
	h := newHarness(t)
	factory := embedded.Configure(h.cfg)

	first, err := factory(h.opts(chain.Sepolia, nil), nil)
	require.NoError(t, err)
	prev := first.(*embedded.Auth)
	h.walletReady(t, prev)
	prevParams, _ := prev.WalletParams()
	prevWallet := prev.Wallet()

	next, err := factory(h.opts(chain.BaseSepolia, nil), prev)
	require.NoError(t, err)
	a := next.(*embedded.Auth)

	assert.Equal(t, embedded.StateWalletReady, a.StateName())
	assert.Equal(t, prev.User().UID, a.User().UID)
	assert.Same(t, chain.BaseSepolia, a.Chain())
	assert.Equal(t, 2, h.wallets.calls())

	params, ok := a.WalletParams()
	require.True(t, ok)
	assert.Same(t, chain.BaseSepolia, params.Chain)
	want := prevParams
	want.Chain = chain.BaseSepolia
	assert.Equal(t, want, params, "only the chain changes")

	require.NotNil(t, a.Wallet())
	assert.NotSame(t, prevWallet, a.Wallet())
}

func TestConfigureKeepsUserWhenWalletRebuildFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	factory := embedded.Configure(h.cfg)

	first, err := factory(h.opts(chain.Sepolia, nil), nil)
	require.NoError(t, err)
	prev := first.(*embedded.Auth)
	h.walletReady(t, prev)

	h.wallets.mu.Lock()
	h.wallets.err = errors.New("signer unavailable")
	h.wallets.mu.Unlock()

	next, err := factory(h.opts(chain.BaseSepolia, nil), prev)
	require.NoError(t, err)
	a := next.(*embedded.Auth)
	assert.Equal(t, embedded.StateInitializing, a.StateName())
	require.NotNil(t, a.User())
	assert.Equal(t, prev.User().UID, a.User().UID)
	assert.Nil(t, a.Wallet())
	assert.Nil(t, a.Err())

	h.wallets.mu.Lock()
	h.wallets.err = nil
	h.wallets.mu.Unlock()

	w, err := a.GetWallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, embedded.StateWalletReady, a.StateName())
	params, ok := a.WalletParams()
	require.True(t, ok)
	assert.Same(t, chain.BaseSepolia, params.Chain)
	assert.Equal(t, params.WalletAddress, prev.User().Wallets[0].Accounts[0].Address)
	assert.NotNil(t, w)
}

func TestConfigureDoesNotCarryAcrossVMFamilies(t *testing.T) {
	h := newHarness(t)
	factory := embedded.Configure(h.cfg)
	solana := &chain.Chain{ChainID: 101, Key: "solana", Name: "Solana", VMType: chain.VMTypeSVM}

	first, err := factory(h.opts(chain.Sepolia, nil), nil)
	require.NoError(t, err)
	h.walletReady(t, first.(*embedded.Auth))

	next, err := factory(h.opts(solana, nil), first)
	require.NoError(t, err)
	assert.Equal(t, embedded.StateInitializing, next.StateName())
	assert.Nil(t, next.Wallet())
	assert.Equal(t, 1, h.wallets.calls())
}

func TestNewRequiresCollaborators(t *testing.T) {
	h := newHarness(t)
	_, err := embedded.New(h.opts(chain.Sepolia, nil), embedded.Config{})
	assert.Equal(t, "missing.embeddedConfig", sberrors.Name(err))

	_, err = embedded.New(auth.MakeOptions{Chain: chain.Sepolia}, h.cfg)
	assert.Equal(t, "missing.rpc", sberrors.Name(err))
}

func TestConcurrentCallsAreSerialized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.newAuth(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.SendOtp(ctx, fmt.Sprintf("user%d@b.com", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, embedded.StateWaitingForOtp, a.StateName())
	assert.Nil(t, a.Loading())
	assert.Equal(t, 5, h.backend.Calls("sendOtp"))
}

func TestGetWalletFromStateSubscriber(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var (
		a   *embedded.Auth
		got wallet.Signer
	)
	a, err := embedded.New(h.opts(chain.Sepolia, func() {
		if got == nil && a.StateName() == embedded.StateWalletReady {
			got, _ = a.GetWallet(ctx)
		}
	}), h.cfg)
	require.NoError(t, err)

	done := make(chan bool)
	go func() {
		ok := a.SendOtp(ctx, "a@b.com").IsOk() &&
			a.VerifyOtp(ctx, rpctest.DefaultOTPCode).IsOk() &&
			a.CreatePasskey(ctx, "").IsOk()
		done <- ok
	}()

	select {
	case ok := <-done:
		require.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("GetWallet called from a state subscriber did not return")
	}
	require.NotNil(t, got)
	assert.Equal(t, a.Wallet().Address(), got.Address())
	assert.Equal(t, 1, h.wallets.calls())
}
