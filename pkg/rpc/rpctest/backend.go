// Package rpctest provides an in-process fake of the Snowball backend for
// tests of the transport and of everything built on it.
package rpctest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/DeBrosOfficial/snowball/pkg/httputil"
	"github.com/DeBrosOfficial/snowball/pkg/rpc"
)

// DefaultOTPCode is accepted by verifyOtp unless OTPCode is changed.
const DefaultOTPCode = "000000"

type injected struct {
	status int
	reason string
	code   string
	raw    string
}

type pendingOtp struct {
	email string
}

// Backend is a fake backend. Zero values are not usable; use New.
type Backend struct {
	APIKey       string
	OTPCode      string
	SessionTTL   time.Duration
	Clock        func() time.Time
	AuthConfig   rpc.AuthConfig
	WalletConfig rpc.WalletConfig

	mu       sync.Mutex
	users    map[string]*rpc.User // by email
	otps     map[string]pendingOtp
	sessions map[string]string // token -> email
	calls    map[string]int
	inject   map[string]injected
}

// New creates a backend that accepts apiKey for public procedures.
func New(apiKey string) *Backend {
	return &Backend{
		APIKey:     apiKey,
		OTPCode:    DefaultOTPCode,
		SessionTTL: time.Hour,
		Clock:      time.Now,
		AuthConfig: rpc.AuthConfig{
			Turnkey: rpc.TurnkeyConfig{
				RPID:       "localhost",
				OrgID:      "org-parent",
				RPName:     "Snowball",
				APIBaseURL: "https://api.turnkey.test",
			},
		},
		WalletConfig: rpc.WalletConfig{
			OrganizationID: "org-sub",
			Provider:       rpc.WalletProvider{Type: rpc.ProviderKeyA, Value: "alchemy-key"},
		},
		users:    make(map[string]*rpc.User),
		otps:     make(map[string]pendingOtp),
		sessions: make(map[string]string),
		calls:    make(map[string]int),
		inject:   make(map[string]injected),
	}
}

// Start serves the backend until the test ends and returns its base URL.
func (b *Backend) Start(t testing.TB) string {
	t.Helper()
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

// Handler returns the router.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/rpc/{proc}", b.dispatch)
	return r
}

// SeedUser registers a user reachable through email.
func (b *Backend) SeedUser(email string, u rpc.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(u.AuthMethods) == 0 {
		u.AuthMethods = []rpc.AuthMethod{{Type: "email", Value: email}}
	}
	b.users[email] = &u
}

// User returns a copy of the user registered under email.
func (b *Backend) User(email string) (rpc.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[email]
	if !ok {
		return rpc.User{}, false
	}
	return *u, true
}

// Fail makes every following call to proc return a structured Err.
func (b *Backend) Fail(proc string, status int, reason, code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inject[proc] = injected{status: status, reason: reason, code: code}
}

// RawResponse makes every following call to proc return body verbatim.
func (b *Backend) RawResponse(proc string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inject[proc] = injected{status: status, raw: body}
}

// Reset removes injected failures.
func (b *Backend) Reset(proc string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inject, proc)
}

// Calls returns how many times proc reached the backend.
func (b *Backend) Calls(proc string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[proc]
}

func (b *Backend) dispatch(w http.ResponseWriter, r *http.Request) {
	proc := chi.URLParam(r, "proc")

	b.mu.Lock()
	b.calls[proc]++
	inj, hasInj := b.inject[proc]
	b.mu.Unlock()

	if hasInj {
		if inj.raw != "" {
			w.WriteHeader(inj.status)
			_, _ = w.Write([]byte(inj.raw))
			return
		}
		httputil.WriteErr(w, inj.status, inj.reason, inj.code, nil)
		return
	}

	var body struct {
		Args map[string]any `json:"args"`
	}
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteErr(w, http.StatusBadRequest, "invalid_body", "rpctest-body", nil)
		return
	}

	token := httputil.ExtractBearerToken(r)
	if strings.HasPrefix(proc, "pu_") {
		b.mu.Lock()
		email, ok := b.sessions[token]
		b.mu.Unlock()
		if !ok {
			httputil.WriteErr(w, http.StatusUnauthorized, "invalid_session", "rpctest-session", nil)
			return
		}
		b.private(w, proc, email, body.Args)
		return
	}

	if token != b.APIKey {
		httputil.WriteErr(w, http.StatusUnauthorized, "invalid_api_key", "rpctest-api-key", nil)
		return
	}
	b.public(w, proc, body.Args)
}

func (b *Backend) public(w http.ResponseWriter, proc string, args map[string]any) {
	switch proc {
	case rpc.ProcSendOtp.Name:
		auth, _ := args["auth"].(map[string]any)
		email, _ := auth["value"].(string)
		if !httputil.ValidateEmail(email) {
			httputil.WriteErr(w, http.StatusBadRequest, "invalid_auth", "rpctest-email", nil)
			return
		}
		id := uuid.NewString()
		b.mu.Lock()
		b.otps[id] = pendingOtp{email: strings.TrimSpace(email)}
		b.mu.Unlock()
		httputil.WriteOk(w, rpc.SendOtpValue{UUID: id})

	case rpc.ProcVerifyOtp.Name:
		code, _ := args["code"].(string)
		id, _ := args["uuid"].(string)
		b.mu.Lock()
		pending, ok := b.otps[id]
		b.mu.Unlock()
		if !ok {
			httputil.WriteErr(w, http.StatusBadRequest, "expired_code", "rpctest-uuid", nil)
			return
		}
		if code != b.OTPCode {
			httputil.WriteErr(w, http.StatusBadRequest, "invalid_otp", "rpctest-otp", nil)
			return
		}
		b.mu.Lock()
		delete(b.otps, id)
		u, exists := b.users[pending.email]
		if !exists {
			u = &rpc.User{
				UID:         uuid.NewString(),
				AuthMethods: []rpc.AuthMethod{{Type: "email", Value: pending.email}},
			}
			b.users[pending.email] = u
		}
		user := *u
		b.mu.Unlock()
		httputil.WriteOk(w, rpc.LoginValue{User: user, NewSession: b.issueSession(pending.email)})

	case rpc.ProcGetAuthConfig.Name:
		cfg := b.AuthConfig
		cfg.LoginChallenge = uuid.NewString()
		httputil.WriteOk(w, cfg)

	case rpc.ProcLoginPasskey.Name:
		assertion, _ := args["assertion"].(map[string]any)
		credID, _ := assertion["credentialId"].(string)
		b.mu.Lock()
		var (
			email string
			found *rpc.User
		)
		for e, u := range b.users {
			for _, p := range u.Passkeys {
				if p.CredentialID == credID {
					email, found = e, u
				}
			}
		}
		var user rpc.User
		if found != nil {
			user = *found
		}
		b.mu.Unlock()
		if found == nil {
			httputil.WriteErr(w, http.StatusNotFound, "credential_not_found", "rpctest-credential", nil)
			return
		}
		httputil.WriteOk(w, rpc.LoginValue{User: user, NewSession: b.issueSession(email)})

	default:
		httputil.WriteErr(w, http.StatusNotFound, "unknown_procedure", "rpctest-proc", nil)
	}
}

func (b *Backend) private(w http.ResponseWriter, proc, email string, args map[string]any) {
	b.mu.Lock()
	u, ok := b.users[email]
	b.mu.Unlock()
	if !ok {
		httputil.WriteErr(w, http.StatusNotFound, "user_not_found", "rpctest-user", nil)
		return
	}

	switch proc {
	case rpc.ProcWhoami.Name:
		b.mu.Lock()
		user := *u
		b.mu.Unlock()
		httputil.WriteOk(w, user)

	case rpc.ProcConnectPasskey.Name:
		att, _ := args["attestation"].(map[string]any)
		credID, _ := att["credentialId"].(string)
		if credID == "" {
			httputil.WriteErr(w, http.StatusBadRequest, "invalid_attestation", "rpctest-attestation", nil)
			return
		}
		b.mu.Lock()
		u.Passkeys = append(u.Passkeys, rpc.Passkey{CredentialID: credID, PublicKey: "pk-" + credID})
		if len(u.Wallets) == 0 {
			u.Wallets = []rpc.Wallet{{
				ID: uuid.NewString(),
				Accounts: []rpc.WalletAccount{{
					Path:       "m/44'/60'/0'/0/0",
					Address:    DeriveAddress(u.UID),
					PathFormat: "PATH_FORMAT_BIP32",
				}},
			}}
		}
		user := *u
		b.mu.Unlock()
		httputil.WriteOk(w, rpc.ConnectPasskeyValue{User: user})

	case rpc.ProcGetWalletConfig.Name:
		httputil.WriteOk(w, b.WalletConfig)

	default:
		httputil.WriteErr(w, http.StatusNotFound, "unknown_procedure", "rpctest-proc", nil)
	}
}

// IssueSession creates a session for the user registered under email, as a
// successful login would.
func (b *Backend) IssueSession(email string) rpc.Session {
	return *b.issueSession(email)
}

func (b *Backend) issueSession(email string) *rpc.Session {
	s := &rpc.Session{
		Token:        uuid.NewString(),
		ExpiresAt:    b.Clock().Add(b.SessionTTL).UnixMilli(),
		RefreshToken: uuid.NewString(),
	}
	b.mu.Lock()
	b.sessions[s.Token] = email
	b.mu.Unlock()
	return s
}

// DeriveAddress is the deterministic account address given to new wallets.
func DeriveAddress(uid string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(uid))[12:])
}
