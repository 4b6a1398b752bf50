// Package littest provides in-process fakes of the threshold-network relay,
// session signer and PKP wallet factory.
package littest

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/DeBrosOfficial/snowball/pkg/auth/lit"
	"github.com/DeBrosOfficial/snowball/pkg/httputil"
	"github.com/DeBrosOfficial/snowball/pkg/wallet"
)

type mintRequest struct {
	authMethodID string
	polls        int
	status       lit.MintStatus
}

// Relay is a fake relay server. Zero values are not usable; use New.
type Relay struct {
	APIKey string
	// PendingPolls is how many status polls report InProgress before a mint
	// request finishes.
	PendingPolls int
	// FailMint makes mint requests end in Failed.
	FailMint bool

	mu       sync.Mutex
	pkps     map[string][]lit.PKP
	keys     map[string]*ecdsa.PrivateKey // by public key
	requests map[string]*mintRequest
	calls    map[string]int
}

// New creates a relay that accepts apiKey.
func New(apiKey string) *Relay {
	return &Relay{
		APIKey:   apiKey,
		pkps:     make(map[string][]lit.PKP),
		keys:     make(map[string]*ecdsa.PrivateKey),
		requests: make(map[string]*mintRequest),
		calls:    make(map[string]int),
	}
}

// Start serves the relay until the test ends and returns its base URL.
func (r *Relay) Start(t testing.TB) string {
	t.Helper()
	srv := httptest.NewServer(r.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

// Handler returns the router.
func (r *Relay) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(r.requireKey)
	router.Post("/fetch-pkps-by-auth-method", r.fetch)
	router.Post("/mint-next-and-add-auth-methods", r.mint)
	router.Get("/auth/status/{id}", r.status)
	return router
}

// HTTPRelay returns a relay client pointed at a started server.
func (r *Relay) HTTPRelay(t testing.TB) *lit.HTTPRelay {
	return lit.NewHTTPRelay(r.Start(t), r.APIKey)
}

// SeedPKP binds a new PKP to authMethodID as a finished mint would.
func (r *Relay) SeedPKP(authMethodID string) lit.PKP {
	pkp, key := newPKP()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[pkp.PublicKey] = key
	r.pkps[authMethodID] = append(r.pkps[authMethodID], pkp)
	return pkp
}

// PKPs returns the PKPs bound to authMethodID.
func (r *Relay) PKPs(authMethodID string) []lit.PKP {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]lit.PKP(nil), r.pkps[authMethodID]...)
}

// Calls returns how many times route was hit, e.g. "mint" or "status".
func (r *Relay) Calls(route string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[route]
}

// Key returns the private key behind a PKP public key.
func (r *Relay) Key(publicKey string) (*ecdsa.PrivateKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[publicKey]
	return key, ok
}

func (r *Relay) count(route string) {
	r.mu.Lock()
	r.calls[route]++
	r.mu.Unlock()
}

func (r *Relay) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if httputil.ExtractRelayKey(req) != r.APIKey {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Relay) fetch(w http.ResponseWriter, req *http.Request) {
	r.count("fetch")
	var body struct {
		AuthMethodID string `json:"authMethodId"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil || body.AuthMethodID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing authMethodId")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"pkps": r.PKPs(body.AuthMethodID)})
}

func (r *Relay) mint(w http.ResponseWriter, req *http.Request) {
	r.count("mint")
	var body struct {
		PermittedAuthMethodIDs []string `json:"permittedAuthMethodIds"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil || len(body.PermittedAuthMethodIDs) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "missing permittedAuthMethodIds")
		return
	}

	id := uuid.NewString()
	r.mu.Lock()
	r.requests[id] = &mintRequest{authMethodID: body.PermittedAuthMethodIDs[0], polls: r.PendingPolls}
	r.mu.Unlock()
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"requestId": id})
}

func (r *Relay) status(w http.ResponseWriter, req *http.Request) {
	r.count("status")
	id := chi.URLParam(req, "id")

	r.mu.Lock()
	mr, ok := r.requests[id]
	if !ok {
		r.mu.Unlock()
		httputil.WriteError(w, http.StatusNotFound, "unknown request")
		return
	}
	if mr.polls > 0 {
		mr.polls--
		r.mu.Unlock()
		httputil.WriteJSON(w, http.StatusOK, lit.MintStatus{Status: lit.StatusInProgress})
		return
	}
	if mr.status.Status == "" {
		if r.FailMint {
			mr.status = lit.MintStatus{Status: lit.StatusFailed, Error: "mint reverted"}
		} else {
			pkp, key := newPKP()
			r.keys[pkp.PublicKey] = key
			r.pkps[mr.authMethodID] = append(r.pkps[mr.authMethodID], pkp)
			mr.status = lit.MintStatus{
				Status:        lit.StatusSucceeded,
				PKPTokenID:    pkp.TokenID,
				PKPPublicKey:  pkp.PublicKey,
				PKPEthAddress: pkp.EthAddress.Hex(),
			}
		}
	}
	status := mr.status
	r.mu.Unlock()
	httputil.WriteJSON(w, http.StatusOK, status)
}

func newPKP() (lit.PKP, *ecdsa.PrivateKey) {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return lit.PKP{
		TokenID:    uuid.NewString(),
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)),
		EthAddress: crypto.PubkeyToAddress(key.PublicKey),
	}, key
}

// SessionSigner is a fake signer that records its calls.
type SessionSigner struct {
	mu     sync.Mutex
	Params []lit.SessionSigParams
	Err    error
}

func (s *SessionSigner) SessionSigs(_ context.Context, params lit.SessionSigParams) (lit.SessionSigs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Params = append(s.Params, params)
	if s.Err != nil {
		return nil, s.Err
	}
	sig, _ := json.Marshal(map[string]any{
		"sig":        fmt.Sprintf("sig-%d", len(s.Params)),
		"expiration": params.Expiration.UTC().Format("2006-01-02T15:04:05Z"),
	})
	return lit.SessionSigs{"https://node-1.test": sig}, nil
}

// Calls returns how many signing sessions were negotiated.
func (s *SessionSigner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Params)
}

// Wallets returns a wallet factory that signs with the relay's PKP keys, so
// wallet addresses match PKP eth addresses.
func (r *Relay) Wallets() lit.WalletFactory {
	return lit.WalletFactoryFunc(func(_ context.Context, params lit.PKPWalletParams) (wallet.Signer, error) {
		if len(params.SessionSigs) == 0 {
			return nil, errors.New("no session sigs")
		}
		key, ok := r.Key(params.PKPPublicKey)
		if !ok {
			return nil, fmt.Errorf("unknown pkp %s", params.PKPPublicKey)
		}
		return wallet.NewLocalSigner(key), nil
	})
}
