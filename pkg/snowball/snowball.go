// Package snowball is the SDK entry point. It owns one set of auth providers
// per chain, picks the active session and derives smart wallets from the
// providers' wallet handles.
package snowball

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/DeBrosOfficial/snowball/pkg/auth"
	"github.com/DeBrosOfficial/snowball/pkg/chain"
	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/logging"
	"github.com/DeBrosOfficial/snowball/pkg/metrics"
	"github.com/DeBrosOfficial/snowball/pkg/pubsub"
	"github.com/DeBrosOfficial/snowball/pkg/rpc"
	"github.com/DeBrosOfficial/snowball/pkg/smartwallet"
	"github.com/DeBrosOfficial/snowball/pkg/storage"
	"github.com/DeBrosOfficial/snowball/pkg/wallet"
)

// DefaultAPIURL is the hosted backend.
const DefaultAPIURL = "https://api.snowball.build/v1"

// NamedFactory registers an auth provider under a name.
type NamedFactory struct {
	Name string
	Make auth.Factory
}

// Options configures a Snowball instance.
type Options struct {
	Chain  *chain.Chain
	APIKey string
	APIURL string
	// DeferSessionInit skips session restore until InitUserSessions is called.
	DeferSessionInit bool

	Storage    storage.Storage
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
	// RPC overrides the client built from APIKey and APIURL.
	RPC *rpc.Client

	// Auths are kept in order; the order breaks session expiry ties.
	Auths           []NamedFactory
	MakeSmartWallet smartwallet.Factory
}

type cachedSmartWallet struct {
	wallet smartwallet.SmartWallet
	owner  wallet.Signer
}

// entry holds the providers and smart wallets of one chain.
type entry struct {
	chain        *chain.Chain
	auths        map[string]auth.Auth
	mu           sync.Mutex
	smartWallets map[string]cachedSmartWallet
}

// Snowball multiplexes auth providers across chains.
type Snowball struct {
	opts    Options
	rpc     *rpc.Client
	logger  *logging.ColoredLogger
	pubsub  *pubsub.Manager
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[int64]*entry
	current *entry
	canInit bool

	// serializes chain switches
	switchMu sync.Mutex
	build    singleflight.Group
}

// New creates an instance on opts.Chain and constructs its providers.
func New(ctx context.Context, opts Options) (*Snowball, error) {
	if opts.Chain == nil {
		return nil, sberrors.Make("missing.chain", "Chain not initialized", sberrors.ErrMissingChain).WithCode(sberrors.CodePrecondition)
	}
	seen := make(map[string]bool, len(opts.Auths))
	for _, nf := range opts.Auths {
		if nf.Name == "" || nf.Make == nil {
			return nil, sberrors.New("invalid.auth", "Auth factories need a name and a constructor")
		}
		if seen[nf.Name] {
			return nil, sberrors.Newf("invalid.auth", "Duplicate auth %q", nf.Name)
		}
		seen[nf.Name] = true
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Storage == nil {
		opts.Storage = storage.NewMemory()
	}

	logger := logging.Wrap(opts.Logger).Named("Snowball")
	client := opts.RPC
	if client == nil {
		client = rpc.New(rpc.Options{
			APIKey:     opts.APIKey,
			APIURL:     opts.APIURL,
			Storage:    opts.Storage,
			Logger:     opts.Logger,
			HTTPClient: opts.HTTPClient,
			Metrics:    opts.Metrics,
		})
	}

	s := &Snowball{
		opts:    opts,
		rpc:     client,
		logger:  logger,
		pubsub:  pubsub.NewManager(logger.Logger),
		metrics: opts.Metrics,
		entries: make(map[int64]*entry),
		canInit: !opts.DeferSessionInit,
	}
	if err := s.SwitchChain(ctx, opts.Chain); err != nil {
		return nil, err
	}
	return s, nil
}

// RPC returns the backend client shared by every provider.
func (s *Snowball) RPC() *rpc.Client {
	return s.rpc
}

func (s *Snowball) currentEntry() (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, sberrors.Make("missing.chain", "Chain not initialized", sberrors.ErrMissingChain).WithCode(sberrors.CodePrecondition)
	}
	return s.current, nil
}

// Chain returns the current chain.
func (s *Snowball) Chain() *chain.Chain {
	e, err := s.currentEntry()
	if err != nil {
		return nil
	}
	return e.chain
}

// Auth returns the named provider on the current chain, or nil.
func (s *Snowball) Auth(name string) auth.Auth {
	e, err := s.currentEntry()
	if err != nil {
		return nil
	}
	return e.auths[name]
}

// Auths returns the providers on the current chain by name.
func (s *Snowball) Auths() map[string]auth.Auth {
	e, err := s.currentEntry()
	if err != nil {
		return nil
	}
	out := make(map[string]auth.Auth, len(e.auths))
	for name, a := range e.auths {
		out[name] = a
	}
	return out
}

// AuthNames returns the configured provider names in order.
func (s *Snowball) AuthNames() []string {
	names := make([]string, 0, len(s.opts.Auths))
	for _, nf := range s.opts.Auths {
		names = append(names, nf.Name)
	}
	return names
}

// Session returns the provider whose session expires last, or nil when no
// provider has a live session. Ties go to the provider registered first.
func (s *Snowball) Session() auth.Auth {
	e, err := s.currentEntry()
	if err != nil {
		return nil
	}
	var best auth.Auth
	var bestExp int64
	for _, nf := range s.opts.Auths {
		a := e.auths[nf.Name]
		if exp := a.SessionExpirationTime(); exp > bestExp {
			best, bestExp = a, exp
		}
	}
	return best
}

// InitUserSessions restores sessions of every provider on the current chain
// and enables restore on later chain switches.
func (s *Snowball) InitUserSessions(ctx context.Context) error {
	e, err := s.currentEntry()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.canInit = true
	s.mu.Unlock()
	return s.initSessions(ctx, e)
}

func (s *Snowball) initSessions(ctx context.Context, e *entry) error {
	var errs []error
	for _, nf := range s.opts.Auths {
		if err := e.auths[nf.Name].InitUserSession(ctx); err != nil {
			s.logger.ComponentWarn(logging.ComponentSnowball, "session init failed",
				zap.String("auth", nf.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", nf.Name, err))
		}
	}
	return errors.Join(errs...)
}

// SwitchChain makes c current. Providers for a chain are built once; later
// switches back to it reuse them after syncing them with the shared rpc
// session. Each factory receives the same provider's instance on the
// previous chain.
func (s *Snowball) SwitchChain(ctx context.Context, c *chain.Chain) error {
	if c == nil {
		return sberrors.Make("missing.chain", "Chain not initialized", sberrors.ErrMissingChain).WithCode(sberrors.CodePrecondition)
	}
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.RLock()
	prev := s.current
	cached, ok := s.entries[c.ChainID]
	canInit := s.canInit
	s.mu.RUnlock()

	if ok {
		s.setCurrent(cached)
		s.logger.ComponentDebug(logging.ComponentSnowball, "switched to cached chain", zap.Stringer("chain", c))
		for _, a := range cached.auths {
			if syncer, ok := a.(auth.SessionSyncer); ok {
				syncer.SyncSession()
			}
		}
		if canInit {
			_ = s.initSessions(ctx, cached)
		}
		s.pubsub.Publish()
		return nil
	}

	e := &entry{
		chain:        c,
		auths:        make(map[string]auth.Auth, len(s.opts.Auths)),
		smartWallets: make(map[string]cachedSmartWallet),
	}
	for _, nf := range s.opts.Auths {
		var prevAuth auth.Auth
		if prev != nil {
			prevAuth = prev.auths[nf.Name]
		}
		a, err := s.makeAuth(nf, c, prevAuth)
		if err != nil {
			return sberrors.Make("chain.switch", "Error switching chain", err)
		}
		e.auths[nf.Name] = a
	}

	s.mu.Lock()
	s.entries[c.ChainID] = e
	s.current = e
	s.mu.Unlock()
	s.logger.ComponentInfo(logging.ComponentSnowball, "switched chain",
		zap.Stringer("chain", c), zap.Int("auths", len(e.auths)))

	if canInit {
		_ = s.initSessions(ctx, e)
	}
	s.pubsub.Publish()
	return nil
}

func (s *Snowball) makeAuth(nf NamedFactory, c *chain.Chain, prev auth.Auth) (a auth.Auth, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("factory %s panicked: %v", nf.Name, p)
		}
	}()
	a, err = nf.Make(auth.MakeOptions{
		Chain:         c,
		RPC:           s.rpc,
		Storage:       s.opts.Storage,
		Logger:        s.opts.Logger,
		Metrics:       s.metrics,
		OnStateChange: s.pubsub.Publish,
	}, prev)
	if err == nil && a == nil {
		err = fmt.Errorf("factory %s returned no auth", nf.Name)
	}
	return a, err
}

func (s *Snowball) setCurrent(e *entry) {
	s.mu.Lock()
	s.current = e
	s.mu.Unlock()
}

// Subscribe registers cb for every state change of every provider on every
// chain, and for chain switches.
func (s *Snowball) Subscribe(cb func()) (unsubscribe func()) {
	return s.pubsub.Subscribe(cb)
}

// SmartWallet returns the cached smart wallet for the named provider when
// it still wraps the provider's current wallet handle.
func (s *Snowball) SmartWallet(name string) smartwallet.SmartWallet {
	e, err := s.currentEntry()
	if err != nil {
		return nil
	}
	a, ok := e.auths[name]
	if !ok {
		return nil
	}
	return e.cached(name, a.Wallet())
}

func (e *entry) cached(name string, owner wallet.Signer) smartwallet.SmartWallet {
	if owner == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.smartWallets[name]; ok && c.owner == owner {
		return c.wallet
	}
	return nil
}

// GetSmartWallet builds the named provider's wallet when needed and wraps it
// in a smart wallet. The smart wallet is cached per chain and provider until
// the provider's wallet handle changes.
func (s *Snowball) GetSmartWallet(ctx context.Context, name string) (smartwallet.SmartWallet, error) {
	e, err := s.currentEntry()
	if err != nil {
		return nil, err
	}
	a, ok := e.auths[name]
	if !ok {
		return nil, sberrors.Make("missing.auth", fmt.Sprintf("No auth named %q", name), sberrors.ErrUnknownAuth).WithCode(sberrors.CodePrecondition)
	}

	owner, err := a.GetWallet(ctx)
	if err != nil {
		return nil, err
	}
	if sw := e.cached(name, owner); sw != nil {
		return sw, nil
	}
	if s.opts.MakeSmartWallet == nil {
		return nil, sberrors.Make("missing.smartWallet", "No SmartWallet provided", sberrors.ErrMissingSmartWallet).WithCode(sberrors.CodePrecondition)
	}

	key := fmt.Sprintf("%d:%s:%s", e.chain.ChainID, name, owner.Address().Hex())
	v, err, _ := s.build.Do(key, func() (interface{}, error) {
		if sw := e.cached(name, owner); sw != nil {
			return sw, nil
		}
		sw, err := s.opts.MakeSmartWallet(ctx, e.chain, owner)
		if err != nil {
			return nil, sberrors.Make("smartWallet.make", "Error creating smart wallet", err)
		}
		e.mu.Lock()
		e.smartWallets[name] = cachedSmartWallet{wallet: sw, owner: owner}
		e.mu.Unlock()
		s.metrics.ObserveSmartWallet(name)
		s.logger.ComponentInfo(logging.ComponentSnowball, "smart wallet ready",
			zap.String("auth", name), zap.Stringer("chain", e.chain))
		return sw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(smartwallet.SmartWallet), nil
}

// GetSmartWalletAddress returns the address of the named provider's smart wallet.
func (s *Snowball) GetSmartWalletAddress(ctx context.Context, name string) (common.Address, error) {
	sw, err := s.GetSmartWallet(ctx, name)
	if err != nil {
		return common.Address{}, err
	}
	return sw.Address(ctx)
}

// Close drops all subscriptions and closes the storage backend.
func (s *Snowball) Close() error {
	s.pubsub.Close()
	return storage.Close(s.opts.Storage)
}
