package lit

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/snowball/pkg/auth"
	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
)

// OAuthOptions holds host hooks for the redirect flow.
type OAuthOptions struct {
	// ReplaceURL is called with the callback url stripped of its sign-in
	// parameters so the host can rewrite its history entry.
	ReplaceURL func(cleanURL string)
}

// OAuthAuth signs in through a redirect-based OAuth provider.
type OAuthAuth struct {
	*Auth
	provider OAuthProvider
	opts     OAuthOptions
}

// OAuthClassName returns the class name for provider, e.g. "LitGoogleAuth".
func OAuthClassName(provider OAuthProvider) string {
	name := provider.Name()
	if name == "" {
		return "LitOAuth"
	}
	return "Lit" + strings.ToUpper(name[:1]) + name[1:] + "Auth"
}

// NewOAuth creates an OAuth provider in the init state.
func NewOAuth(opts auth.MakeOptions, cfg Config, provider OAuthProvider, oauthOpts OAuthOptions) (*OAuthAuth, error) {
	if provider == nil {
		return nil, sberrors.New("missing.oauthProvider", "[LitOAuth] Missing OAuth provider")
	}
	a, err := newAuth(OAuthClassName(provider), opts, cfg)
	if err != nil {
		return nil, err
	}
	return &OAuthAuth{Auth: a, provider: provider, opts: oauthOpts}, nil
}

// ConfigureOAuth returns the orchestrator factory for an OAuth provider.
func ConfigureOAuth(cfg Config, provider OAuthProvider, oauthOpts OAuthOptions) auth.Factory {
	return func(opts auth.MakeOptions, _ auth.Auth) (auth.Auth, error) {
		a, err := NewOAuth(opts, cfg, provider, oauthOpts)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// Provider returns the underlying OAuth provider.
func (o *OAuthAuth) Provider() OAuthProvider {
	return o.provider
}

// StartOAuthRedirect returns the url the host must navigate to. The
// provider redirects back to redirectURI.
func (o *OAuthAuth) StartOAuthRedirect(_ context.Context, redirectURI string) (string, error) {
	target, err := o.provider.SignInURL(redirectURI)
	if err != nil {
		return "", o.state.SetError(sberrors.Make(o.ClassName()+".startOAuthRedirect", "Error starting sign-in", err))
	}
	return target, nil
}

// CanHandleOAuthRedirectBack reports whether uri is a sign-in callback for
// this provider.
func (o *OAuthAuth) CanHandleOAuthRedirectBack(uri string) bool {
	return o.provider.IsSignInRedirect(uri)
}

// HandleOAuthRedirectBack completes the sign-in from a callback url, looks up
// the credential's PKPs and mints a new one. It returns false without doing
// anything when uri is not a callback for this provider.
func (o *OAuthAuth) HandleOAuthRedirectBack(ctx context.Context, uri string) (bool, error) {
	if !o.CanHandleOAuthRedirectBack(uri) {
		return false, nil
	}

	o.op.Lock()
	defer o.op.Unlock()

	if _, ok := o.state.State().(Init); !ok {
		return false, o.invalidState("handleOAuthRedirectBack")
	}
	makeError := sberrors.Builder(o.ClassName()+".handleRedirect", "Error handling redirect")

	o.state.SetLoading(LoadingRedirectAuth, "Signing in with "+o.provider.Name())
	method, err := call(func() (AuthMethod, error) { return o.provider.Authenticate(ctx, uri) })
	if err != nil {
		return false, o.state.SetError(makeError(1, err))
	}
	if method.AccessToken == "" {
		return false, o.state.SetError(makeError(0, "No auth method returned"))
	}

	o.state.SetLoading(LoadingFetchPKPs, "Fetching associated PKPs")
	pkps, err := o.cfg.Relay.FetchPKPs(ctx, method)
	if err != nil {
		return false, o.state.SetError(makeError(2, err))
	}
	o.state.Set(Authenticated{AuthMethod: method, PKPs: pkps})

	if o.opts.ReplaceURL != nil {
		o.opts.ReplaceURL(StripRedirectParams(uri))
	}

	o.state.SetLoading(LoadingMintPKP, "Minting PKP")
	pkp, err := o.mintPKP(ctx, method)
	if err != nil {
		return false, o.state.SetError(makeError(3, err))
	}
	o.Logger().ComponentDebug(o.Component(), "minted pkp", zap.String("eth_address", pkp.EthAddress.Hex()))

	all := append(append(make([]PKP, 0, len(pkps)+1), pkps...), pkp)
	o.state.Set(Authenticated{AuthMethod: method, PKPs: all})
	return true, nil
}

// StripRedirectParams drops the query and fragment from uri.
func StripRedirectParams(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
