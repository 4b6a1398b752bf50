package lit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// GoogleEndpoint is Google's OAuth 2.0 endpoint.
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// GoogleConfig configures GoogleProvider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is used when SignInURL is called without one.
	RedirectURL string
	// Endpoint defaults to GoogleEndpoint.
	Endpoint oauth2.Endpoint
	Scopes   []string
	// HTTPClient is used for the code exchange.
	HTTPClient *http.Client
}

// GoogleProvider signs in with Google and turns the ID token into an auth method.
type GoogleProvider struct {
	cfg GoogleConfig

	mu     sync.Mutex
	states map[string]struct{}
}

var _ OAuthProvider = (*GoogleProvider)(nil)

const googleProviderName = "google"

// NewGoogleProvider creates a provider for cfg.
func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	if cfg.Endpoint == (oauth2.Endpoint{}) {
		cfg.Endpoint = GoogleEndpoint
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	return &GoogleProvider{cfg: cfg, states: make(map[string]struct{})}
}

func (g *GoogleProvider) Name() string {
	return googleProviderName
}

// callbackURL tags redirectURI with the provider so the callback can be recognized.
func (g *GoogleProvider) callbackURL(redirectURI string) (string, error) {
	if redirectURI == "" {
		redirectURI = g.cfg.RedirectURL
	}
	if redirectURI == "" {
		return "", errors.New("no redirect url")
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect url: %w", err)
	}
	u.Fragment = ""
	u.RawQuery = url.Values{"provider": {googleProviderName}}.Encode()
	return u.String(), nil
}

func (g *GoogleProvider) oauthConfig(callback string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.cfg.ClientID,
		ClientSecret: g.cfg.ClientSecret,
		Endpoint:     g.cfg.Endpoint,
		RedirectURL:  callback,
		Scopes:       g.cfg.Scopes,
	}
}

// SignInURL returns the consent page url. Google redirects back to
// redirectURI with provider=google added.
func (g *GoogleProvider) SignInURL(redirectURI string) (string, error) {
	callback, err := g.callbackURL(redirectURI)
	if err != nil {
		return "", err
	}
	state := uuid.NewString()
	g.mu.Lock()
	g.states[state] = struct{}{}
	g.mu.Unlock()
	return g.oauthConfig(callback).AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// IsSignInRedirect reports whether uri is a Google callback carrying a
// code, an ID token or an error.
func (g *GoogleProvider) IsSignInRedirect(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	q := u.Query()
	if q.Get("provider") != googleProviderName {
		return false
	}
	return q.Get("code") != "" || q.Get("id_token") != "" || q.Get("error") != ""
}

// Authenticate completes the sign-in from the callback uri.
func (g *GoogleProvider) Authenticate(ctx context.Context, uri string) (AuthMethod, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return AuthMethod{}, fmt.Errorf("invalid callback url: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return AuthMethod{}, fmt.Errorf("google sign-in failed: %s", e)
	}
	if !g.consumeState(q.Get("state")) {
		return AuthMethod{}, errors.New("invalid oauth state")
	}

	idToken := q.Get("id_token")
	if idToken == "" {
		callback, err := g.callbackURL(StripRedirectParams(uri))
		if err != nil {
			return AuthMethod{}, err
		}
		if g.cfg.HTTPClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, g.cfg.HTTPClient)
		}
		tok, err := g.oauthConfig(callback).Exchange(ctx, q.Get("code"))
		if err != nil {
			return AuthMethod{}, fmt.Errorf("code exchange failed: %w", err)
		}
		idToken, _ = tok.Extra("id_token").(string)
		if idToken == "" {
			return AuthMethod{}, errors.New("token response has no id_token")
		}
	}

	return g.authMethod(idToken)
}

// authMethod reads the subject and audience of idToken. The signature is
// checked by the threshold network, not here.
func (g *GoogleProvider) authMethod(idToken string) (AuthMethod, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return AuthMethod{}, fmt.Errorf("invalid id_token: %w", err)
	}
	if claims.Subject == "" {
		return AuthMethod{}, errors.New("id_token has no subject")
	}
	if g.cfg.ClientID != "" && !slices.Contains([]string(claims.Audience), g.cfg.ClientID) {
		return AuthMethod{}, fmt.Errorf("id_token audience %v does not include client", []string(claims.Audience))
	}
	aud := g.cfg.ClientID
	if aud == "" && len(claims.Audience) > 0 {
		aud = claims.Audience[0]
	}
	return AuthMethod{
		Type:        AuthMethodGoogleJWT,
		AccessToken: idToken,
		ID:          AuthMethodID(claims.Subject + ":" + aud),
	}, nil
}

func (g *GoogleProvider) consumeState(state string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.states[state]; !ok {
		return false
	}
	delete(g.states, state)
	return true
}
