// Package rpc is the session-aware transport to the Snowball backend. Public
// procedures authenticate with the API key, "pu_" procedures with the current
// session, and sessions returned by the backend are picked up automatically.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/logging"
	"github.com/DeBrosOfficial/snowball/pkg/metrics"
	"github.com/DeBrosOfficial/snowball/pkg/result"
	"github.com/DeBrosOfficial/snowball/pkg/storage"
)

// Transport failure codes.
const (
	CodeParseError     = "rpc-client-parse-error"
	CodeNoSession      = "rpc-client-no-session"
	CodeTransportError = "rpc-client-transport-error"
	CodeServerError    = "rpc-client-server-error"
)

// Options configures a Client.
type Options struct {
	APIKey     string
	APIURL     string
	Storage    storage.Storage // optional; nil disables persistence
	Logger     *zap.Logger
	HTTPClient *http.Client
	Clock      Clock
	Metrics    *metrics.Metrics
}

// Client performs calls against the backend and owns the current session.
type Client struct {
	apiKey  string
	apiURL  string
	storage storage.Storage
	logger  *logging.ColoredLogger
	http    *http.Client
	clock   Clock
	metrics *metrics.Metrics

	mu      sync.RWMutex
	session *Session
}

// New creates a client and restores any persisted session.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	c := &Client{
		apiKey:  opts.APIKey,
		apiURL:  strings.TrimSuffix(opts.APIURL, "/"),
		storage: opts.Storage,
		logger:  logging.Wrap(logger).Named("rpc"),
		http:    httpClient,
		clock:   opts.Clock,
		metrics: opts.Metrics,
	}
	c.restoreSession()
	return c
}

// APIURL returns the backend base url.
func (c *Client) APIURL() string {
	return c.apiURL
}

func (c *Client) restoreSession() {
	var s Session
	ok, err := storage.GetJSON(c.storage, SessionStorageKey, &s)
	if err != nil {
		// Corrupt record is a cache miss.
		c.logger.ComponentWarn(logging.ComponentRPC, "discarding unreadable session", zap.Error(err))
		_ = storage.Remove(c.storage, SessionStorageKey)
		return
	}
	if !ok || s.Token == "" {
		return
	}
	c.session = &s
}

// Session returns a copy of the current session, if any.
func (c *Client) Session() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// SetSession replaces the current session and persists it.
func (c *Client) SetSession(s Session) {
	c.mu.Lock()
	c.session = &s
	c.mu.Unlock()

	if err := storage.SetJSON(c.storage, SessionStorageKey, s); err != nil {
		c.logger.ComponentWarn(logging.ComponentRPC, "failed to persist session", zap.Error(err))
	}
}

// HasValidSession reports whether a session exists and expiresAt > now.
func (c *Client) HasValidSession() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Valid(c.clock.now())
}

// SessionExpirationTime returns the session expiry in epoch ms, or 0 when
// there is no session or it already expired.
func (c *Client) SessionExpirationTime() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.session.Valid(c.clock.now()) {
		return 0
	}
	return c.session.ExpiresAt
}

// Logout drops the session from memory and storage. Calling it without a
// session is a no-op.
func (c *Client) Logout() {
	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	c.mu.Unlock()

	if err := storage.Remove(c.storage, SessionStorageKey); err != nil {
		c.logger.ComponentWarn(logging.ComponentRPC, "failed to remove persisted session", zap.Error(err))
	}
	if had {
		c.logger.ComponentDebug(logging.ComponentRPC, "session cleared")
	}
}

func (c *Client) credential(proc Procedure) string {
	if !proc.RequiresSession {
		return c.apiKey
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.session.Valid(c.clock.now()) {
		return ""
	}
	return c.session.Token
}

// envelope is the wire shape of every response.
type envelope struct {
	OK         bool            `json:"ok"`
	Value      json.RawMessage `json:"value"`
	Reason     string          `json:"reason"`
	Code       string          `json:"code"`
	StatusCode int             `json:"statusCode"`
	Meta       map[string]any  `json:"meta"`
}

// Invoke calls proc with args and decodes the Ok value into out (which may be
// nil). It never returns a Go error: every failure is a *result.Failure.
func (c *Client) Invoke(ctx context.Context, proc Procedure, args interface{}, out interface{}) *result.Failure {
	start := time.Now()

	token := c.credential(proc)
	if token == "" {
		c.metrics.ObserveRPC(proc.Name, metrics.OutcomeNoSession, time.Since(start))
		opts := []result.ErrOption{
			result.WithStatus(http.StatusUnauthorized),
			result.WithMeta(map[string]any{
				"message": fmt.Sprintf("No %s provided for rpc call %s", proc.credentialKind(), proc.Name),
			}),
		}
		if proc.RequiresSession {
			opts = append(opts, result.WithCause(sberrors.ErrNoSession))
		}
		return result.NewFailure(sberrors.ReasonUnexpected, CodeNoSession, opts...)
	}

	if args == nil {
		args = empty{}
	}
	body, err := json.Marshal(map[string]interface{}{"args": args})
	if err != nil {
		return c.transportFailure(proc, start, fmt.Errorf("failed to marshal args: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/rpc/"+proc.Name, bytes.NewReader(body))
	if err != nil {
		return c.transportFailure(proc, start, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportFailure(proc, start, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportFailure(proc, start, fmt.Errorf("failed to read body: %w", err))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return c.parseFailure(proc, start, raw, err)
	}

	if resp.StatusCode == http.StatusInternalServerError {
		c.logger.ComponentError(logging.ComponentRPC, "server error", zap.String("procedure", proc.Name), zap.ByteString("body", raw))
	}

	if !env.OK && env.Reason == "" {
		return c.serverFailure(proc, start, resp.StatusCode, raw)
	}

	if !env.OK {
		c.metrics.ObserveRPC(proc.Name, metrics.OutcomeErr, time.Since(start))
		status := env.StatusCode
		if status == 0 {
			status = resp.StatusCode
		}
		return result.NewFailure(env.Reason, env.Code, result.WithStatus(status), result.WithMeta(env.Meta))
	}

	c.captureSession(env.Value)

	if out != nil && len(env.Value) > 0 {
		if err := json.Unmarshal(env.Value, out); err != nil {
			return c.parseFailure(proc, start, raw, err)
		}
	}
	c.metrics.ObserveRPC(proc.Name, metrics.OutcomeOK, time.Since(start))
	return nil
}

// captureSession adopts value.newSession when the backend returns one.
func (c *Client) captureSession(value json.RawMessage) {
	if len(value) == 0 || value[0] != '{' {
		return
	}
	var peek struct {
		NewSession *Session `json:"newSession"`
	}
	if err := json.Unmarshal(value, &peek); err != nil || peek.NewSession == nil || peek.NewSession.Token == "" {
		return
	}
	c.SetSession(*peek.NewSession)
	c.logger.ComponentDebug(logging.ComponentRPC, "adopted new session", zap.Int64("expires_at", peek.NewSession.ExpiresAt))
}

func (c *Client) parseFailure(proc Procedure, start time.Time, raw []byte, err error) *result.Failure {
	cause := fmt.Errorf("[snowball-rpc] Failed to parse body: %q: %w", string(raw), err)
	c.logger.ComponentError(logging.ComponentRPC, "rpc parse failure", zap.String("procedure", proc.Name), zap.String("cause", sberrors.Chain(cause)))
	c.metrics.ObserveRPC(proc.Name, metrics.OutcomeTransport, time.Since(start))
	return result.NewFailure(sberrors.ReasonUnexpected, CodeParseError,
		result.WithStatus(http.StatusInternalServerError),
		result.WithCause(cause),
	)
}

// serverFailure handles a body that parsed as JSON but is not a usable
// envelope, such as a proxy error page or a bare null.
func (c *Client) serverFailure(proc Procedure, start time.Time, status int, raw []byte) *result.Failure {
	cause := fmt.Errorf("[snowball-rpc] Server error: %s", raw)
	c.logger.ComponentError(logging.ComponentRPC, "rpc server failure", zap.String("procedure", proc.Name),
		zap.Int("status", status), zap.String("cause", sberrors.Chain(cause)))
	c.metrics.ObserveRPC(proc.Name, metrics.OutcomeTransport, time.Since(start))
	if status < http.StatusInternalServerError {
		status = http.StatusInternalServerError
	}
	return result.NewFailure(sberrors.ReasonUnexpected, CodeServerError,
		result.WithStatus(status),
		result.WithCause(cause),
	)
}

func (c *Client) transportFailure(proc Procedure, start time.Time, err error) *result.Failure {
	c.logger.ComponentError(logging.ComponentRPC, "rpc transport failure", zap.String("procedure", proc.Name), zap.String("cause", sberrors.Chain(err)))
	c.metrics.ObserveRPC(proc.Name, metrics.OutcomeTransport, time.Since(start))
	return result.NewFailure(sberrors.ReasonUnexpected, CodeTransportError,
		result.WithStatus(http.StatusInternalServerError),
		result.WithCause(err),
	)
}

func call[T any](ctx context.Context, c *Client, proc Procedure, args interface{}) result.Result[T] {
	var out T
	if f := c.Invoke(ctx, proc, args, &out); f != nil {
		return result.Fail[T](f)
	}
	return result.Ok(out)
}

// SendOtp emails a one-time code.
func (c *Client) SendOtp(ctx context.Context, email string) result.Result[SendOtpValue] {
	return call[SendOtpValue](ctx, c, ProcSendOtp, SendOtpParams{Auth: EmailAuth{Type: "email", Value: email}})
}

// VerifyOtp exchanges a code for a session.
func (c *Client) VerifyOtp(ctx context.Context, code, uuid string) result.Result[LoginValue] {
	return call[LoginValue](ctx, c, ProcVerifyOtp, VerifyOtpParams{Code: code, UUID: uuid})
}

// LoginPasskey exchanges a passkey assertion for a session.
func (c *Client) LoginPasskey(ctx context.Context, assertion Assertion) result.Result[LoginValue] {
	return call[LoginValue](ctx, c, ProcLoginPasskey, LoginPasskeyParams{Assertion: assertion})
}

// Whoami returns the user behind the current session.
func (c *Client) Whoami(ctx context.Context) result.Result[User] {
	return call[User](ctx, c, ProcWhoami, nil)
}

// GetAuthConfig returns the passkey relying party and a fresh login challenge.
func (c *Client) GetAuthConfig(ctx context.Context) result.Result[AuthConfig] {
	return call[AuthConfig](ctx, c, ProcGetAuthConfig, nil)
}

// ConnectPasskey registers an attested passkey with the current user.
func (c *Client) ConnectPasskey(ctx context.Context, challenge string, attestation Attestation) result.Result[ConnectPasskeyValue] {
	return call[ConnectPasskeyValue](ctx, c, ProcConnectPasskey, ConnectPasskeyParams{Challenge: challenge, Attestation: attestation})
}

// GetWalletConfig returns wallet construction parameters for the current user.
func (c *Client) GetWalletConfig(ctx context.Context) result.Result[WalletConfig] {
	return call[WalletConfig](ctx, c, ProcGetWalletConfig, nil)
}
