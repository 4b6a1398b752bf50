package lit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultRelayURL is the public relay for the default network.
const DefaultRelayURL = "https://relayer-server-staging-cayenne.getlit.dev"

// Relay submits threshold-network transactions on the client's behalf.
type Relay interface {
	FetchPKPs(ctx context.Context, method AuthMethod) ([]PKP, error)
	// MintPKP starts minting a PKP controlled by method and returns the
	// request id to poll.
	MintPKP(ctx context.Context, method AuthMethod) (string, error)
	Status(ctx context.Context, requestID string) (MintStatus, error)
}

// HTTPRelay talks to a relay server over HTTP.
type HTTPRelay struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPRelay creates a relay client with a bounded request timeout.
func NewHTTPRelay(baseURL, apiKey string) *HTTPRelay {
	return &HTTPRelay{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type authMethodBody struct {
	AuthMethodType AuthMethodType `json:"authMethodType"`
	AuthMethodID   string         `json:"authMethodId"`
	AccessToken    string         `json:"accessToken,omitempty"`
}

type mintBody struct {
	KeyType                   string           `json:"keyType"`
	PermittedAuthMethodTypes  []AuthMethodType `json:"permittedAuthMethodTypes"`
	PermittedAuthMethodIDs    []string         `json:"permittedAuthMethodIds"`
	PermittedAuthMethodScopes [][]int          `json:"permittedAuthMethodScopes"`
	AddPKPEthAddressAsPermit  bool             `json:"addPkpEthAddressAsPermittedAddress"`
	SendPKPToItself           bool             `json:"sendPkpToItself"`
	AccessToken               string           `json:"accessToken,omitempty"`
}

// scopeSignAnything lets the auth method sign arbitrary payloads.
const scopeSignAnything = 1

func (r *HTTPRelay) FetchPKPs(ctx context.Context, method AuthMethod) ([]PKP, error) {
	var out struct {
		PKPs []PKP `json:"pkps"`
	}
	body := authMethodBody{AuthMethodType: method.Type, AuthMethodID: method.ID, AccessToken: method.AccessToken}
	if err := r.do(ctx, http.MethodPost, "/fetch-pkps-by-auth-method", body, &out); err != nil {
		return nil, err
	}
	return out.PKPs, nil
}

func (r *HTTPRelay) MintPKP(ctx context.Context, method AuthMethod) (string, error) {
	var out struct {
		RequestID string `json:"requestId"`
	}
	body := mintBody{
		KeyType:                   "2",
		PermittedAuthMethodTypes:  []AuthMethodType{method.Type},
		PermittedAuthMethodIDs:    []string{method.ID},
		PermittedAuthMethodScopes: [][]int{{scopeSignAnything}},
		AddPKPEthAddressAsPermit:  true,
		SendPKPToItself:           true,
		AccessToken:               method.AccessToken,
	}
	if err := r.do(ctx, http.MethodPost, "/mint-next-and-add-auth-methods", body, &out); err != nil {
		return "", err
	}
	if out.RequestID == "" {
		return "", fmt.Errorf("relay returned no request id")
	}
	return out.RequestID, nil
}

func (r *HTTPRelay) Status(ctx context.Context, requestID string) (MintStatus, error) {
	var out MintStatus
	err := r.do(ctx, http.MethodGet, "/auth/status/"+requestID, nil, &out)
	return out, err
}

func (r *HTTPRelay) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("api-key", r.APIKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RelayError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode relay response: %w", err)
	}
	return nil
}

// RelayError is a non-200 relay response.
type RelayError struct {
	StatusCode int
	Body       string
}

func (e *RelayError) Error() string {
	return "relay responded " + strconv.Itoa(e.StatusCode) + ": " + e.Body
}

// PollOptions tunes PollUntilTerminal.
type PollOptions struct {
	Interval time.Duration
	MaxTries uint
}

// DefaultPollOptions poll every 15s for up to 20 tries, like the public relay SDK.
var DefaultPollOptions = PollOptions{Interval: 15 * time.Second, MaxTries: 20}

var errNotTerminal = fmt.Errorf("request still in progress")

// PollUntilTerminal polls the status of requestID until it either succeeds or
// fails. Transport errors are retried like pending statuses.
func PollUntilTerminal(ctx context.Context, relay Relay, requestID string, opts PollOptions) (MintStatus, error) {
	if opts.MaxTries == 0 {
		opts.MaxTries = DefaultPollOptions.MaxTries
	}
	var b backoff.BackOff = backoff.NewConstantBackOff(opts.Interval)
	if opts.Interval <= 0 {
		b = &backoff.ZeroBackOff{}
	}

	return backoff.Retry(ctx, func() (MintStatus, error) {
		status, err := relay.Status(ctx, requestID)
		if err != nil {
			return MintStatus{}, err
		}
		if !status.Terminal() {
			return MintStatus{}, errNotTerminal
		}
		return status, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(opts.MaxTries),
		backoff.WithMaxElapsedTime(0),
	)
}
