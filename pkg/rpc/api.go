package rpc

import "github.com/ethereum/go-ethereum/common"

// AuthMethod is a credential linked to a user, e.g. an email address.
type AuthMethod struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// WalletAccount is one derived account of a wallet.
type WalletAccount struct {
	Path       string         `json:"path"`
	Address    common.Address `json:"address"`
	PathFormat string         `json:"pathFormat"`
}

// Wallet groups accounts derived from one seed.
type Wallet struct {
	ID       string          `json:"id"`
	Accounts []WalletAccount `json:"accounts"`
}

// Passkey is a registered passkey credential.
type Passkey struct {
	PublicKey    string `json:"publicKey"`
	CredentialID string `json:"credentialId"`
}

// User is the backend identity record (pu_whoami).
type User struct {
	UID         string       `json:"uid"`
	AuthMethods []AuthMethod `json:"authMethods"`
	Wallets     []Wallet     `json:"wallets"`
	Passkeys    []Passkey    `json:"passkeys"`
}

// Email returns the first linked email address.
func (u *User) Email() (string, bool) {
	if u == nil {
		return "", false
	}
	for _, m := range u.AuthMethods {
		if m.Type == "email" && m.Value != "" {
			return m.Value, true
		}
	}
	return "", false
}

// Addresses flattens every wallet account address.
func (u *User) Addresses() []common.Address {
	if u == nil {
		return nil
	}
	var out []common.Address
	for _, w := range u.Wallets {
		for _, a := range w.Accounts {
			out = append(out, a.Address)
		}
	}
	return out
}

// CredentialIDs returns the ids of every registered passkey.
func (u *User) CredentialIDs() []string {
	if u == nil {
		return nil
	}
	ids := make([]string, 0, len(u.Passkeys))
	for _, p := range u.Passkeys {
		ids = append(ids, p.CredentialID)
	}
	return ids
}

// Attestation is the result of a passkey registration ceremony.
type Attestation struct {
	Transports        []string `json:"transports"`
	CredentialID      string   `json:"credentialId"`
	ClientDataJSON    string   `json:"clientDataJson"`
	AttestationObject string   `json:"attestationObject"`
}

// Assertion is the result of a passkey login ceremony.
type Assertion struct {
	CredentialID      string `json:"credentialId"`
	ClientDataJSON    string `json:"clientDataJson"`
	Signature         string `json:"signature"`
	AuthenticatorData string `json:"authenticatorData"`
}

// TurnkeyConfig describes the custody provider used for passkeys.
type TurnkeyConfig struct {
	RPID       string `json:"rpId"`
	OrgID      string `json:"orgId"`
	RPName     string `json:"rpName"`
	APIBaseURL string `json:"apiBaseUrl"`
}

// AuthConfig is returned by getAuthConfig.
type AuthConfig struct {
	Turnkey        TurnkeyConfig `json:"turnkey"`
	LoginChallenge string        `json:"loginChallenge"`
}

// Wallet provider types.
const (
	ProviderKeyA = "key-a"
	ProviderURL  = "url"
)

// WalletProvider selects the chain transport used by wallet clients.
type WalletProvider struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// WalletConfig is returned by pu_getWalletConfig.
type WalletConfig struct {
	OrganizationID string         `json:"organizationId"`
	Provider       WalletProvider `json:"provider"`
}

// Request and response shapes.

type EmailAuth struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type SendOtpParams struct {
	Auth EmailAuth `json:"auth"`
}

type SendOtpValue struct {
	UUID string `json:"uuid"`
}

type VerifyOtpParams struct {
	Code string `json:"code"`
	UUID string `json:"uuid"`
}

// LoginValue is returned by verifyOtp and loginPasskey.
type LoginValue struct {
	User       User     `json:"user"`
	NewSession *Session `json:"newSession,omitempty"`
}

type LoginPasskeyParams struct {
	Assertion Assertion `json:"assertion"`
}

type ConnectPasskeyParams struct {
	Challenge   string      `json:"challenge"`
	Attestation Attestation `json:"attestation"`
}

type ConnectPasskeyValue struct {
	User User `json:"user"`
}

type empty struct{}
