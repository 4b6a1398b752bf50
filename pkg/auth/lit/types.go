package lit

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AuthMethodType identifies the kind of credential an auth method carries.
type AuthMethodType int

const (
	AuthMethodEthWallet AuthMethodType = 1
	AuthMethodWebAuthn  AuthMethodType = 3
	AuthMethodDiscord   AuthMethodType = 4
	AuthMethodGoogle    AuthMethodType = 5
	AuthMethodGoogleJWT AuthMethodType = 6
)

// AuthMethod is a credential the threshold network accepts.
type AuthMethod struct {
	Type        AuthMethodType `json:"authMethodType"`
	AccessToken string         `json:"accessToken"`
	// ID is the stable identifier the relay indexes PKPs by.
	ID string `json:"-"`
}

// AuthMethodID derives the relay identifier for a credential subject, e.g.
// "<credentialId>:lit" for WebAuthn or "<sub>:<aud>" for Google.
func AuthMethodID(subject string) string {
	return crypto.Keccak256Hash([]byte(subject)).Hex()
}

// PKP is a key-share reference minted for an auth method.
type PKP struct {
	TokenID    string         `json:"tokenId"`
	PublicKey  string         `json:"publicKey"`
	EthAddress common.Address `json:"ethAddress"`
}

// Relay request statuses.
const (
	StatusInProgress = "InProgress"
	StatusSucceeded  = "Succeeded"
	StatusFailed     = "Failed"
)

// MintStatus is the relay's view of an asynchronous mint request.
type MintStatus struct {
	Status        string `json:"status"`
	PKPTokenID    string `json:"pkpTokenId,omitempty"`
	PKPPublicKey  string `json:"pkpPublicKey,omitempty"`
	PKPEthAddress string `json:"pkpEthAddress,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Terminal reports whether the request has finished either way.
func (s MintStatus) Terminal() bool {
	return s.Status == StatusSucceeded || s.Status == StatusFailed
}

// PKP returns the minted key-share.
func (s MintStatus) PKP() PKP {
	return PKP{TokenID: s.PKPTokenID, PublicKey: s.PKPPublicKey, EthAddress: common.HexToAddress(s.PKPEthAddress)}
}

// SessionSigs maps a node url to its signed session authorization.
type SessionSigs map[string]json.RawMessage

// sessionRecordVersion is bumped whenever the cached record layout changes.
const sessionRecordVersion = 1

type sessionRecord struct {
	Version     int         `json:"version"`
	ExpiresAt   int64       `json:"expiresAt"`
	SessionSigs SessionSigs `json:"sessionSigs"`
}

func (r sessionRecord) String() string {
	return fmt.Sprintf("v%d expiresAt=%d sigs=%d", r.Version, r.ExpiresAt, len(r.SessionSigs))
}
