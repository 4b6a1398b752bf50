package embedded

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DeBrosOfficial/snowball/pkg/chain"
	"github.com/DeBrosOfficial/snowball/pkg/rpc"
	"github.com/DeBrosOfficial/snowball/pkg/wallet"
)

// AttestParams drives a passkey registration ceremony.
type AttestParams struct {
	Name          string
	DisplayName   string
	OrgID         string
	RPID          string
	APIBaseURL    string
	ServerSignURL string
}

// AttestPayload is the outcome of a registration ceremony.
type AttestPayload struct {
	EncodedChallenge string
	Attestation      rpc.Attestation
}

// LoginParams drives a passkey assertion.
type LoginParams struct {
	Challenge string
}

// CeremonyProvider runs passkey ceremonies on the host platform.
type CeremonyProvider interface {
	AttestPasskey(ctx context.Context, params AttestParams) (AttestPayload, error)
	AssertLogin(ctx context.Context, params LoginParams) (rpc.Assertion, error)
}

// WalletClientParams is everything needed to build a wallet client. Two
// equal parameter sets always produce interchangeable clients.
type WalletClientParams struct {
	RPID           string
	Chain          *chain.Chain
	BaseURL        string
	Transport      string // rpc url
	CredentialIDs  []string
	WalletAddress  common.Address
	OrganizationID string
}

func (p WalletClientParams) key() string {
	var chainID int64
	if p.Chain != nil {
		chainID = p.Chain.ChainID
	}
	return strings.Join([]string{
		p.RPID,
		p.BaseURL,
		p.Transport,
		strings.Join(p.CredentialIDs, ","),
		p.WalletAddress.Hex(),
		p.OrganizationID,
		strconv.FormatInt(chainID, 10),
	}, "|")
}

// WalletClientMaker builds the signing client for a wallet. Construction
// involves a key-management handshake, so results are memoized.
type WalletClientMaker interface {
	MakeWalletClient(params WalletClientParams) (wallet.Signer, error)
}

// WalletClientMakerFunc adapts a function to WalletClientMaker.
type WalletClientMakerFunc func(params WalletClientParams) (wallet.Signer, error)

func (f WalletClientMakerFunc) MakeWalletClient(params WalletClientParams) (wallet.Signer, error) {
	return f(params)
}

// transportURL resolves the rpc url a wallet client should use.
func transportURL(c *chain.Chain, p rpc.WalletProvider) string {
	switch p.Type {
	case rpc.ProviderKeyA:
		if c == nil {
			return ""
		}
		if urls := c.AlchemyRPCURLs(p.Value); len(urls) > 0 {
			return urls[0]
		}
	case rpc.ProviderURL:
		return p.Value
	}
	return ""
}

// renderTimestamp formats t as e.g. "Oct 19 2026 9:05am".
func renderTimestamp(t time.Time) string {
	return t.Format("Jan 2 2006 3:04pm")
}
