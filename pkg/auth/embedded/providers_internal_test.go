package embedded

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/DeBrosOfficial/snowball/pkg/chain"
	"github.com/DeBrosOfficial/snowball/pkg/rpc"
)

func TestRenderTimestamp(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2024, time.March, 5, 9, 7, 0, 0, time.UTC), "Mar 5 2024 9:07am"},
		{time.Date(2024, time.December, 31, 23, 59, 0, 0, time.UTC), "Dec 31 2024 11:59pm"},
		{time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), "Jan 1 2025 12:00am"},
		{time.Date(2025, time.July, 4, 12, 30, 0, 0, time.UTC), "Jul 4 2025 12:30pm"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, renderTimestamp(tt.in))
	}
}

func TestTransportURL(t *testing.T) {
	tests := []struct {
		name     string
		chain    *chain.Chain
		provider rpc.WalletProvider
		want     string
	}{
		{"alchemy key", chain.BaseSepolia, rpc.WalletProvider{Type: rpc.ProviderKeyA, Value: "k"}, "https://base-sepolia.g.alchemy.com/v2/k"},
		{"plain url", chain.BaseSepolia, rpc.WalletProvider{Type: rpc.ProviderURL, Value: "https://node"}, "https://node"},
		{"unknown type", chain.BaseSepolia, rpc.WalletProvider{Type: "other", Value: "x"}, ""},
		{"nil chain", nil, rpc.WalletProvider{Type: rpc.ProviderKeyA, Value: "k"}, ""},
		{"chain without urls", &chain.Chain{ChainID: 7}, rpc.WalletProvider{Type: rpc.ProviderKeyA, Value: "k"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transportURL(tt.chain, tt.provider))
		})
	}
}

func TestWalletParamsKey(t *testing.T) {
	base := WalletClientParams{
		RPID:           "localhost",
		Chain:          chain.Sepolia,
		Transport:      "https://node",
		CredentialIDs:  []string{"a", "b"},
		WalletAddress:  common.HexToAddress("0x01"),
		OrganizationID: "org",
	}
	same := base
	same.CredentialIDs = []string{"a", "b"}
	assert.Equal(t, base.key(), same.key())

	other := base
	other.Chain = chain.BaseSepolia
	assert.NotEqual(t, base.key(), other.key())

	creds := base
	creds.CredentialIDs = []string{"a"}
	assert.NotEqual(t, base.key(), creds.key())
}
