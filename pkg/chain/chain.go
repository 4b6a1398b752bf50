// Package chain describes the blockchain networks the SDK can operate on.
package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// VM families. Auth state may only be carried across chains of the same family.
const (
	VMTypeEVM = "EVM"
	VMTypeSVM = "SVM"
)

// Default ERC-4337 contracts shared by most supported networks.
var (
	DefaultEntryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	DefaultFactory    = common.HexToAddress("0x74fcF00553D3699d845B616D5A9BF5256C984299")
	legacyFactory     = common.HexToAddress("0x3c752E964f94A6e45c9547e86C70D3d9b86D3b17")
)

// Chain is an immutable description of one network.
type Chain struct {
	ChainID           int64
	Key               string // table key, e.g. "base-sepolia"
	Name              string
	Symbol            string
	Decimals          int
	VMType            string
	RPCURLs           []string
	BlockExplorerURLs []string
	TestNetwork       bool
	FactoryAddress    common.Address
	EntryPointAddress common.Address
}

// AlchemyRPCURLs appends apiKey to every rpc url, normalizing trailing slashes.
func (c *Chain) AlchemyRPCURLs(apiKey string) []string {
	urls := make([]string, 0, len(c.RPCURLs))
	for _, u := range c.RPCURLs {
		urls = append(urls, strings.TrimSuffix(u, "/")+"/"+apiKey)
	}
	return urls
}

// SameVM reports whether c and other belong to the same VM family.
func (c *Chain) SameVM(other *Chain) bool {
	if c == nil || other == nil {
		return false
	}
	return c.VMType == other.VMType
}

func (c *Chain) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.ChainID)
}

var (
	Ethereum = &Chain{
		ChainID:           1,
		Key:               "ethereum",
		Name:              "Ethereum",
		Symbol:            "ETH",
		Decimals:          18,
		VMType:            VMTypeEVM,
		RPCURLs:           []string{"https://eth-mainnet.g.alchemy.com/v2/"},
		BlockExplorerURLs: []string{"https://etherscan.io"},
		FactoryAddress:    legacyFactory,
		EntryPointAddress: DefaultEntryPoint,
	}
	Sepolia = &Chain{
		ChainID:           11155111,
		Key:               "sepolia",
		Name:              "Sepolia",
		Symbol:            "ETH",
		Decimals:          18,
		VMType:            VMTypeEVM,
		RPCURLs:           []string{"https://eth-sepolia.g.alchemy.com/v2/"},
		BlockExplorerURLs: []string{"https://sepolia.etherscan.io"},
		TestNetwork:       true,
		FactoryAddress:    legacyFactory,
		EntryPointAddress: DefaultEntryPoint,
	}
	Base = &Chain{
		ChainID:           8453,
		Key:               "base",
		Name:              "Base",
		Symbol:            "ETH",
		Decimals:          18,
		VMType:            VMTypeEVM,
		RPCURLs:           []string{"https://base-mainnet.g.alchemy.com/v2/"},
		BlockExplorerURLs: []string{"https://basescan.org"},
		FactoryAddress:    DefaultFactory,
		EntryPointAddress: DefaultEntryPoint,
	}
	BaseSepolia = &Chain{
		ChainID:           84532,
		Key:               "base-sepolia",
		Name:              "Base Sepolia",
		Symbol:            "ETH",
		Decimals:          18,
		VMType:            VMTypeEVM,
		RPCURLs:           []string{"https://base-sepolia.g.alchemy.com/v2/"},
		BlockExplorerURLs: []string{"https://sepolia.basescan.org"},
		TestNetwork:       true,
		FactoryAddress:    DefaultFactory,
		EntryPointAddress: DefaultEntryPoint,
	}
	Polygon = &Chain{
		ChainID:           137,
		Key:               "polygon",
		Name:              "Polygon",
		Symbol:            "MATIC",
		Decimals:          18,
		VMType:            VMTypeEVM,
		RPCURLs:           []string{"https://polygon-rpc.com"},
		BlockExplorerURLs: []string{"https://polygonscan.com"},
		FactoryAddress:    legacyFactory,
		EntryPointAddress: DefaultEntryPoint,
	}
	Arbitrum = &Chain{
		ChainID:           42161,
		Key:               "arbitrum",
		Name:              "Arbitrum",
		Symbol:            "AETH",
		Decimals:          18,
		VMType:            VMTypeEVM,
		RPCURLs:           []string{"https://arb1.arbitrum.io/rpc"},
		BlockExplorerURLs: []string{"https://arbiscan.io"},
		FactoryAddress:    legacyFactory,
		EntryPointAddress: DefaultEntryPoint,
	}
)

var (
	byKey = map[string]*Chain{}
	byID  = map[int64]*Chain{}
)

func init() {
	for _, c := range []*Chain{Ethereum, Sepolia, Base, BaseSepolia, Polygon, Arbitrum} {
		byKey[c.Key] = c
		byID[c.ChainID] = c
	}
}

// ByKey looks up a known chain by its table key.
func ByKey(key string) (*Chain, bool) {
	c, ok := byKey[strings.ToLower(strings.TrimSpace(key))]
	return c, ok
}

// ByID looks up a known chain by chain id.
func ByID(id int64) (*Chain, bool) {
	c, ok := byID[id]
	return c, ok
}

// Keys returns the sorted table keys.
func Keys() []string {
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
