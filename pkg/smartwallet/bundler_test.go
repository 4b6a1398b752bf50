package smartwallet_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/snowball/pkg/chain"
	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/smartwallet"
	"github.com/DeBrosOfficial/snowball/pkg/wallet"
)

var (
	gwei          = big.NewInt(1_000_000_000)
	paymasterAddr = common.HexToAddress("0x4Fd9098af9ddcB41DA48A1d78F91F1398965addc")
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// bundler is a fake node plus bundler speaking JSON-RPC.
type bundler struct {
	t *testing.T

	mu              sync.Mutex
	deployed        bool
	nonce           int64
	pendingReceipts int
	fail            map[string]string
	calls           map[string]int
	sent            []smartwallet.UserOperation
	paymasterReqs   []map[string]json.RawMessage
	ops             map[common.Hash]smartwallet.UserOperation
}

func newBundler(t *testing.T) (*bundler, string) {
	b := &bundler{
		t:     t,
		fail:  map[string]string{},
		calls: map[string]int{},
		ops:   map[common.Hash]smartwallet.UserOperation{},
	}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	return b, srv.URL
}

// accountFor derives a deterministic account address for owner and salt.
func accountFor(owner common.Address, salt *big.Int) common.Address {
	return crypto.CreateAddress(owner, salt.Uint64())
}

func (b *bundler) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

func (b *bundler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.calls[req.Method]++
	var result any
	msg, failing := b.fail[req.Method]
	if !failing {
		result, msg = b.handle(req.Method, req.Params)
	}
	b.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if msg != "" {
		resp["error"] = map[string]any{"code": -32500, "message": msg}
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (b *bundler) handle(method string, params []json.RawMessage) (any, string) {
	switch method {
	case "eth_call":
		return b.call(params[0])
	case "eth_getCode":
		if b.deployed {
			return "0x6001", ""
		}
		return "0x", ""
	case "eth_maxPriorityFeePerGas":
		return (*hexutil.Big)(gwei), ""
	case "eth_getBlockByNumber":
		return map[string]any{"baseFeePerGas": (*hexutil.Big)(new(big.Int).Mul(gwei, big.NewInt(10)))}, ""
	case "eth_estimateUserOperationGas":
		return map[string]string{
			"preVerificationGas":   "0xc350",
			"verificationGasLimit": "0x186a0",
			"callGasLimit":         "0x7530",
		}, ""
	case "alchemy_requestGasAndPaymasterAndData":
		var req map[string]json.RawMessage
		if err := json.Unmarshal(params[0], &req); err != nil {
			return nil, err.Error()
		}
		b.paymasterReqs = append(b.paymasterReqs, req)
		return map[string]any{
			"paymasterAndData":     hexutil.Bytes(append(paymasterAddr.Bytes(), 0xaa, 0xbb)),
			"callGasLimit":         "0x1",
			"verificationGasLimit": "0x2",
			"preVerificationGas":   "0x3",
			"maxFeePerGas":         "0x4",
			"maxPriorityFeePerGas": "0x5",
		}, ""
	case "eth_sendUserOperation":
		var op smartwallet.UserOperation
		if err := json.Unmarshal(params[0], &op); err != nil {
			return nil, err.Error()
		}
		var entryPoint common.Address
		if err := json.Unmarshal(params[1], &entryPoint); err != nil {
			return nil, err.Error()
		}
		hash, err := op.Hash(entryPoint, big.NewInt(chain.Sepolia.ChainID))
		if err != nil {
			return nil, err.Error()
		}
		b.sent = append(b.sent, op)
		b.ops[hash] = op
		return hash, ""
	case "eth_getUserOperationReceipt":
		var hash common.Hash
		_ = json.Unmarshal(params[0], &hash)
		if _, ok := b.ops[hash]; !ok {
			return nil, ""
		}
		if b.pendingReceipts > 0 {
			b.pendingReceipts--
			return nil, ""
		}
		return map[string]any{
			"userOpHash": hash,
			"success":    true,
			"receipt":    map[string]any{"transactionHash": crypto.Keccak256Hash(hash.Bytes()), "status": "0x1"},
		}, ""
	case "eth_getUserOperationByHash":
		var hash common.Hash
		_ = json.Unmarshal(params[0], &hash)
		op, ok := b.ops[hash]
		if !ok {
			return nil, ""
		}
		return map[string]any{"userOperation": op, "entryPoint": chain.DefaultEntryPoint, "transactionHash": crypto.Keccak256Hash(hash.Bytes())}, ""
	}
	return nil, "method not found: " + method
}

func (b *bundler) call(raw json.RawMessage) (any, string) {
	var msg struct {
		To    common.Address `json:"to"`
		Input hexutil.Bytes  `json:"input"`
		Data  hexutil.Bytes  `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err.Error()
	}
	data := msg.Input
	if len(data) == 0 {
		data = msg.Data
	}
	if len(data) < 4 {
		return nil, "short call data"
	}

	getAddress := smartwallet.FactoryABI.Methods["getAddress"]
	getNonce := smartwallet.EntryPointABI.Methods["getNonce"]
	switch string(data[:4]) {
	case string(getAddress.ID):
		args, err := getAddress.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err.Error()
		}
		out, _ := getAddress.Outputs.Pack(accountFor(args[0].(common.Address), args[1].(*big.Int)))
		return hexutil.Bytes(out), ""
	case string(getNonce.ID):
		out, _ := getNonce.Outputs.Pack(big.NewInt(b.nonce))
		return hexutil.Bytes(out), ""
	}
	return nil, "execution reverted"
}

func newWallet(t *testing.T, mutate func(*smartwallet.Config)) (*smartwallet.BundlerWallet, *bundler, *wallet.LocalSigner) {
	t.Helper()
	b, url := newBundler(t)
	owner, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)
	cfg := smartwallet.Config{
		BundlerURL:  url,
		GasPolicyID: "policy-1",
		Wait:        smartwallet.WaitOptions{Interval: time.Millisecond, Multiplier: 1, MaxTries: 4},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := smartwallet.Dial(context.Background(), cfg, chain.Sepolia, owner)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w, b, owner
}

func TestAddressIsCached(t *testing.T) {
	w, b, owner := newWallet(t, nil)
	ctx := context.Background()

	addr, err := w.Address(ctx)
	require.NoError(t, err)
	assert.Equal(t, accountFor(owner.Address(), big.NewInt(0)), addr)

	again, err := w.Address(ctx)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.Equal(t, 1, b.Calls("eth_call"))
	assert.Same(t, chain.Sepolia, w.Chain())
	assert.Same(t, owner, w.Owner())
}

func TestSaltSelectsAccount(t *testing.T) {
	w, _, owner := newWallet(t, func(c *smartwallet.Config) { c.Salt = big.NewInt(7) })
	addr, err := w.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, accountFor(owner.Address(), big.NewInt(7)), addr)
}

func TestSendUserOperationDeploysAccount(t *testing.T) {
	w, b, owner := newWallet(t, nil)
	ctx := context.Background()
	target := common.HexToAddress("0x000000000000000000000000000000000000dEaD")

	hash, err := w.SendUserOperation(ctx, target, []byte{0xca, 0xfe}, big.NewInt(42))
	require.NoError(t, err)
	require.Len(t, b.sent, 1)
	op := b.sent[0]

	want, err := op.Hash(chain.DefaultEntryPoint, big.NewInt(chain.Sepolia.ChainID))
	require.NoError(t, err)
	assert.Equal(t, want, hash)

	sender, _ := w.Address(ctx)
	assert.Equal(t, sender, op.Sender)
	assert.Zero(t, op.Nonce.Sign())

	create, err := smartwallet.FactoryABI.Pack("createAccount", owner.Address(), big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, append(chain.Sepolia.FactoryAddress.Bytes(), create...), op.InitCode)

	args, err := smartwallet.AccountABI.Methods["execute"].Inputs.Unpack(op.CallData[4:])
	require.NoError(t, err)
	assert.Equal(t, target, args[0])
	assert.Equal(t, big.NewInt(42), args[1])
	assert.Equal(t, []byte{0xca, 0xfe}, args[2])

	assert.Equal(t, big.NewInt(30000), op.CallGasLimit)
	assert.Equal(t, big.NewInt(100000), op.VerificationGasLimit)
	assert.Equal(t, big.NewInt(50000), op.PreVerificationGas)
	assert.Equal(t, gwei, op.MaxPriorityFeePerGas)
	assert.Equal(t, new(big.Int).Mul(gwei, big.NewInt(21)), op.MaxFeePerGas)
	assert.Empty(t, op.PaymasterAndData)

	signer, err := wallet.RecoverAddress(wallet.MessageHash(hash.Bytes()), op.Signature)
	require.NoError(t, err)
	assert.Equal(t, owner.Address(), signer)

	assert.Zero(t, b.Calls("alchemy_requestGasAndPaymasterAndData"))
}

func TestSendUserOperationDeployedAccount(t *testing.T) {
	w, b, _ := newWallet(t, nil)
	b.deployed = true
	b.nonce = 9

	_, err := w.SendUserOperation(context.Background(), common.Address{}, nil, nil)
	require.NoError(t, err)
	op := b.sent[0]
	assert.Empty(t, op.InitCode)
	assert.Equal(t, big.NewInt(9), op.Nonce)
}

func TestSendUserOperationBundlerError(t *testing.T) {
	w, b, _ := newWallet(t, nil)
	b.fail["eth_sendUserOperation"] = "AA21 didn't pay prefund"

	_, err := w.SendUserOperation(context.Background(), common.Address{}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, "SmartWallet.sendUserOperation", sberrors.Name(err))
	assert.Contains(t, sberrors.Chain(err), "AA21 didn't pay prefund")
	assert.Contains(t, err.Error(), "Failed to send user operation")
}

func TestSponsoredUserOperation(t *testing.T) {
	w, b, _ := newWallet(t, nil)
	ctx := context.Background()

	hash, err := w.SendSponsoredUserOperation(ctx, common.Address{}, []byte{1}, nil)
	require.NoError(t, err)
	require.Len(t, b.paymasterReqs, 1)
	assert.JSONEq(t, `"policy-1"`, string(b.paymasterReqs[0]["policyId"]))
	assert.Zero(t, b.Calls("eth_estimateUserOperationGas"))

	op := b.sent[0]
	assert.Equal(t, paymasterAddr, op.PaymasterAddress())
	assert.True(t, op.HasPaymaster())
	assert.Equal(t, big.NewInt(1), op.CallGasLimit)
	assert.Equal(t, big.NewInt(4), op.MaxFeePerGas)

	got, err := w.GetUserOperationByHash(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, op.PaymasterAndData, got.UserOperation.PaymasterAndData)
}

func TestSponsoredRequiresGasPolicy(t *testing.T) {
	w, b, _ := newWallet(t, func(c *smartwallet.Config) { c.GasPolicyID = "" })

	_, err := w.SendSponsoredUserOperation(context.Background(), common.Address{}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, smartwallet.ErrNoGasPolicyID, sberrors.Name(err))
	assert.True(t, sberrors.IsPrecondition(err))
	assert.Zero(t, b.Calls("eth_call"))
}

func TestWaitForUserOperationTransaction(t *testing.T) {
	w, b, _ := newWallet(t, nil)
	ctx := context.Background()
	hash, err := w.SendUserOperation(ctx, common.Address{}, nil, nil)
	require.NoError(t, err)

	b.mu.Lock()
	b.pendingReceipts = 2
	b.mu.Unlock()

	txHash, err := w.WaitForUserOperationTransaction(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(hash.Bytes()), txHash)
	assert.Equal(t, 3, b.Calls("eth_getUserOperationReceipt"))

	receipt, err := w.GetUserOperationReceipt(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Success)
	assert.Equal(t, hash, receipt.UserOpHash)
}

func TestWaitGivesUp(t *testing.T) {
	w, b, _ := newWallet(t, nil)
	unknown := common.HexToHash("0x01")

	_, err := w.WaitForUserOperationTransaction(context.Background(), unknown)
	require.Error(t, err)
	assert.Equal(t, "SmartWallet.waitForUserOperationTransaction", sberrors.Name(err))
	assert.Equal(t, 4, b.Calls("eth_getUserOperationReceipt"))
}

func TestUnknownUserOperation(t *testing.T) {
	w, _, _ := newWallet(t, nil)
	ctx := context.Background()

	op, err := w.GetUserOperationByHash(ctx, common.HexToHash("0x02"))
	require.NoError(t, err)
	assert.Nil(t, op)

	receipt, err := w.GetUserOperationReceipt(ctx, common.HexToHash("0x02"))
	require.NoError(t, err)
	assert.Nil(t, receipt)
}

func TestDialPreconditions(t *testing.T) {
	owner, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)
	noURLs := &chain.Chain{ChainID: 1337, Key: "local", VMType: chain.VMTypeEVM}

	tests := []struct {
		name  string
		cfg   smartwallet.Config
		chain *chain.Chain
		owner wallet.Signer
		want  string
	}{
		{"no chain", smartwallet.Config{BundlerURL: "http://x"}, nil, owner, "missing.chain"},
		{"no owner", smartwallet.Config{BundlerURL: "http://x"}, chain.Sepolia, nil, "missing.owner"},
		{"no bundler", smartwallet.Config{APIKey: "k"}, noURLs, owner, "missing.bundlerUrl"},
		{"no entry point", smartwallet.Config{BundlerURL: "http://x"}, noURLs, owner, "missing.entryPoint"},
		{"no factory", smartwallet.Config{BundlerURL: "http://x", EntryPoint: chain.DefaultEntryPoint}, noURLs, owner, "missing.factory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := smartwallet.Dial(context.Background(), tt.cfg, tt.chain, tt.owner)
			require.Error(t, err)
			assert.Equal(t, tt.want, sberrors.Name(err))
			assert.True(t, sberrors.IsPrecondition(err))
		})
	}
}

func TestFactoryUsesAlchemyURL(t *testing.T) {
	_, url := newBundler(t)
	c := &chain.Chain{
		ChainID:           chain.Sepolia.ChainID,
		Key:               "sepolia-test",
		VMType:            chain.VMTypeEVM,
		RPCURLs:           []string{url + "/v2/"},
		EntryPointAddress: chain.DefaultEntryPoint,
		FactoryAddress:    chain.DefaultFactory,
	}
	owner, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)

	sw, err := smartwallet.NewFactory(smartwallet.Config{APIKey: "key-1"})(context.Background(), c, owner)
	require.NoError(t, err)
	assert.Same(t, c, sw.Chain())
	addr, err := sw.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, accountFor(owner.Address(), big.NewInt(0)), addr)
}
