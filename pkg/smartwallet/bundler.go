package smartwallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/snowball/pkg/chain"
	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/logging"
	"github.com/DeBrosOfficial/snowball/pkg/wallet"
)

const (
	factoryJSON = `[
	{"type":"function","name":"createAccount","stateMutability":"nonpayable",
	 "inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],
	 "outputs":[{"name":"ret","type":"address"}]},
	{"type":"function","name":"getAddress","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]}
]`
	entryPointJSON = `[
	{"type":"function","name":"getNonce","stateMutability":"view",
	 "inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],
	 "outputs":[{"name":"nonce","type":"uint256"}]}
]`
	accountJSON = `[
	{"type":"function","name":"execute","stateMutability":"nonpayable",
	 "inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],
	 "outputs":[]}
]`
)

var (
	FactoryABI    = mustABI(factoryJSON)
	EntryPointABI = mustABI(entryPointJSON)
	AccountABI    = mustABI(accountJSON)
)

// DummySignature has a valid shape so bundlers can simulate an unsigned operation.
var DummySignature = common.FromHex("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

var errNotIncluded = errors.New("user operation not included yet")

// BundlerWallet is a light smart account driven over bundler JSON-RPC. The
// counterfactual address is resolved once and cached.
type BundlerWallet struct {
	cfg    Config
	chain  *chain.Chain
	owner  wallet.Signer
	rpc    *rpc.Client
	eth    *ethclient.Client
	logger *logging.ColoredLogger

	mu      sync.Mutex
	address *common.Address
}

var _ SmartWallet = (*BundlerWallet)(nil)

// Dial connects to the bundler for c and returns a wallet owned by owner.
func Dial(ctx context.Context, cfg Config, c *chain.Chain, owner wallet.Signer) (*BundlerWallet, error) {
	if c == nil {
		return nil, missing("chain")
	}
	if owner == nil {
		return nil, missing("owner")
	}
	cfg = cfg.withDefaults(c)
	switch {
	case cfg.BundlerURL == "":
		return nil, missing("bundlerUrl")
	case cfg.EntryPoint == (common.Address{}):
		return nil, missing("entryPoint")
	case cfg.Factory == (common.Address{}):
		return nil, missing("factory")
	}

	var opts []rpc.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, rpc.WithHTTPClient(cfg.HTTPClient))
	}
	client, err := rpc.DialOptions(ctx, cfg.BundlerURL, opts...)
	if err != nil {
		return nil, sberrors.Make(ClassName+".dial", "Failed to connect to bundler", err)
	}

	return &BundlerWallet{
		cfg:    cfg,
		chain:  c,
		owner:  owner,
		rpc:    client,
		eth:    ethclient.NewClient(client),
		logger: logging.Wrap(cfg.Logger).Named(ClassName),
	}, nil
}

func (w *BundlerWallet) Chain() *chain.Chain {
	return w.chain
}

func (w *BundlerWallet) Owner() wallet.Signer {
	return w.owner
}

// Close releases the bundler connection.
func (w *BundlerWallet) Close() {
	w.rpc.Close()
}

// Address returns the counterfactual account address from the factory.
func (w *BundlerWallet) Address(ctx context.Context) (common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.address != nil {
		return *w.address, nil
	}

	data, err := FactoryABI.Pack("getAddress", w.owner.Address(), w.cfg.Salt)
	if err != nil {
		return common.Address{}, err
	}
	out, err := w.eth.CallContract(ctx, ethereum.CallMsg{To: &w.cfg.Factory, Data: data}, nil)
	if err != nil {
		return common.Address{}, sberrors.Make(ClassName+".getAddress", "Failed to get address", err)
	}
	res, err := FactoryABI.Unpack("getAddress", out)
	if err != nil {
		return common.Address{}, sberrors.Make(ClassName+".getAddress", "Failed to get address", err)
	}
	addr, ok := res[0].(common.Address)
	if !ok {
		return common.Address{}, sberrors.New(ClassName+".getAddress", fmt.Sprintf("Failed to get address: unexpected %T", res[0]))
	}

	w.address = &addr
	w.logger.ComponentDebug(logging.ComponentSmartWallet, "resolved account address",
		zap.String("owner", w.owner.Address().Hex()),
		zap.String("address", addr.Hex()))
	return addr, nil
}

func (w *BundlerWallet) SendUserOperation(ctx context.Context, target common.Address, data []byte, value *big.Int) (common.Hash, error) {
	hash, err := w.send(ctx, target, data, value, false)
	if err != nil {
		return common.Hash{}, sberrors.Make(ClassName+".sendUserOperation", "Failed to send user operation", err)
	}
	return hash, nil
}

// SendSponsoredUserOperation sends an operation whose gas is paid by the
// configured gas policy.
func (w *BundlerWallet) SendSponsoredUserOperation(ctx context.Context, target common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if w.cfg.GasPolicyID == "" {
		return common.Hash{}, sberrors.New(ErrNoGasPolicyID, "No gas policy ID provided for sponsored user operation").
			WithCode(sberrors.CodePrecondition)
	}
	hash, err := w.send(ctx, target, data, value, true)
	if err != nil {
		return common.Hash{}, sberrors.Make(ClassName+".sendSponsoredUserOperation", "Failed to send sponsor user operation", err)
	}
	return hash, nil
}

func (w *BundlerWallet) send(ctx context.Context, target common.Address, data []byte, value *big.Int, sponsored bool) (common.Hash, error) {
	op, err := w.buildUserOp(ctx, target, data, value)
	if err != nil {
		return common.Hash{}, err
	}
	if sponsored {
		err = w.requestPaymaster(ctx, op)
	} else {
		err = w.estimateGas(ctx, op)
	}
	if err != nil {
		return common.Hash{}, err
	}
	if err := w.sign(ctx, op); err != nil {
		return common.Hash{}, err
	}

	var hash common.Hash
	if err := w.rpc.CallContext(ctx, &hash, "eth_sendUserOperation", op, w.cfg.EntryPoint); err != nil {
		return common.Hash{}, err
	}
	w.logger.ComponentInfo(logging.ComponentSmartWallet, "user operation sent",
		zap.String("hash", hash.Hex()),
		zap.String("sender", op.Sender.Hex()),
		zap.Bool("sponsored", sponsored))
	return hash, nil
}

// buildUserOp fills sender, nonce, init code and call data. Gas fields and
// the signature are left for the caller.
func (w *BundlerWallet) buildUserOp(ctx context.Context, target common.Address, data []byte, value *big.Int) (*UserOperation, error) {
	sender, err := w.Address(ctx)
	if err != nil {
		return nil, err
	}

	nonceData, err := EntryPointABI.Pack("getNonce", sender, new(big.Int))
	if err != nil {
		return nil, err
	}
	out, err := w.eth.CallContract(ctx, ethereum.CallMsg{To: &w.cfg.EntryPoint, Data: nonceData}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	res, err := EntryPointABI.Unpack("getNonce", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	nonce, _ := res[0].(*big.Int)

	code, err := w.eth.CodeAt(ctx, sender, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get account code: %w", err)
	}
	var initCode []byte
	if len(code) == 0 {
		create, err := FactoryABI.Pack("createAccount", w.owner.Address(), w.cfg.Salt)
		if err != nil {
			return nil, err
		}
		initCode = append(w.cfg.Factory.Bytes(), create...)
	}

	if value == nil {
		value = new(big.Int)
	}
	if data == nil {
		data = []byte{}
	}
	callData, err := AccountABI.Pack("execute", target, value, data)
	if err != nil {
		return nil, err
	}

	return &UserOperation{
		Sender:    sender,
		Nonce:     safeBig(nonce),
		InitCode:  initCode,
		CallData:  callData,
		Signature: DummySignature,
	}, nil
}

type gasEstimate struct {
	PreVerificationGas   *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit         *hexutil.Big `json:"callGasLimit"`
}

// estimateGas prices the operation from the network fee market and asks the
// bundler for gas limits.
func (w *BundlerWallet) estimateGas(ctx context.Context, op *UserOperation) error {
	tip, err := w.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get priority fee: %w", err)
	}
	var head struct {
		BaseFee *hexutil.Big `json:"baseFeePerGas"`
	}
	if err := w.rpc.CallContext(ctx, &head, "eth_getBlockByNumber", "latest", false); err != nil {
		return fmt.Errorf("failed to get base fee: %w", err)
	}
	op.MaxPriorityFeePerGas = tip
	op.MaxFeePerGas = new(big.Int).Add(new(big.Int).Mul(fromHexBig(head.BaseFee), big.NewInt(2)), tip)

	var est gasEstimate
	if err := w.rpc.CallContext(ctx, &est, "eth_estimateUserOperationGas", op, w.cfg.EntryPoint); err != nil {
		return fmt.Errorf("failed to estimate gas: %w", err)
	}
	op.PreVerificationGas = fromHexBig(est.PreVerificationGas)
	op.VerificationGasLimit = fromHexBig(est.VerificationGasLimit)
	op.CallGasLimit = fromHexBig(est.CallGasLimit)
	return nil
}

type paymasterRequest struct {
	PolicyID       string         `json:"policyId"`
	EntryPoint     common.Address `json:"entryPoint"`
	DummySignature hexutil.Bytes  `json:"dummySignature"`
	UserOperation  partialUserOp  `json:"userOperation"`
}

type partialUserOp struct {
	Sender   common.Address `json:"sender"`
	Nonce    *hexutil.Big   `json:"nonce"`
	InitCode hexutil.Bytes  `json:"initCode"`
	CallData hexutil.Bytes  `json:"callData"`
}

type paymasterResult struct {
	PaymasterAndData     hexutil.Bytes `json:"paymasterAndData"`
	CallGasLimit         *hexutil.Big  `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big  `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big  `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big  `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big  `json:"maxPriorityFeePerGas"`
}

// requestPaymaster has the gas manager price and sponsor the operation.
func (w *BundlerWallet) requestPaymaster(ctx context.Context, op *UserOperation) error {
	req := paymasterRequest{
		PolicyID:       w.cfg.GasPolicyID,
		EntryPoint:     w.cfg.EntryPoint,
		DummySignature: DummySignature,
		UserOperation: partialUserOp{
			Sender:   op.Sender,
			Nonce:    hexBig(op.Nonce),
			InitCode: nonNil(op.InitCode),
			CallData: nonNil(op.CallData),
		},
	}
	var res paymasterResult
	if err := w.rpc.CallContext(ctx, &res, "alchemy_requestGasAndPaymasterAndData", req); err != nil {
		return fmt.Errorf("paymaster request failed: %w", err)
	}
	if len(res.PaymasterAndData) < common.AddressLength {
		return errors.New("paymaster returned no paymasterAndData")
	}
	op.PaymasterAndData = res.PaymasterAndData
	op.CallGasLimit = fromHexBig(res.CallGasLimit)
	op.VerificationGasLimit = fromHexBig(res.VerificationGasLimit)
	op.PreVerificationGas = fromHexBig(res.PreVerificationGas)
	op.MaxFeePerGas = fromHexBig(res.MaxFeePerGas)
	op.MaxPriorityFeePerGas = fromHexBig(res.MaxPriorityFeePerGas)
	return nil
}

// sign has the owner sign the userOpHash as a personal message.
func (w *BundlerWallet) sign(ctx context.Context, op *UserOperation) error {
	hash, err := op.Hash(w.cfg.EntryPoint, big.NewInt(w.chain.ChainID))
	if err != nil {
		return err
	}
	sig, err := w.owner.SignMessage(ctx, hash.Bytes())
	if err != nil {
		return fmt.Errorf("failed to sign user operation: %w", err)
	}
	op.Signature = sig
	return nil
}

func (w *BundlerWallet) GetUserOperationByHash(ctx context.Context, hash common.Hash) (*UserOperationResponse, error) {
	var resp *UserOperationResponse
	if err := w.rpc.CallContext(ctx, &resp, "eth_getUserOperationByHash", hash); err != nil {
		return nil, sberrors.Make(ClassName+".getUserOperationByHash", "Failed to get user operation by hash", err)
	}
	return resp, nil
}

func (w *BundlerWallet) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error) {
	var receipt *UserOperationReceipt
	if err := w.rpc.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, sberrors.Make(ClassName+".getUserOperationReceipt", "Failed to get user operation receipt", err)
	}
	return receipt, nil
}

// WaitForUserOperationTransaction polls for the receipt with exponential
// backoff. Lookup errors are retried like pending receipts.
func (w *BundlerWallet) WaitForUserOperationTransaction(ctx context.Context, hash common.Hash) (common.Hash, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.Wait.Interval
	b.Multiplier = w.cfg.Wait.Multiplier
	b.RandomizationFactor = 0

	txHash, err := backoff.Retry(ctx, func() (common.Hash, error) {
		receipt, err := w.GetUserOperationReceipt(ctx, hash)
		if err != nil {
			return common.Hash{}, err
		}
		if receipt == nil {
			return common.Hash{}, errNotIncluded
		}
		return receipt.Receipt.TransactionHash, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(w.cfg.Wait.MaxTries),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		return common.Hash{}, sberrors.Make(ClassName+".waitForUserOperationTransaction", "Failed to wait for user operation transaction", err)
	}
	return txHash, nil
}
