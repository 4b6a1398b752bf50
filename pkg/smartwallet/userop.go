package smartwallet

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is an ERC-4337 (EntryPoint v0.6) user operation.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte // first 20 bytes = paymaster address
	Signature            []byte
}

// rpcUserOperation is the hex encoding bundlers expect.
type rpcUserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

func hexBig(v *big.Int) *hexutil.Big {
	return (*hexutil.Big)(safeBig(v))
}

func fromHexBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToInt()
}

func (op UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(rpcUserOperation{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		InitCode:             nonNil(op.InitCode),
		CallData:             nonNil(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     nonNil(op.PaymasterAndData),
		Signature:            nonNil(op.Signature),
	})
}

func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var r rpcUserOperation
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*op = UserOperation{
		Sender:               r.Sender,
		Nonce:                fromHexBig(r.Nonce),
		InitCode:             r.InitCode,
		CallData:             r.CallData,
		CallGasLimit:         fromHexBig(r.CallGasLimit),
		VerificationGasLimit: fromHexBig(r.VerificationGasLimit),
		PreVerificationGas:   fromHexBig(r.PreVerificationGas),
		MaxFeePerGas:         fromHexBig(r.MaxFeePerGas),
		MaxPriorityFeePerGas: fromHexBig(r.MaxPriorityFeePerGas),
		PaymasterAndData:     r.PaymasterAndData,
		Signature:            r.Signature,
	}
	return nil
}

// nonNil keeps empty byte fields encoded as "0x" rather than null.
func nonNil(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return b
}

// PaymasterAddress extracts the paymaster address from PaymasterAndData.
// Returns zero address if no paymaster.
func (op *UserOperation) PaymasterAddress() common.Address {
	if len(op.PaymasterAndData) < 20 {
		return common.Address{}
	}
	return common.BytesToAddress(op.PaymasterAndData[:20])
}

// HasPaymaster reports whether gas is sponsored by a paymaster.
func (op *UserOperation) HasPaymaster() bool {
	return op.PaymasterAddress() != (common.Address{})
}

var (
	addressT, _ = abi.NewType("address", "", nil)
	uint256T, _ = abi.NewType("uint256", "", nil)
	bytes32T, _ = abi.NewType("bytes32", "", nil)

	packedOpArgs = abi.Arguments{
		{Type: addressT}, // sender
		{Type: uint256T}, // nonce
		{Type: bytes32T}, // keccak(initCode)
		{Type: bytes32T}, // keccak(callData)
		{Type: uint256T}, // callGasLimit
		{Type: uint256T}, // verificationGasLimit
		{Type: uint256T}, // preVerificationGas
		{Type: uint256T}, // maxFeePerGas
		{Type: uint256T}, // maxPriorityFeePerGas
		{Type: bytes32T}, // keccak(paymasterAndData)
	}
	opHashArgs = abi.Arguments{{Type: bytes32T}, {Type: addressT}, {Type: uint256T}}
)

// Hash computes the EntryPoint v0.6 userOpHash: the signature field is
// excluded and the result is bound to entryPoint and chainID.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := packedOpArgs.Pack(
		op.Sender,
		safeBig(op.Nonce),
		[32]byte(crypto.Keccak256Hash(op.InitCode)),
		[32]byte(crypto.Keccak256Hash(op.CallData)),
		safeBig(op.CallGasLimit),
		safeBig(op.VerificationGasLimit),
		safeBig(op.PreVerificationGas),
		safeBig(op.MaxFeePerGas),
		safeBig(op.MaxPriorityFeePerGas),
		[32]byte(crypto.Keccak256Hash(op.PaymasterAndData)),
	)
	if err != nil {
		return common.Hash{}, err
	}
	outer, err := opHashArgs.Pack([32]byte(crypto.Keccak256Hash(packed)), entryPoint, safeBig(chainID))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(outer), nil
}

func safeBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// UserOperationResponse is a user operation as found on chain.
type UserOperationResponse struct {
	UserOperation   UserOperation  `json:"userOperation"`
	EntryPoint      common.Address `json:"entryPoint"`
	BlockNumber     *hexutil.Big   `json:"blockNumber"`
	BlockHash       common.Hash    `json:"blockHash"`
	TransactionHash common.Hash    `json:"transactionHash"`
}

// TransactionReceipt is the bundle transaction that included an operation.
type TransactionReceipt struct {
	TransactionHash common.Hash  `json:"transactionHash"`
	BlockHash       common.Hash  `json:"blockHash"`
	BlockNumber     *hexutil.Big `json:"blockNumber"`
	Status          string       `json:"status"`
}

// UserOperationReceipt contains execution results for an included operation.
type UserOperationReceipt struct {
	UserOpHash    common.Hash        `json:"userOpHash"`
	Sender        common.Address     `json:"sender"`
	Paymaster     common.Address     `json:"paymaster"`
	Nonce         *hexutil.Big       `json:"nonce"`
	Success       bool               `json:"success"`
	ActualGasCost *hexutil.Big       `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big       `json:"actualGasUsed"`
	Reason        string             `json:"reason,omitempty"` // revert reason if failed
	Receipt       TransactionReceipt `json:"receipt"`
}
