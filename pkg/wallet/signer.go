// Package wallet defines the signing handle produced by auth providers and
// consumed by smart-wallet factories.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer is a wallet handle: an account address plus the ability to sign.
// Handles are compared by identity, so implementations should be pointers.
type Signer interface {
	Address() common.Address
	// SignHash signs a 32 byte digest and returns a 65 byte [R || S || V]
	// signature with V in {27, 28}.
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)
	// SignMessage signs msg with the EIP-191 personal message prefix.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// LocalSigner signs with an in-memory secp256k1 key.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner wraps key.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

// GenerateLocalSigner creates a signer with a fresh random key.
func GenerateLocalSigner() (*LocalSigner, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewLocalSigner(key), nil
}

// LocalSignerFromHex parses a hex private key, with or without 0x.
func LocalSignerFromHex(hexKey string) (*LocalSigner, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewLocalSigner(key), nil
}

// Address implements Signer.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignHash implements Signer.
func (s *LocalSigner) SignHash(_ context.Context, hash common.Hash) ([]byte, error) {
	sig, err := ethcrypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign failed: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SignMessage implements Signer.
func (s *LocalSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	return s.SignHash(ctx, MessageHash(msg))
}

// MessageHash returns the EIP-191 digest of msg.
func MessageHash(msg []byte) common.Hash {
	prefix := []byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg)))
	return common.BytesToHash(ethcrypto.Keccak256(prefix, msg))
}

// RecoverAddress returns the address that produced sig over hash. V may be
// 0/1 or 27/28.
func RecoverAddress(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyMessage reports whether sig is a personal-message signature of msg by addr.
func VerifyMessage(addr common.Address, msg []byte, sig []byte) bool {
	got, err := RecoverAddress(MessageHash(msg), sig)
	return err == nil && got == addr
}

// AddressFromPublicKey derives an address from an uncompressed hex public key,
// as reported for threshold-network key shares.
func AddressFromPublicKey(pubHex string) (common.Address, error) {
	raw, err := hexutil.Decode(ensure0x(pubHex))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid public key: %w", err)
	}
	pub, err := ethcrypto.UnmarshalPubkey(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

func ensure0x(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
