package signature

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/agent/core"
)

// EthVerifier verifies EIP-191 personal_sign signatures over a hex payload.
// The wallet signs the decoded payload bytes, not the hex text.
type EthVerifier struct{}

// NewEthVerifier creates a new Ethereum signature verifier
func NewEthVerifier() *EthVerifier {
	return &EthVerifier{}
}

// Verify checks that address signed payload and returns the decoded JSON document
func (v *EthVerifier) Verify(address, signature, payload string) ([]byte, error) {
	data, err := decodeHex(payload)
	if err != nil {
		return nil, fmt.Errorf("payload is not hex: %w", core.ErrMalformedPayload)
	}

	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("malformed address: %w", core.ErrInvalidSignature)
	}

	sig, err := decodeHex(signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}

	// Wallets emit V as 27/28, SigToPub wants the 0/1 recovery id
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return nil, fmt.Errorf("invalid recovery id: %w", core.ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash(data), sig)
	if err != nil {
		return nil, fmt.Errorf("signature recovery failed: %w", core.ErrInvalidSignature)
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return nil, fmt.Errorf("signer mismatch: %w", core.ErrInvalidSignature)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("payload is not a JSON object: %w", core.ErrMalformedPayload)
	}

	return trimmed, nil
}

// Canonical returns the EIP-55 form of address
func (v *EthVerifier) Canonical(address string) (string, error) {
	return CanonicalAddress(address)
}

// Sign produces the personal_sign signature a wallet would return for data
func Sign(key *ecdsa.PrivateKey, data []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(data), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// CanonicalAddress returns the EIP-55 checksummed form of a hex address
func CanonicalAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", core.ErrInvalidIdentityFormat
	}
	return common.HexToAddress(address).Hex(), nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
