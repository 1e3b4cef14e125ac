package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the trading wallet key and produces L1 authentication
// headers for read endpoints that identify the wallet (balances,
// credential derivation). L1 signs an EIP-191 personal message over
// timestamp and nonce; the venue recovers the address server-side.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// L1Headers returns the HTTP headers for an L1-authenticated request.
// The nonce doubles as the timestamp.
//
// Returned header keys:
//   - POLY_ADDRESS
//   - POLY_SIGNATURE
//   - POLY_TIMESTAMP
//   - POLY_NONCE
func (s *Signer) L1Headers() (map[string]string, error) {
	return s.L1HeadersAt(time.Now().Unix())
}

// L1HeadersAt is like L1Headers but lets the caller supply the Unix
// timestamp (useful for deterministic testing).
func (s *Signer) L1HeadersAt(unixTS int64) (map[string]string, error) {
	ts := strconv.FormatInt(unixTS, 10)
	nonce := ts

	sig, err := s.SignPersonal(ts + nonce)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"POLY_ADDRESS":   s.address.Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": ts,
		"POLY_NONCE":     nonce,
	}, nil
}

// SignPersonal signs message per EIP-191 ("\x19Ethereum Signed
// Message:\n" + length prefix) and returns the hex-encoded 65-byte
// signature (r || s || v).
func (s *Signer) SignPersonal(message string) (string, error) {
	digest := personalHash(message)

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; the venue expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// personalHash computes keccak256 of the EIP-191 prefixed message.
func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return ethcrypto.Keccak256([]byte(prefixed))
}
