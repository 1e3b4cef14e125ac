// Package crypto provides wallet key management and the two venue
// authentication levels: EIP-191 personal-sign L1 headers and
// HMAC-SHA256 L2 headers.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// scrypt parameters for keystore key derivation. N=32768 keeps
	// unlock under a second on commodity hardware while staying
	// expensive to brute-force.
	scryptN = 32768
	scryptR = 8
	scryptP = 1
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the keystore JSON schema version.
	currentVersion = 1
)

// keystoreJSON is the on-disk format for the encrypted wallet key. The
// scrypt parameters are stored alongside the ciphertext so files stay
// decryptable if the defaults ever change.
type keystoreJSON struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	N          int    `json:"n"`
	R          int    `json:"r"`
	P          int    `json:"p"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// KeyConfig carries the information LoadKey needs to resolve the trading
// wallet private key. Populate the fields from the [venue] config section.
type KeyConfig struct {
	// RawPrivateKey is the hex-encoded private key (with or without 0x
	// prefix). If non-empty, LoadKey returns it directly.
	RawPrivateKey string

	// KeystorePath is the path to a JSON file produced by EncryptKey.
	KeystorePath string

	// Passphrase decrypts the file at KeystorePath.
	Passphrase string
}

// EncryptKey seals a hex-encoded private key with a passphrase using
// scrypt key derivation and AES-256-GCM. It returns the keystore JSON
// suitable for writing to disk.
func EncryptKey(privateKeyHex string, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: passphrase must not be empty")
	}

	// Normalise the key: strip optional 0x prefix and validate hex.
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(keyBytes))
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	derivedKey, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, aesKeyLen)
	if err != nil {
		return nil, fmt.Errorf("crypto: deriving key: %w", err)
	}

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, keyBytes, nil)

	out := keystoreJSON{
		Version:    currentVersion,
		KDF:        "scrypt",
		N:          scryptN,
		R:          scryptR,
		P:          scryptP,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}

	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey opens a keystore blob produced by EncryptKey, returning the
// hex-encoded private key (without 0x prefix).
func DecryptKey(keystore []byte, passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("crypto: passphrase must not be empty")
	}

	var stored keystoreJSON
	if err := json.Unmarshal(keystore, &stored); err != nil {
		return "", fmt.Errorf("crypto: parsing keystore JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return "", fmt.Errorf("crypto: unsupported keystore version %d", stored.Version)
	}
	if stored.KDF != "scrypt" {
		return "", fmt.Errorf("crypto: unsupported KDF %q", stored.KDF)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	derivedKey, err := scrypt.Key([]byte(passphrase), salt, stored.N, stored.R, stored.P, aesKeyLen)
	if err != nil {
		return "", fmt.Errorf("crypto: deriving key: %w", err)
	}

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return "", fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong passphrase?): %w", err)
	}

	return hex.EncodeToString(plaintext), nil
}

// LoadKey resolves the trading wallet private key.
//
// Resolution order:
//  1. If RawPrivateKey is set, return it (stripping 0x prefix).
//  2. If KeystorePath is set, read the file and decrypt with Passphrase.
//  3. Otherwise, return an error.
func LoadKey(cfg KeyConfig) (string, error) {
	// 1. Raw key takes precedence.
	if cfg.RawPrivateKey != "" {
		k := strings.TrimPrefix(cfg.RawPrivateKey, "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: raw private key is not valid hex: %w", err)
		}
		return k, nil
	}

	// 2. Keystore file.
	if cfg.KeystorePath != "" {
		data, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading keystore file: %w", err)
		}
		return DecryptKey(data, cfg.Passphrase)
	}

	return "", errors.New("crypto: no private key source configured (set RawPrivateKey or KeystorePath)")
}
