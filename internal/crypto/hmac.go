package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HMACSigner holds the API credentials for L2-authenticated trading
// endpoints (order placement and cancellation). The venue issues the
// key, secret and passphrase once per wallet.
type HMACSigner struct {
	Key        string // API key
	Secret     string // API secret, base64-encoded
	Passphrase string // API passphrase
}

// L2Headers returns the HTTP headers for an L2 request. The signature is
// HMAC-SHA256(base64-decoded secret, timestamp+METHOD+path+body) encoded
// as base64. The timestamp is Unix milliseconds.
//
// Returned header keys:
//   - POLY_API_KEY
//   - POLY_SIGNATURE
//   - POLY_TIMESTAMP
//   - POLY_PASSPHRASE
func (h *HMACSigner) L2Headers(method, path, body string) map[string]string {
	return h.L2HeadersAt(method, path, body, time.Now().UnixMilli())
}

// L2HeadersAt is like L2Headers but lets the caller supply the Unix
// millisecond timestamp (useful for deterministic testing).
func (h *HMACSigner) L2HeadersAt(method, path, body string, unixMs int64) map[string]string {
	ts := strconv.FormatInt(unixMs, 10)

	secretBytes, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		// A malformed secret yields an obviously-wrong signature the
		// venue rejects, rather than a panic here.
		secretBytes = []byte(h.Secret)
	}

	message := ts + strings.ToUpper(method) + path + body
	sig := hmacSHA256Base64(secretBytes, message)

	return map[string]string{
		"POLY_API_KEY":    h.Key,
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
	}
}

// Configured reports whether all three credentials are present.
func (h *HMACSigner) Configured() bool {
	return h.Key != "" && h.Secret != "" && h.Passphrase != ""
}

// String returns a redacted representation suitable for logging.
func (h *HMACSigner) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACSigner{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns
// the result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
